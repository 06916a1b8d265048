package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhirnudge/nudge/internal/domain/aix"
	"github.com/fhirnudge/nudge/internal/domain/capability"
	"github.com/fhirnudge/nudge/internal/domain/snapshot"
	"github.com/fhirnudge/nudge/internal/domain/terminology"
	"github.com/fhirnudge/nudge/internal/domain/validation"
	"github.com/fhirnudge/nudge/internal/platform/upstream"
)

type fakeUpstream struct {
	calls int32
	query url.Values
	resp  *upstream.Response
	err   error
}

func (f *fakeUpstream) Read(_ context.Context, _, _ string) (*upstream.Response, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.resp, f.err
}

func (f *fakeUpstream) Search(_ context.Context, _ string, q url.Values) (*upstream.Response, error) {
	atomic.AddInt32(&f.calls, 1)
	f.query = q
	return f.resp, f.err
}

func respond(status int, body string) *upstream.Response {
	return &upstream.Response{
		StatusCode: status,
		Header: http.Header{
			"Content-Type": {fhirJSON},
			"Etag":         {`W/"1"`},
			"Connection":   {"keep-alive"},
		},
		Body: []byte(body),
	}
}

type fakeRefresher struct {
	store *snapshot.Store
	err   error
}

func (f fakeRefresher) Refresh(context.Context) (*snapshot.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.store.Load(), nil
}

func newStore(t *testing.T, recs ...aix.TemplateRecord) *snapshot.Store {
	t.Helper()
	doc, err := os.ReadFile("../capability/testdata/capability.json")
	require.NoError(t, err)
	index, err := capability.NewBuilder().Build(doc)
	require.NoError(t, err)
	loinc, err := terminology.BuildIndex(terminology.SystemLOINC, []terminology.Concept{
		{Code: "8867-4", Display: "Heart rate"},
		{Code: "8480-6", Display: "Systolic blood pressure"},
	})
	require.NoError(t, err)
	reg, err := aix.NewRegistry(recs)
	require.NoError(t, err)

	snap, err := snapshot.New(1, index, map[string]*terminology.Index{terminology.SystemLOINC: loinc}, reg,
		validation.Options{CodedParams: validation.DefaultCodedParams()})
	require.NoError(t, err)
	store := snapshot.NewStore()
	store.Swap(snap)
	return store
}

type testEnv struct {
	e     *echo.Echo
	up    *fakeUpstream
	store *snapshot.Store
	logs  *bytes.Buffer
}

func newEnv(t *testing.T, store *snapshot.Store, up *fakeUpstream, softEmptyStatus int) *testEnv {
	t.Helper()
	var logs bytes.Buffer
	logger := zerolog.New(&logs)
	svc := NewService(store, up, softEmptyStatus, logger)
	h := NewHandler(svc, store, fakeRefresher{store: store}, logger)

	e := echo.New()
	h.RegisterRoutes(e.Group(""), e.Group("/admin"))
	e.HTTPErrorHandler = h.HTTPErrorHandler(e.DefaultHTTPErrorHandler)
	return &testEnv{e: e, up: up, store: store, logs: &logs}
}

func (env *testEnv) get(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	return rec
}

func decodeAIX(t *testing.T, rec *httptest.ResponseRecorder) aix.ErrorResponse {
	t.Helper()
	var out aix.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestReadResource_UnknownTypeNeverReachesUpstream(t *testing.T) {
	env := newEnv(t, newStore(t), &fakeUpstream{}, 0)

	rec := env.get(t, "/readResource/Patiant/123")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeAIX(t, rec)
	assert.Equal(t, "Invalid type", resp.Error)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Len(t, resp.Issues, 1)
	assert.Equal(t, "invalid_type", resp.Issues[0].Code)
	assert.Contains(t, resp.Issues[0].Diagnostics, "Patient")
	assert.Zero(t, atomic.LoadInt32(&env.up.calls))
}

func TestReadResource_InvalidID(t *testing.T) {
	env := newEnv(t, newStore(t), &fakeUpstream{}, 0)

	rec := env.get(t, "/readResource/Patient/"+url.PathEscape("bad id!"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeAIX(t, rec)
	assert.Equal(t, "invalid_id_format", resp.Issues[0].Code)
	require.NotNil(t, resp.ResourceID)
	assert.Equal(t, "bad id!", *resp.ResourceID)
	assert.Zero(t, atomic.LoadInt32(&env.up.calls))
}

func TestReadResource_PassesThrough(t *testing.T) {
	up := &fakeUpstream{resp: respond(http.StatusOK, `{"resourceType":"Patient","id":"p1"}`)}
	env := newEnv(t, newStore(t), up, 0)

	rec := env.get(t, "/readResource/Patient/p1")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"resourceType":"Patient","id":"p1"}`, rec.Body.String())
	assert.Equal(t, fhirJSON, rec.Header().Get("Content-Type"))
	assert.Equal(t, `W/"1"`, rec.Header().Get("ETag"))
	assert.Empty(t, rec.Header().Get("Connection"))
}

func TestReadResource_NotFound(t *testing.T) {
	up := &fakeUpstream{resp: respond(http.StatusNotFound,
		`{"resourceType":"OperationOutcome","issue":[{"severity":"error","code":"not-found","diagnostics":"Resource Patient/S9X7YQZ1 is not known"}]}`)}
	env := newEnv(t, newStore(t), up, 0)

	rec := env.get(t, "/readResource/Patient/S9X7YQZ1")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeAIX(t, rec)
	assert.Equal(t, "Not found", resp.Error)
	assert.Equal(t, "No Patient resource was found with ID 'S9X7YQZ1'.", resp.FriendlyMessage)
	require.NotNil(t, resp.NextSteps)
	assert.Equal(t, "Try searching for the Patient using /searchResource.", *resp.NextSteps)
	require.Len(t, resp.Issues, 1)
	assert.Equal(t, "not_found", resp.Issues[0].Code)
	assert.Equal(t, "Resource Patient/S9X7YQZ1 is not known", resp.Issues[0].Diagnostics)
	require.NotNil(t, resp.Issues[0].Details)
	assert.Equal(t, "upstream issue code: not-found", *resp.Issues[0].Details)
}

func TestReadResource_NotFoundWithoutOutcome(t *testing.T) {
	up := &fakeUpstream{resp: respond(http.StatusNotFound, `not found`)}
	env := newEnv(t, newStore(t), up, 0)

	resp := decodeAIX(t, env.get(t, "/readResource/Patient/p1"))
	require.Len(t, resp.Issues, 1)
	assert.Equal(t, "Patient/p1 was not found on the FHIR server.", resp.Issues[0].Diagnostics)
	assert.Nil(t, resp.Issues[0].Details)
}

func TestReadResource_UpstreamFailures(t *testing.T) {
	tests := []struct {
		name       string
		up         *fakeUpstream
		wantStatus int
		wantCode   string
	}{
		{
			name:       "unreachable",
			up:         &fakeUpstream{err: fmt.Errorf("%w: dial tcp: connection refused", upstream.ErrUnreachable)},
			wantStatus: http.StatusBadGateway,
			wantCode:   "upstream_unreachable",
		},
		{
			name:       "server error",
			up:         &fakeUpstream{resp: respond(http.StatusInternalServerError, `oops`)},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "upstream_unexpected",
		},
		{
			name:       "redirect",
			up:         &fakeUpstream{resp: respond(http.StatusFound, ``)},
			wantStatus: http.StatusBadGateway,
			wantCode:   "upstream_unexpected",
		},
		{
			name: "outcome on read is not a query error",
			up: &fakeUpstream{resp: respond(http.StatusBadRequest,
				`{"resourceType":"OperationOutcome","issue":[{"severity":"error","code":"invalid","diagnostics":"bad"}]}`)},
			wantStatus: http.StatusBadRequest,
			wantCode:   "upstream_unexpected",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newEnv(t, newStore(t), tt.up, 0)
			rec := env.get(t, "/readResource/Patient/p1")
			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decodeAIX(t, rec)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			require.NotEmpty(t, resp.Issues)
			assert.Equal(t, tt.wantCode, resp.Issues[0].Code)
		})
	}
}

func TestReadResource_UnreachableReason(t *testing.T) {
	target := "http://fhir.local/Patient/p1"
	tests := []struct {
		name  string
		cause error
		want  string
	}{
		{"timeout", &url.Error{Op: "Get", URL: target, Err: context.DeadlineExceeded}, "(timeout)"},
		{"reset", &url.Error{Op: "Get", URL: target, Err: errors.New("connection reset by peer")}, "(Get " + target + " failed)"},
		{"bare", errors.New("dial failed"), "(no response)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			up := &fakeUpstream{err: fmt.Errorf("%w: GET /Patient/p1: %w", upstream.ErrUnreachable, tt.cause)}
			env := newEnv(t, newStore(t), up, 0)

			rec := env.get(t, "/readResource/Patient/p1")
			assert.Equal(t, http.StatusBadGateway, rec.Code)
			resp := decodeAIX(t, rec)
			require.NotNil(t, resp.NextSteps)
			assert.Contains(t, *resp.NextSteps, tt.want)
		})
	}
}

func TestReadResource_OtherErrorsAreInternal(t *testing.T) {
	env := newEnv(t, newStore(t), &fakeUpstream{err: errors.New("bug")}, 0)

	rec := env.get(t, "/readResource/Patient/p1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"message":"internal server error"}`, rec.Body.String())
}

func TestSearchResource_UnknownParam(t *testing.T) {
	env := newEnv(t, newStore(t), &fakeUpstream{}, 0)

	rec := env.get(t, "/searchResource/Patient?nme=Smith")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeAIX(t, rec)
	assert.Equal(t, "invalid_searchparam", resp.Issues[0].Code)
	assert.Contains(t, resp.FriendlyMessage, "'nme'")
	assert.Contains(t, resp.Issues[0].Diagnostics, "name")
	assert.Zero(t, atomic.LoadInt32(&env.up.calls))
}

func TestSearchResource_InvalidCode(t *testing.T) {
	env := newEnv(t, newStore(t), &fakeUpstream{}, 0)

	rec := env.get(t, "/searchResource/Observation?code="+url.QueryEscape("http://loinc.org|8867-5"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeAIX(t, rec)
	assert.Equal(t, "invalid_code", resp.Issues[0].Code)
	require.NotNil(t, resp.Issues[0].Details)
	assert.Contains(t, *resp.Issues[0].Details, "8867-4")
}

func TestSearchResource_ForwardsQuery(t *testing.T) {
	up := &fakeUpstream{resp: respond(http.StatusOK,
		`{"resourceType":"Bundle","type":"searchset","entry":[{"resource":{"resourceType":"Patient","id":"p1"}}]}`)}
	env := newEnv(t, newStore(t), up, 0)

	rec := env.get(t, "/searchResource/Patient?name=Smith&birthdate=ge1970&birthdate=le1980")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, url.Values{"name": {"Smith"}, "birthdate": {"ge1970", "le1980"}}, up.query)
	assert.NotContains(t, rec.Body.String(), "friendly_message")
}

func TestSearchResource_SoftEmpty(t *testing.T) {
	up := &fakeUpstream{resp: respond(http.StatusOK, `{"resourceType":"Bundle","type":"searchset","total":0}`)}
	env := newEnv(t, newStore(t), up, 0)

	rec := env.get(t, "/searchResource/Observation?code="+url.QueryEscape("http://loinc.org|8867-4")+"&patient=p1")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Bundle", body["resourceType"])
	assert.EqualValues(t, 0, body["total"])
	assert.NotContains(t, body, "entry")
	assert.Equal(t, "No Observation resources matched your search criteria.", body["friendly_message"])
	assert.Contains(t, body["next_steps"], "code: http://loinc.org|8867-4")
	assert.Contains(t, body["next_steps"], "| code | token |")

	issues, ok := body["issues"].([]interface{})
	require.True(t, ok)
	require.Len(t, issues, 1)
	assert.Equal(t, "warning", issues[0].(map[string]interface{})["severity"])

	params, ok := body["supported_params"].([]interface{})
	require.True(t, ok)
	assert.Len(t, params, 6)
}

func TestSearchResource_SoftEmptyStatusIsConfigurable(t *testing.T) {
	up := &fakeUpstream{resp: respond(http.StatusOK, `{"resourceType":"Bundle","entry":[]}`)}
	env := newEnv(t, newStore(t), up, http.StatusNotFound)

	rec := env.get(t, "/searchResource/Patient?name=Nobody")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), `"friendly_message"`)
}

func TestSearchResource_UpstreamRejectsQuery(t *testing.T) {
	up := &fakeUpstream{resp: respond(http.StatusUnprocessableEntity,
		`{"resourceType":"OperationOutcome","issue":[{"severity":"error","code":"not-supported","diagnostics":"Modifier :exact is not supported for gender"}]}`)}
	env := newEnv(t, newStore(t), up, 0)

	rec := env.get(t, "/searchResource/Patient?gender:exact=female")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeAIX(t, rec)
	assert.Equal(t, "Invalid searchparam", resp.Error)
	assert.Equal(t, "Parameter(s) 'gender' are not supported for resource 'Patient'.", resp.FriendlyMessage)
	require.Len(t, resp.Issues, 1)
	assert.Equal(t, "Modifier :exact is not supported for gender", resp.Issues[0].Diagnostics)
}

func TestSearchResource_UpstreamRejectsEmptyQuery(t *testing.T) {
	up := &fakeUpstream{resp: respond(http.StatusBadRequest,
		`{"resourceType":"OperationOutcome","issue":[{"severity":"error","code":"invalid","diagnostics":"A search parameter is required"},{"severity":"warning","code":"processing","details":{"text":"Paging disabled"}}]}`)}
	env := newEnv(t, newStore(t), up, 0)

	rec := env.get(t, "/searchResource/Patient")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeAIX(t, rec)
	assert.Equal(t, "upstream_unexpected", resp.Issues[0].Code)
	assert.Contains(t, env.logs.String(), `"diagnostics":"A search parameter is required; Paging disabled"`)
	assert.Contains(t, env.logs.String(), `"upstream_status":400`)
}

func TestSearchResource_MalformedQuery(t *testing.T) {
	env := newEnv(t, newStore(t), &fakeUpstream{}, 0)
	rec := env.get(t, "/searchResource/Patient?name=%zz")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeAIX(t, rec)
	assert.Equal(t, "Unknown error", resp.Error)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotNil(t, resp.ResourceType)
	assert.Equal(t, "Patient", *resp.ResourceType)
	require.Len(t, resp.Issues, 1)
	assert.Equal(t, "invalid", resp.Issues[0].Code)
	assert.Contains(t, resp.Issues[0].Diagnostics, "malformed query string")
	assert.Zero(t, atomic.LoadInt32(&env.up.calls))
}

func TestUnmatchedRoutes(t *testing.T) {
	env := newEnv(t, newStore(t), &fakeUpstream{}, 0)

	rec := env.get(t, "/readResource/Patient")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	resp := decodeAIX(t, rec)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Unknown error", resp.Error)
	require.Len(t, resp.Issues, 1)
	assert.Equal(t, "not_found", resp.Issues[0].Code)
	assert.Equal(t, "no endpoint matches GET /readResource/Patient", resp.Issues[0].Diagnostics)

	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	rec = httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	resp = decodeAIX(t, rec)
	require.Len(t, resp.Issues, 1)
	assert.Equal(t, "invalid", resp.Issues[0].Code)
}

func TestUnmatchedRoutesBeforeFirstSnapshot(t *testing.T) {
	env := newEnv(t, snapshot.NewStore(), &fakeUpstream{}, 0)

	rec := env.get(t, "/nowhere")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"Not Found"}`, rec.Body.String())
}

func TestRenderingDefectIsLoggedNotLeaked(t *testing.T) {
	store := newStore(t, aix.TemplateRecord{
		ErrorCode:    aix.CodeNotFound,
		Template:     "{resource_type} {patient_name} is gone.",
		Placeholders: []string{"resource_type", "patient_name"},
	})
	up := &fakeUpstream{resp: respond(http.StatusNotFound, ``)}
	env := newEnv(t, store, up, 0)

	rec := env.get(t, "/readResource/Patient/p1")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"message":"internal server error"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "friendly_message")
	assert.Contains(t, env.logs.String(), `"level":"error"`)
	assert.Contains(t, env.logs.String(), "patient_name")
}

func TestNotReady(t *testing.T) {
	env := newEnv(t, snapshot.NewStore(), &fakeUpstream{}, 0)

	for _, target := range []string{"/readResource/Patient/1", "/searchResource/Patient", "/supportedParams/Patient", "/health"} {
		rec := env.get(t, target)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, target)
	}
}

func TestSupportedParams(t *testing.T) {
	env := newEnv(t, newStore(t), &fakeUpstream{}, 0)

	rec := env.get(t, "/supportedParams/Observation")
	require.Equal(t, http.StatusOK, rec.Code)
	var out SupportedParams
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "Observation", out.ResourceType)
	assert.Len(t, out.SupportedParams, 6)
	assert.NotEmpty(t, out.GlobalParams)
	assert.Contains(t, out.Markdown, "| patient | reference |")

	rec = env.get(t, "/supportedParams/Observaton")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_type", decodeAIX(t, rec).Issues[0].Code)
}

func TestCheck(t *testing.T) {
	up := &fakeUpstream{}
	svc := NewService(newStore(t), up, 0, zerolog.Nop())

	res, err := svc.Check("Patient", []validation.Param{{Name: "family", Value: "Smith"}})
	require.NoError(t, err)
	assert.Nil(t, res)

	res, err = svc.Check("Patient", []validation.Param{{Name: "nme", Value: "Smith"}})
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, http.StatusBadRequest, res.Status)
	assert.Equal(t, "invalid_searchparam", res.Error.Issues[0].Code)
	assert.Zero(t, atomic.LoadInt32(&up.calls))

	_, err = NewService(snapshot.NewStore(), up, 0, zerolog.Nop()).Check("Patient", nil)
	assert.ErrorIs(t, err, snapshot.ErrNotReady)
}

func TestHealth(t *testing.T) {
	env := newEnv(t, newStore(t), &fakeUpstream{}, 0)

	rec := env.get(t, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "ok", out["status"])
	assert.EqualValues(t, 1, out["generation"])
	assert.EqualValues(t, 4, out["resource_types"])
	assert.EqualValues(t, 1, out["code_systems"])
}

func TestAdminRefresh(t *testing.T) {
	store := newStore(t)
	logger := zerolog.Nop()
	svc := NewService(store, &fakeUpstream{}, 0, logger)

	t.Run("ok", func(t *testing.T) {
		e := echo.New()
		NewHandler(svc, store, fakeRefresher{store: store}, logger).RegisterRoutes(e.Group(""), e.Group("/admin"))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/refresh", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"generation":1`)
	})

	t.Run("failure", func(t *testing.T) {
		e := echo.New()
		refresher := fakeRefresher{err: capability.ErrMetadataUnavailable}
		NewHandler(svc, store, refresher, logger).RegisterRoutes(e.Group(""), e.Group("/admin"))
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/refresh", nil))
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("no admin group", func(t *testing.T) {
		e := echo.New()
		NewHandler(svc, store, fakeRefresher{store: store}, logger).RegisterRoutes(e.Group(""), nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/refresh", nil))
		assert.NotEqual(t, http.StatusOK, rec.Code)
	})
}

func TestEndToEndWithUpstreamServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", fhirJSON)
		switch r.URL.Path {
		case "/Patient/p1":
			_, _ = w.Write([]byte(`{"resourceType":"Patient","id":"p1"}`))
		case "/Patient":
			_, _ = w.Write([]byte(`{"resourceType":"Bundle","type":"searchset","entry":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	client, err := upstream.New(upstream.Options{BaseURL: srv.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)
	store := newStore(t)
	e := echo.New()
	NewHandler(NewService(store, client, 0, zerolog.Nop()), store, nil, zerolog.Nop()).RegisterRoutes(e.Group(""), nil)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readResource/Patient/p1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"resourceType":"Patient","id":"p1"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readResource/Patient/gone", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "No Patient resource was found with ID 'gone'.")

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/searchResource/Patient?family=Nobody", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"friendly_message":"No Patient resources matched your search criteria."`)
}
