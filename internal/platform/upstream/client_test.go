package upstream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Options{BaseURL: srv.URL + "/", Timeout: 2 * time.Second})
	require.NoError(t, err)
	return c, srv
}

func TestNew_InvalidBaseURL(t *testing.T) {
	_, err := New(Options{BaseURL: ""})
	assert.Error(t, err)
	_, err = New(Options{BaseURL: "not a url"})
	assert.Error(t, err)
}

func TestClient_Read(t *testing.T) {
	c, srv := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Patient/S9X7YQZ1", r.URL.Path)
		assert.Equal(t, fhirJSON, r.Header.Get("Accept"))
		w.Header().Set("Content-Type", fhirJSON)
		w.Header().Set("ETag", `W/"3"`)
		_, _ = w.Write([]byte(`{"resourceType":"Patient","id":"S9X7YQZ1"}`))
	})
	assert.Equal(t, srv.URL, c.BaseURL())

	resp, err := c.Read(context.Background(), "Patient", "S9X7YQZ1")
	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.Equal(t, `W/"3"`, resp.Header.Get("ETag"))
	assert.JSONEq(t, `{"resourceType":"Patient","id":"S9X7YQZ1"}`, string(resp.Body))
}

func TestClient_SearchPassesQuery(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Observation", r.URL.Path)
		assert.Equal(t, "http://loinc.org|8867-4", r.URL.Query().Get("code"))
		assert.Equal(t, []string{"ge2020", "le2021"}, r.URL.Query()["date"])
		_, _ = w.Write([]byte(`{"resourceType":"Bundle","entry":[]}`))
	})

	resp, err := c.Search(context.Background(), "Observation", url.Values{
		"code": {"http://loinc.org|8867-4"},
		"date": {"ge2020", "le2021"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestClient_ErrorStatusIsAResponse(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"resourceType":"OperationOutcome","issue":[{"severity":"error","code":"not-found"}]}`))
	})

	resp, err := c.Read(context.Background(), "Patient", "missing")
	require.NoError(t, err)
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := New(Options{BaseURL: base, Timeout: time.Second})
	require.NoError(t, err)
	_, err = c.Read(context.Background(), "Patient", "1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnreachable)

	var uerr *url.Error
	assert.ErrorAs(t, err, &uerr)
}

func TestClient_RetriesTransportErrorsOnly(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := New(Options{BaseURL: srv.URL, Retries: 2, Timeout: time.Second})
	require.NoError(t, err)
	resp, err := c.Read(context.Background(), "Patient", "1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestClient_FetchCapability(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/metadata":
			_, _ = w.Write([]byte(`{"resourceType":"CapabilityStatement"}`))
		case "/ValueSet/$expand":
			if r.URL.Query().Get("url") != "http://loinc.org/vs" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			_, _ = w.Write([]byte(`{"resourceType":"ValueSet"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})

	doc, err := c.FetchCapability(context.Background())
	require.NoError(t, err)
	assert.Contains(t, string(doc), "CapabilityStatement")

	vs, err := c.ExpandValueSet(context.Background(), "http://loinc.org/vs")
	require.NoError(t, err)
	assert.Contains(t, string(vs), "ValueSet")

	_, err = c.ExpandValueSet(context.Background(), "http://other")
	assert.Error(t, err)
}

func TestClient_FetchCapabilityErrorStatus(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := c.FetchCapability(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
}

func TestParseOutcome(t *testing.T) {
	o, ok := ParseOutcome([]byte(`{"resourceType":"OperationOutcome","issue":[
		{"severity":"error","code":"invalid","diagnostics":"Unknown search parameter 'nme'"},
		{"severity":"warning","code":"processing","details":{"text":"Ignored _foo"}}
	]}`))
	require.True(t, ok)
	assert.True(t, o.HasCode("value", "invalid"))
	assert.False(t, o.HasCode("not-found"))
	assert.Equal(t, "Unknown search parameter 'nme'; Ignored _foo", o.Diagnostics())

	for _, body := range []string{
		`{"resourceType":"Patient"}`,
		`{"resourceType":"OperationOutcome","issue":[]}`,
		`<html>`,
	} {
		_, ok := ParseOutcome([]byte(body))
		assert.False(t, ok, body)
	}
}

func TestForwardHeaders(t *testing.T) {
	in := http.Header{
		"Content-Type":      {fhirJSON},
		"Etag":              {`W/"1"`},
		"Connection":        {"keep-alive"},
		"Transfer-Encoding": {"chunked"},
		"Content-Length":    {"42"},
		"X-Request-Id":      {"abc"},
	}
	out := ForwardHeaders(in)
	assert.Equal(t, http.Header{
		"Content-Type": {fhirJSON},
		"Etag":         {`W/"1"`},
		"X-Request-Id": {"abc"},
	}, out)

	out["Etag"][0] = "changed"
	assert.Equal(t, `W/"1"`, in["Etag"][0])
}
