// Package openapi describes the proxy's HTTP surface as an OpenAPI 3.0
// document. Paths are generated per resource type from the current
// snapshot, so the document always matches what the proxy accepts.
package openapi

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"gopkg.in/yaml.v3"

	"github.com/fhirnudge/nudge/internal/domain/capability"
	"github.com/fhirnudge/nudge/internal/domain/snapshot"
)

const fhirJSON = "application/fhir+json"

// Generator builds the OpenAPI document from the snapshot store.
type Generator struct {
	store   *snapshot.Store
	version string
	baseURL string
}

// NewGenerator creates a new OpenAPI document generator.
func NewGenerator(store *snapshot.Store, version, baseURL string) *Generator {
	return &Generator{store: store, version: version, baseURL: baseURL}
}

// GenerateSpec produces the OpenAPI 3.0 document as a map. It fails with
// snapshot.ErrNotReady until the first snapshot is published.
func (g *Generator) GenerateSpec() (map[string]interface{}, error) {
	snap := g.store.Load()
	if snap == nil {
		return nil, snapshot.ErrNotReady
	}
	index := snap.Index
	resourceTypes := index.ResourceTypes()
	globals := index.GlobalParams()

	paths := make(map[string]interface{}, 2*len(resourceTypes)+3)
	for _, rt := range resourceTypes {
		paths["/readResource/"+rt+"/{id}"] = map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Read " + rt,
				"operationId": "read" + rt,
				"tags":        []string{rt},
				"parameters": []map[string]interface{}{
					{
						"name":        "id",
						"in":          "path",
						"required":    true,
						"description": "Logical id: 1-64 characters from A-Z, a-z, 0-9, '-' and '.'",
						"schema":      map[string]interface{}{"type": "string", "pattern": `^[A-Za-z0-9\-\.]{1,64}$`},
					},
				},
				"responses": map[string]interface{}{
					"200": buildResponseWithSchema("The resource as returned by the FHIR server", fhirJSON, "#/components/schemas/Resource"),
					"400": aixResponse("The id is malformed"),
					"404": aixResponse("No resource with this id"),
					"502": aixResponse("The FHIR server failed or could not be reached"),
				},
			},
		}

		paths["/searchResource/"+rt] = map[string]interface{}{
			"get": map[string]interface{}{
				"summary":     "Search " + rt,
				"operationId": "search" + rt,
				"tags":        []string{rt},
				"description": "A search that matches nothing returns the Bundle with friendly_message, next_steps and issues added.",
				"parameters":  buildSearchParameters(index.SupportedParams(rt), globals),
				"responses": map[string]interface{}{
					"200": buildResponseWithSchema("Search results Bundle", fhirJSON, "#/components/schemas/Bundle"),
					"400": aixResponse("Unknown parameter, unknown code or malformed query"),
					"502": aixResponse("The FHIR server failed or could not be reached"),
				},
			},
		}
	}

	paths["/supportedParams/{resource}"] = map[string]interface{}{
		"get": map[string]interface{}{
			"summary":     "List the search parameters of a resource type",
			"operationId": "supportedParams",
			"tags":        []string{"reference"},
			"parameters": []map[string]interface{}{
				{
					"name":     "resource",
					"in":       "path",
					"required": true,
					"schema":   map[string]interface{}{"type": "string", "enum": resourceTypes},
				},
			},
			"responses": map[string]interface{}{
				"200": buildResponseWithSchema("Supported parameters", echo.MIMEApplicationJSON, "#/components/schemas/SupportedParams"),
				"400": aixResponse("Unknown resource type"),
			},
		},
	}
	paths["/health"] = map[string]interface{}{
		"get": map[string]interface{}{
			"summary":     "Snapshot status",
			"operationId": "health",
			"tags":        []string{"ops"},
			"responses": map[string]interface{}{
				"200": map[string]interface{}{"description": "Metadata loaded"},
				"503": map[string]interface{}{"description": "Metadata not loaded yet"},
			},
		},
	}
	paths["/admin/refresh"] = map[string]interface{}{
		"post": map[string]interface{}{
			"summary":     "Reload server metadata, code systems and templates",
			"operationId": "refresh",
			"tags":        []string{"ops"},
			"security":    []map[string][]string{{"bearerAuth": {}}},
			"responses": map[string]interface{}{
				"200": map[string]interface{}{"description": "New snapshot published"},
				"401": map[string]interface{}{"description": "Missing or invalid token"},
				"403": map[string]interface{}{"description": "Token lacks the admin role"},
				"502": map[string]interface{}{"description": "Refresh failed, previous snapshot kept"},
			},
		},
	}

	spec := map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "FHIR Nudge Proxy",
			"version":     g.version,
			"description": "Read and search a FHIR R4 server. Invalid requests are answered with an AIX error object that explains how to fix them.",
		},
		"paths": paths,
		"components": map[string]interface{}{
			"schemas": buildComponentSchemas(),
			"securitySchemes": map[string]interface{}{
				"bearerAuth": map[string]interface{}{"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
			},
		},
	}
	if g.baseURL != "" {
		spec["servers"] = []map[string]string{{"url": g.baseURL}}
	}
	return spec, nil
}

// buildSearchParameters builds the OpenAPI parameter array for a search:
// the type's own parameters first, then the server-wide ones.
func buildSearchParameters(params, globals []capability.Param) []map[string]interface{} {
	result := make([]map[string]interface{}, 0, len(params)+len(globals))
	seen := make(map[string]bool, len(params))
	for _, p := range params {
		seen[p.Name] = true
		result = append(result, queryParameter(p))
	}
	for _, p := range globals {
		if !seen[p.Name] {
			result = append(result, queryParameter(p))
		}
	}
	return result
}

func queryParameter(p capability.Param) map[string]interface{} {
	out := map[string]interface{}{
		"name":   p.Name,
		"in":     "query",
		"schema": fhirSearchParamSchema(p.Type),
	}
	if p.Documentation != "" {
		out["description"] = p.Documentation
	}
	if p.Example != "" {
		out["example"] = p.Example
	}
	return out
}

// fhirSearchParamSchema maps a FHIR search parameter type to an OpenAPI schema.
func fhirSearchParamSchema(fhirType string) map[string]interface{} {
	switch fhirType {
	case "number":
		return map[string]interface{}{"type": "string", "pattern": `^(eq|ne|gt|lt|ge|le|sa|eb|ap)?-?[0-9.]+$`}
	case "uri":
		return map[string]interface{}{"type": "string", "format": "uri"}
	default:
		// date, string, token, reference, quantity, composite, special
		return map[string]interface{}{"type": "string"}
	}
}

func buildResponseWithSchema(description, contentType, schemaRef string) map[string]interface{} {
	return map[string]interface{}{
		"description": description,
		"content": map[string]interface{}{
			contentType: map[string]interface{}{
				"schema": map[string]interface{}{"$ref": schemaRef},
			},
		},
	}
}

func aixResponse(description string) map[string]interface{} {
	return buildResponseWithSchema(description, echo.MIMEApplicationJSON, "#/components/schemas/AIXError")
}

func nullableString() map[string]interface{} {
	return map[string]interface{}{"type": "string", "nullable": true}
}

func buildComponentSchemas() map[string]interface{} {
	return map[string]interface{}{
		"Resource": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"resourceType": map[string]interface{}{"type": "string"},
				"id":           map[string]interface{}{"type": "string"},
			},
			"required":             []string{"resourceType"},
			"additionalProperties": true,
		},
		"Bundle": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"resourceType": map[string]interface{}{"type": "string", "enum": []string{"Bundle"}},
				"type":         map[string]interface{}{"type": "string"},
				"total":        map[string]interface{}{"type": "integer", "minimum": 0},
				"entry": map[string]interface{}{
					"type":  "array",
					"items": map[string]interface{}{"$ref": "#/components/schemas/BundleEntry"},
				},
				"friendly_message": map[string]interface{}{"type": "string", "description": "Present when the search matched nothing"},
				"next_steps":       map[string]interface{}{"type": "string", "description": "Present when the search matched nothing"},
				"issues": map[string]interface{}{
					"type":  "array",
					"items": map[string]interface{}{"$ref": "#/components/schemas/AIXIssue"},
				},
			},
			"additionalProperties": true,
		},
		"BundleEntry": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"fullUrl":  map[string]interface{}{"type": "string", "format": "uri"},
				"resource": map[string]interface{}{"$ref": "#/components/schemas/Resource"},
			},
		},
		"AIXIssue": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"code":        map[string]interface{}{"type": "string"},
				"diagnostics": map[string]interface{}{"type": "string"},
				"severity":    map[string]interface{}{"type": "string", "enum": []string{"error", "warning"}},
				"details":     nullableString(),
			},
			"required": []string{"code", "diagnostics", "severity", "details"},
		},
		"AIXError": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"error":            map[string]interface{}{"type": "string"},
				"friendly_message": map[string]interface{}{"type": "string"},
				"next_steps":       nullableString(),
				"resource_type":    nullableString(),
				"resource_id":      nullableString(),
				"status_code":      map[string]interface{}{"type": "integer"},
				"issues": map[string]interface{}{
					"type":  "array",
					"items": map[string]interface{}{"$ref": "#/components/schemas/AIXIssue"},
				},
			},
			"required": []string{"error", "friendly_message", "next_steps", "resource_type", "resource_id", "status_code", "issues"},
		},
		"Param": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"name":          map[string]interface{}{"type": "string"},
				"type":          map[string]interface{}{"type": "string"},
				"documentation": map[string]interface{}{"type": "string"},
				"example":       map[string]interface{}{"type": "string"},
			},
		},
		"SupportedParams": map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"resource_type": map[string]interface{}{"type": "string"},
				"supported_params": map[string]interface{}{
					"type":  "array",
					"items": map[string]interface{}{"$ref": "#/components/schemas/Param"},
				},
				"global_params": map[string]interface{}{
					"type":  "array",
					"items": map[string]interface{}{"$ref": "#/components/schemas/Param"},
				},
				"markdown": map[string]interface{}{"type": "string"},
			},
		},
	}
}

// ── Swagger UI ──────────────────────────────────────────────────────────

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>FHIR Nudge Proxy - Swagger UI</title>
  <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" >
  <style>
    html { box-sizing: border-box; overflow-y: scroll; }
    *, *:before, *:after { box-sizing: inherit; }
    body { margin: 0; background: #fafafa; }
  </style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({
      url: "/openapi.json",
      dom_id: '#swagger-ui',
      deepLinking: true,
      presets: [
        SwaggerUIBundle.presets.apis,
        SwaggerUIBundle.SwaggerUIStandalonePreset
      ],
      layout: "BaseLayout"
    })
  </script>
</body>
</html>`

// RegisterRoutes registers the OpenAPI endpoints.
func (g *Generator) RegisterRoutes(group *echo.Group) {
	group.GET("/openapi.json", func(c echo.Context) error {
		spec, err := g.GenerateSpec()
		if err != nil {
			return specError(err)
		}
		return c.JSON(http.StatusOK, spec)
	})
	group.GET("/openapi.yaml", func(c echo.Context) error {
		spec, err := g.GenerateSpec()
		if err != nil {
			return specError(err)
		}
		out, err := yaml.Marshal(spec)
		if err != nil {
			return err
		}
		return c.Blob(http.StatusOK, "application/yaml", out)
	})
	group.GET("/docs", func(c echo.Context) error {
		return c.HTML(http.StatusOK, swaggerUIHTML)
	})
}

func specError(err error) error {
	if errors.Is(err, snapshot.ErrNotReady) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "metadata not loaded yet")
	}
	return err
}
