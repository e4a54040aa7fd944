package http

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/gofiber/fiber/v2"
)

// DefaultAPIDocPath is where the API document lives relative to the
// repository root.
const DefaultAPIDocPath = "api/openapi.yaml"

const swaggerUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>PoliceTracker API · Swagger UI</title>
  <link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body style="margin:0">
  <div id="swagger-ui"></div>
  <script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    SwaggerUIBundle({url: '/docs/openapi.json', dom_id: '#swagger-ui', deepLinking: true});
  </script>
</body>
</html>`

// APIDoc is a validated OpenAPI document, kept in both wire formats.
type APIDoc struct {
	Spec *openapi3.T
	YAML []byte
	JSON []byte
}

// LoadAPIDoc reads the document at path and validates it.
func LoadAPIDoc(ctx context.Context, path string) (*APIDoc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read api document: %w", err)
	}

	loader := &openapi3.Loader{Context: ctx, IsExternalRefsAllowed: false}
	spec, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("parse api document: %w", err)
	}
	if err := spec.Validate(ctx); err != nil {
		return nil, fmt.Errorf("validate api document: %w", err)
	}

	js, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("encode api document: %w", err)
	}
	return &APIDoc{Spec: spec, YAML: data, JSON: js}, nil
}

// SetupDocs registers Swagger UI at /docs and the document at
// /docs/openapi.yaml and /docs/openapi.json. Without a document the
// routes answer 404.
func SetupDocs(app *fiber.App, doc *APIDoc) {
	app.Get("/docs", func(c *fiber.Ctx) error {
		if doc == nil {
			return errNotFound(c, "api document not loaded")
		}
		c.Set("Content-Type", "text/html; charset=utf-8")
		return c.SendString(swaggerUIHTML)
	})

	app.Get("/docs/openapi.yaml", func(c *fiber.Ctx) error {
		if doc == nil {
			return errNotFound(c, "api document not loaded")
		}
		c.Set("Content-Type", "application/yaml")
		return c.Send(doc.YAML)
	})

	app.Get("/docs/openapi.json", func(c *fiber.Ctx) error {
		if doc == nil {
			return errNotFound(c, "api document not loaded")
		}
		c.Set("Content-Type", fiber.MIMEApplicationJSON)
		return c.Send(doc.JSON)
	})
}
