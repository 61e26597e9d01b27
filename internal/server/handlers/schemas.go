package handlers

import (
	"context"
	"sync"

	"github.com/invopop/jsonschema"

	"github.com/maruel/jsondb/internal/server/dto"
)

// SchemaHandler publishes the JSON Schema of the request bodies.
type SchemaHandler struct {
	schemas func() map[string]any
}

// NewSchemaHandler creates a new schema handler. Schemas are reflected on first
// use.
func NewSchemaHandler() *SchemaHandler {
	return &SchemaHandler{schemas: sync.OnceValue(reflectSchemas)}
}

// Schemas returns the schemas keyed by request type name.
func (h *SchemaHandler) Schemas(ctx context.Context, _ *dto.SchemasRequest) (*dto.SchemasResponse, error) {
	return &dto.SchemasResponse{Schemas: h.schemas()}, nil
}

func reflectSchemas() map[string]any {
	r := &jsonschema.Reflector{Anonymous: true, DoNotReference: true}
	return map[string]any{
		"CreateUserRequest": r.Reflect(&dto.CreateUserRequest{}),
		"UpdateUserRequest": r.Reflect(&dto.UpdateUserRequest{}),
	}
}
