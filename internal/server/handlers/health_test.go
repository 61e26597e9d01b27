package handlers

import (
	"context"
	"testing"

	"github.com/maruel/jsondb/internal/server/dto"
)

func TestHealthHandler_Health(t *testing.T) {
	for _, version := range []string{"1.0.0", "devel", ""} {
		t.Run(version, func(t *testing.T) {
			resp, err := NewHealthHandler(version).Health(context.Background(), &dto.HealthRequest{})
			if err != nil {
				t.Fatalf("Health() error = %v", err)
			}
			if resp.Status != "ok" {
				t.Errorf("Status = %q, want %q", resp.Status, "ok")
			}
			if resp.Version != version {
				t.Errorf("Version = %q, want %q", resp.Version, version)
			}
		})
	}
}
