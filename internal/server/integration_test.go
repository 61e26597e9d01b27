package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/maruel/jsondb/internal/config"
	"github.com/maruel/jsondb/internal/metrics"
	"github.com/maruel/jsondb/internal/server/dto"
	"github.com/maruel/jsondb/internal/server/handlers"
	"github.com/maruel/jsondb/internal/server/ratelimit"
	"github.com/maruel/jsondb/internal/tablestore"
	"github.com/maruel/ksid"
)

type testEnv struct {
	server *httptest.Server
	store  *tablestore.Store
}

func setupTestEnv(t *testing.T, limits config.RateLimits, opts ...func(*handlers.Config)) *testEnv {
	t.Helper()
	path := filepath.Join(t.TempDir(), "database.json")
	m := metrics.New(false)
	store, err := tablestore.Open(path,
		tablestore.WithLogger(slog.New(slog.DiscardHandler)),
		tablestore.WithObserver(m))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(context.Background()); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	tiers := ratelimit.NewTiers(limits)
	t.Cleanup(tiers.Close)

	svc := &handlers.Services{Store: store}
	cfg := &handlers.Config{Version: "test", MaxRequestBodyBytes: 1024}
	for _, opt := range opts {
		opt(cfg)
	}
	server := httptest.NewServer(NewRouter(svc, cfg, tiers, m))
	t.Cleanup(server.Close)
	return &testEnv{server: server, store: store}
}

// doJSON performs an HTTP request, decodes the JSON response, and returns the status code.
// body may be a string sent verbatim.
func (e *testEnv) doJSON(t *testing.T, method, path string, body, response any) int {
	t.Helper()
	resp := e.do(t, method, path, body)
	data, err := io.ReadAll(resp.Body)
	if closeErr := resp.Body.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	if err != nil {
		t.Fatalf("ReadAll/Close: %v", err)
	}
	if response != nil && len(data) > 0 {
		if err := json.Unmarshal(data, response); err != nil {
			t.Fatalf("Unmarshal response: %v\nBody: %s", err, data)
		}
	}
	return resp.StatusCode
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Marshal request body: %v", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, r)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Do request: %v", err)
	}
	return resp
}

func TestIntegration(t *testing.T) {
	t.Parallel()
	t.Run("Health", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t, config.RateLimits{})
		var health dto.HealthResponse
		if status := env.doJSON(t, http.MethodGet, "/api/health", nil, &health); status != http.StatusOK {
			t.Fatalf("GET /api/health: status %d", status)
		}
		if health.Status != "ok" || health.Version != "test" {
			t.Errorf("health = %+v", health)
		}
	})

	t.Run("Users", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t, config.RateLimits{})

		var created dto.CreateUserResponse
		status := env.doJSON(t, http.MethodPost, "/api/users", map[string]string{"name": "  João Silva ", "email": "joao@email.com"}, &created)
		if status != http.StatusCreated {
			t.Fatalf("POST /api/users: status %d", status)
		}
		if created.Message != "user created" || created.User.Name != "João Silva" || created.User.ID == "" || created.User.CreatedAt == "" {
			t.Fatalf("created = %+v %+v", created, created.User)
		}
		id := created.User.ID

		var got dto.GetUserResponse
		if status := env.doJSON(t, http.MethodGet, "/api/users/"+id, nil, &got); status != http.StatusOK {
			t.Fatalf("GET user: status %d", status)
		}
		if *got.User != *created.User {
			t.Errorf("GET user = %+v, want %+v", got.User, created.User)
		}

		var updated dto.UpdateUserResponse
		if status := env.doJSON(t, http.MethodPut, "/api/users/"+id, map[string]string{"email": "new@email.com"}, &updated); status != http.StatusOK {
			t.Fatalf("PUT user: status %d", status)
		}
		if updated.Message != "user updated" || updated.User.Email != "new@email.com" || updated.User.Name != "João Silva" || updated.User.UpdatedAt == "" {
			t.Errorf("updated = %+v", updated.User)
		}

		var list dto.ListUsersResponse
		if status := env.doJSON(t, http.MethodGet, "/api/users", nil, &list); status != http.StatusOK || len(list.Users) != 1 {
			t.Fatalf("GET users: status %d, %+v", status, list)
		}

		var deleted dto.MessageResponse
		if status := env.doJSON(t, http.MethodDelete, "/api/users/"+id, nil, &deleted); status != http.StatusOK || deleted.Message != "user deleted" {
			t.Fatalf("DELETE user: status %d, %+v", status, deleted)
		}
		var errResp dto.ErrorResponse
		if status := env.doJSON(t, http.MethodGet, "/api/users/"+id, nil, &errResp); status != http.StatusNotFound || errResp.Error.Code != dto.ErrorCodeNotFound {
			t.Errorf("GET deleted user: status %d, %+v", status, errResp)
		}
		if status := env.doJSON(t, http.MethodDelete, "/api/users/"+id, nil, nil); status != http.StatusNotFound {
			t.Errorf("DELETE deleted user: status %d", status)
		}

		if err := env.store.Flush(context.Background()); err != nil {
			t.Fatal(err)
		}
		if n := env.store.Len(handlers.UsersTable); n != 0 {
			t.Errorf("Len(users) = %d", n)
		}
	})

	t.Run("UserErrors", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t, config.RateLimits{})
		missing := ksid.NewID().String()
		tests := []struct {
			name       string
			method     string
			path       string
			body       any
			wantStatus int
			wantCode   dto.ErrorCode
			wantErrors []string
		}{
			{"invalid id", http.MethodGet, "/api/users/abc!", nil, http.StatusBadRequest, dto.ErrorCodeInvalidID, nil},
			{"unknown user", http.MethodGet, "/api/users/" + missing, nil, http.StatusNotFound, dto.ErrorCodeNotFound, nil},
			{"update unknown user", http.MethodPatch, "/api/users/" + missing, map[string]string{"name": "Ana"}, http.StatusNotFound, dto.ErrorCodeNotFound, nil},
			{"empty body", http.MethodPost, "/api/users", nil, http.StatusBadRequest, dto.ErrorCodeValidationFailed, []string{"name is required", "email is required"}},
			{"bad fields", http.MethodPost, "/api/users", map[string]string{"name": "A", "email": "user@"}, http.StatusBadRequest, dto.ErrorCodeValidationFailed, []string{"name must be at least 2 characters", "invalid email format"}},
			{"invalid json", http.MethodPost, "/api/users", `{"name":`, http.StatusBadRequest, dto.ErrorCodeInvalidJSON, nil},
			{"unknown field", http.MethodPost, "/api/users", `{"name":"Ana","email":"a@b.c","age":3}`, http.StatusBadRequest, dto.ErrorCodeInvalidJSON, nil},
			{"too large", http.MethodPost, "/api/users", `{"name":"` + strings.Repeat("a", 2000) + `"}`, http.StatusRequestEntityTooLarge, dto.ErrorCodePayloadTooLarge, nil},
			{"unknown route", http.MethodGet, "/api/nope", nil, http.StatusNotFound, dto.ErrorCodeRouteNotFound, nil},
			{"wrong method", http.MethodPost, "/api/health", nil, http.StatusNotFound, dto.ErrorCodeRouteNotFound, nil},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				var resp struct {
					Error   dto.ErrorDetails `json:"error"`
					Details struct {
						Errors []string `json:"errors"`
					} `json:"details"`
				}
				status := env.doJSON(t, tt.method, tt.path, tt.body, &resp)
				if status != tt.wantStatus {
					t.Errorf("status = %d, want %d", status, tt.wantStatus)
				}
				if resp.Error.Code != tt.wantCode {
					t.Errorf("code = %s, want %s", resp.Error.Code, tt.wantCode)
				}
				if tt.wantErrors != nil && !slices.Equal(resp.Details.Errors, tt.wantErrors) {
					t.Errorf("errors = %v, want %v", resp.Details.Errors, tt.wantErrors)
				}
			})
		}
	})

	t.Run("Tables", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t, config.RateLimits{})

		var created dto.CreateRecordResponse
		if status := env.doJSON(t, http.MethodPost, "/api/tables/notes/records", `{"id": 1, "body": "hi"}`, &created); status != http.StatusCreated {
			t.Fatalf("POST record: status %d", status)
		}
		if status := env.doJSON(t, http.MethodPost, "/api/tables/notes/records", `{"id": "x", "body": "str"}`, nil); status != http.StatusCreated {
			t.Fatalf("POST record: status %d", status)
		}
		if status := env.doJSON(t, http.MethodPost, "/api/tables/notes/records", `{"body": "no id"}`, nil); status != http.StatusBadRequest {
			t.Errorf("POST record without id: status %d", status)
		}
		if status := env.doJSON(t, http.MethodGet, "/api/tables/bad.name/records", nil, nil); status != http.StatusBadRequest {
			t.Errorf("GET bad table: status %d", status)
		}

		var rec dto.RecordResponse
		if status := env.doJSON(t, http.MethodGet, "/api/tables/notes/records/1", nil, &rec); status != http.StatusOK || rec.Record["body"] != "hi" {
			t.Fatalf("GET record 1: status %d, %v", status, rec.Record)
		}
		if status := env.doJSON(t, http.MethodGet, "/api/tables/notes/records/x", nil, &rec); status != http.StatusOK || rec.Record["body"] != "str" {
			t.Fatalf("GET record x: status %d, %v", status, rec.Record)
		}

		var updated dto.UpdateRecordResponse
		if status := env.doJSON(t, http.MethodPut, "/api/tables/notes/records/1", `{"id": 9, "body": "bye"}`, &updated); status != http.StatusOK {
			t.Fatalf("PUT record: status %d", status)
		}
		if updated.Record["id"] != 1.0 || updated.Record["body"] != "bye" {
			t.Errorf("updated = %v", updated.Record)
		}

		var tables dto.ListTablesResponse
		if status := env.doJSON(t, http.MethodGet, "/api/tables", nil, &tables); status != http.StatusOK {
			t.Fatalf("GET tables: status %d", status)
		}
		if want := []dto.TableSummary{{Name: "notes", Count: 2}}; !slices.Equal(tables.Tables, want) {
			t.Errorf("tables = %v, want %v", tables.Tables, want)
		}

		if status := env.doJSON(t, http.MethodDelete, "/api/tables/notes/records/1", nil, nil); status != http.StatusOK {
			t.Errorf("DELETE record: status %d", status)
		}
		if status := env.doJSON(t, http.MethodDelete, "/api/tables/notes/records/1", nil, nil); status != http.StatusNotFound {
			t.Errorf("DELETE deleted record: status %d", status)
		}

		var records dto.ListRecordsResponse
		if status := env.doJSON(t, http.MethodGet, "/api/tables/notes/records", nil, &records); status != http.StatusOK || len(records.Records) != 1 {
			t.Errorf("GET records: status %d, %v", status, records)
		}
		if status := env.doJSON(t, http.MethodGet, "/api/tables/empty/records", nil, &records); status != http.StatusOK || records.Records == nil || len(records.Records) != 0 {
			t.Errorf("GET unknown table: status %d, %#v", status, records.Records)
		}
	})

	t.Run("History disabled", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t, config.RateLimits{})
		var errResp dto.ErrorResponse
		if status := env.doJSON(t, http.MethodGet, "/api/history", nil, &errResp); status != http.StatusNotImplemented || errResp.Error.Code != dto.ErrorCodeNotImplemented {
			t.Errorf("GET history: status %d, %+v", status, errResp)
		}
	})

	t.Run("Schemas", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t, config.RateLimits{})
		var resp struct {
			Schemas map[string]struct {
				Type       string                     `json:"type"`
				Properties map[string]json.RawMessage `json:"properties"`
				Required   []string                   `json:"required"`
			} `json:"schemas"`
		}
		if status := env.doJSON(t, http.MethodGet, "/api/schemas", nil, &resp); status != http.StatusOK {
			t.Fatalf("GET schemas: status %d", status)
		}
		s, ok := resp.Schemas["CreateUserRequest"]
		if !ok {
			t.Fatalf("schemas = %v", resp.Schemas)
		}
		if s.Type != "object" || len(s.Properties) != 2 || !slices.Equal(s.Required, []string{"name", "email"}) {
			t.Errorf("CreateUserRequest schema = %+v", s)
		}
	})

	t.Run("Metrics", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t, config.RateLimits{})
		env.doJSON(t, http.MethodGet, "/api/users", nil, nil)
		resp := env.do(t, http.MethodGet, "/metrics", nil)
		data, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), `jsondb_http_requests_total{method="GET",route="GET /api/users",status="200"} 1`) {
			t.Errorf("metrics output missing request counter:\n%s", data)
		}
	})

	t.Run("RequestID", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t, config.RateLimits{})
		resp := env.do(t, http.MethodGet, "/api/health", nil)
		_ = resp.Body.Close()
		if resp.Header.Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID")
		}
	})

	t.Run("RateLimit", func(t *testing.T) {
		t.Parallel()
		env := setupTestEnv(t, config.RateLimits{WriteRatePerMin: 6})
		body := map[string]string{"name": "Ana", "email": "ana@example.com"}
		resp := env.do(t, http.MethodPost, "/api/users", body)
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusCreated || resp.Header.Get("X-RateLimit-Limit") != "6" {
			t.Fatalf("first write: status %d, limit %q", resp.StatusCode, resp.Header.Get("X-RateLimit-Limit"))
		}
		var errResp dto.ErrorResponse
		if status := env.doJSON(t, http.MethodPost, "/api/users", body, &errResp); status != http.StatusTooManyRequests || errResp.Error.Code != dto.ErrorCodeRateLimitExceeded {
			t.Errorf("second write: status %d, %+v", status, errResp)
		}
		if status := env.doJSON(t, http.MethodGet, "/api/users", nil, nil); status != http.StatusOK {
			t.Errorf("reads are unlimited: status %d", status)
		}
	})

	t.Run("RateLimitForwardedFor", func(t *testing.T) {
		t.Parallel()
		post := func(t *testing.T, env *testEnv, xff string) int {
			t.Helper()
			req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/users",
				strings.NewReader(`{"name": "Ana", "email": "ana@example.com"}`))
			if err != nil {
				t.Fatal(err)
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("X-Forwarded-For", xff)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			_ = resp.Body.Close()
			return resp.StatusCode
		}
		t.Run("ignored by default", func(t *testing.T) {
			env := setupTestEnv(t, config.RateLimits{WriteRatePerMin: 6})
			if status := post(t, env, "203.0.113.1"); status != http.StatusCreated {
				t.Fatalf("first write: status %d", status)
			}
			if status := post(t, env, "203.0.113.2"); status != http.StatusTooManyRequests {
				t.Errorf("rotating X-Forwarded-For: status %d, want 429", status)
			}
		})
		t.Run("trusted", func(t *testing.T) {
			env := setupTestEnv(t, config.RateLimits{WriteRatePerMin: 6}, func(c *handlers.Config) {
				c.TrustProxyHeaders = true
			})
			if status := post(t, env, "203.0.113.1"); status != http.StatusCreated {
				t.Fatalf("first client: status %d", status)
			}
			if status := post(t, env, "203.0.113.2"); status != http.StatusCreated {
				t.Errorf("second client: status %d", status)
			}
			if status := post(t, env, "203.0.113.1"); status != http.StatusTooManyRequests {
				t.Errorf("first client again: status %d, want 429", status)
			}
		})
	})
}
