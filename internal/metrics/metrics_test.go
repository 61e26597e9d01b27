package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/maruel/jsondb/internal/tablestore"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	b, err := io.ReadAll(w.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestMetrics(t *testing.T) {
	var _ tablestore.Observer = (*Metrics)(nil)

	m := New(false)
	m.OnLoad(2, 5, nil)
	m.OnMutation(tablestore.OpInsert, "users")
	m.OnMutation(tablestore.OpInsert, "users")
	m.OnMutation(tablestore.OpDelete, "notes")
	m.OnSave(128, 3*time.Millisecond, nil)
	m.OnSave(0, time.Millisecond, errors.New("disk full"))
	m.ObserveRequest(http.MethodGet, "GET /api/users", http.StatusOK, 2*time.Millisecond)

	body := scrape(t, m)
	for _, want := range []string{
		`jsondb_store_loads_total{result="ok"} 1`,
		`jsondb_store_records_loaded 5`,
		`jsondb_store_mutations_total{op="insert",table="users"} 2`,
		`jsondb_store_mutations_total{op="delete",table="notes"} 1`,
		`jsondb_store_saves_total{result="ok"} 1`,
		`jsondb_store_saves_total{result="error"} 1`,
		`jsondb_store_last_save_bytes 128`,
		`jsondb_store_save_duration_seconds_count 1`,
		`jsondb_http_requests_total{method="GET",route="GET /api/users",status="200"} 1`,
		`jsondb_http_request_duration_seconds_count{method="GET",route="GET /api/users"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output is missing %q", want)
		}
	}
	if strings.Contains(body, "go_goroutines") {
		t.Error("runtime collectors registered without withRuntime")
	}
}

func TestRuntimeCollectors(t *testing.T) {
	if body := scrape(t, New(true)); !strings.Contains(body, "go_goroutines") {
		t.Error("go_goroutines missing")
	}
}
