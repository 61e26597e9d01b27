package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/maruel/jsondb/internal/history"
	"github.com/maruel/jsondb/internal/server/dto"
	"github.com/maruel/jsondb/internal/tablestore"
	"github.com/maruel/ksid"
)

func newStore(t *testing.T) *tablestore.Store {
	t.Helper()
	s, err := tablestore.Open(filepath.Join(t.TempDir(), "db.json"), tablestore.WithLogger(slog.New(slog.DiscardHandler)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s
}

// wantAPIError fails unless err is an *dto.APIError with the given status.
func wantAPIError(t *testing.T, err error, status int) {
	t.Helper()
	var apiErr *dto.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *dto.APIError", err)
	}
	if apiErr.StatusCode() != status {
		t.Errorf("StatusCode() = %d, want %d", apiErr.StatusCode(), status)
	}
}

func TestUserHandler(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	h := NewUserHandler(store)
	h.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	created, err := h.CreateUser(ctx, &dto.CreateUserRequest{Name: "Ana", Email: "ana@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	if created.StatusCode() != http.StatusCreated {
		t.Errorf("StatusCode() = %d", created.StatusCode())
	}
	want := dto.UserResponse{ID: created.User.ID, Name: "Ana", Email: "ana@example.com", CreatedAt: "2026-01-02T03:04:05Z"}
	if *created.User != want {
		t.Errorf("User = %+v, want %+v", *created.User, want)
	}
	id, err := ksid.Parse(created.User.ID)
	if err != nil {
		t.Fatalf("id %q is not a ksid: %v", created.User.ID, err)
	}

	t.Run("GetUser", func(t *testing.T) {
		req := &dto.UserIDRequest{ID: id.String()}
		if err := req.Validate(); err != nil {
			t.Fatal(err)
		}
		got, err := h.GetUser(ctx, req)
		if err != nil {
			t.Fatal(err)
		}
		if *got.User != want {
			t.Errorf("User = %+v, want %+v", *got.User, want)
		}
	})

	t.Run("UpdateUser", func(t *testing.T) {
		name := "Ana Clara"
		req := &dto.UpdateUserRequest{ID: id.String(), Name: &name}
		if err := req.Validate(); err != nil {
			t.Fatal(err)
		}
		got, err := h.UpdateUser(ctx, req)
		if err != nil {
			t.Fatal(err)
		}
		if got.User.Name != name || got.User.Email != "ana@example.com" || got.User.UpdatedAt != "2026-01-02T03:04:05Z" {
			t.Errorf("User = %+v", *got.User)
		}
	})

	t.Run("ListUsers", func(t *testing.T) {
		got, err := h.ListUsers(ctx, &dto.ListUsersRequest{})
		if err != nil {
			t.Fatal(err)
		}
		if len(got.Users) != 1 || got.Users[0].Name != "Ana Clara" {
			t.Errorf("Users = %+v", got.Users)
		}
	})

	t.Run("DeleteUser", func(t *testing.T) {
		req := &dto.UserIDRequest{ID: id.String()}
		if err := req.Validate(); err != nil {
			t.Fatal(err)
		}
		if _, err := h.DeleteUser(ctx, req); err != nil {
			t.Fatal(err)
		}
		_, err := h.DeleteUser(ctx, req)
		wantAPIError(t, err, http.StatusNotFound)
		_, err = h.GetUser(ctx, req)
		wantAPIError(t, err, http.StatusNotFound)
	})

	t.Run("foreign rows", func(t *testing.T) {
		store.Insert(UsersTable, tablestore.Record{"id": 7, "name": 3})
		got, err := h.ListUsers(ctx, &dto.ListUsersRequest{})
		if err != nil {
			t.Fatal(err)
		}
		if len(got.Users) != 1 || got.Users[0] != (dto.UserResponse{}) {
			t.Errorf("Users = %+v", got.Users)
		}
	})
}

func TestTableHandler(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	h := NewTableHandler(store)

	if _, err := h.CreateRecord(ctx, &dto.CreateRecordRequest{Table: "t", Record: map[string]any{"id": 1.0, "v": "a"}}); err != nil {
		t.Fatal(err)
	}
	if _, err := h.CreateRecord(ctx, &dto.CreateRecordRequest{Table: "t", Record: map[string]any{"id": 1.0, "v": "dup"}}); err != nil {
		t.Fatal(err)
	}

	t.Run("first match wins", func(t *testing.T) {
		got, err := h.GetRecord(ctx, &dto.RecordRequest{Table: "t", ID: "1"})
		if err != nil {
			t.Fatal(err)
		}
		if got.Record["v"] != "a" {
			t.Errorf("Record = %v", got.Record)
		}
	})

	t.Run("string path id does not match numbers", func(t *testing.T) {
		_, err := h.GetRecord(ctx, &dto.RecordRequest{Table: "t", ID: "one"})
		wantAPIError(t, err, http.StatusNotFound)
	})

	t.Run("update keeps id", func(t *testing.T) {
		got, err := h.UpdateRecord(ctx, &dto.UpdateRecordRequest{Table: "t", ID: "1", Patch: map[string]any{"id": 2.0, "v": "b"}})
		if err != nil {
			t.Fatal(err)
		}
		if got.Record["id"] != 1.0 || got.Record["v"] != "b" {
			t.Errorf("Record = %v", got.Record)
		}
		_, err = h.UpdateRecord(ctx, &dto.UpdateRecordRequest{Table: "t", ID: "5", Patch: map[string]any{}})
		wantAPIError(t, err, http.StatusNotFound)
	})

	t.Run("list", func(t *testing.T) {
		tables, err := h.ListTables(ctx, &dto.ListTablesRequest{})
		if err != nil {
			t.Fatal(err)
		}
		if len(tables.Tables) != 1 || tables.Tables[0] != (dto.TableSummary{Name: "t", Count: 2}) {
			t.Errorf("Tables = %v", tables.Tables)
		}
		recs, err := h.ListRecords(ctx, &dto.TableRequest{Table: "t"})
		if err != nil {
			t.Fatal(err)
		}
		if len(recs.Records) != 2 || recs.Records[1]["v"] != "dup" {
			t.Errorf("Records = %v", recs.Records)
		}
	})

	t.Run("delete removes first match only", func(t *testing.T) {
		if _, err := h.DeleteRecord(ctx, &dto.RecordRequest{Table: "t", ID: "1"}); err != nil {
			t.Fatal(err)
		}
		got, err := h.GetRecord(ctx, &dto.RecordRequest{Table: "t", ID: "1"})
		if err != nil {
			t.Fatal(err)
		}
		if got.Record["v"] != "dup" {
			t.Errorf("Record = %v", got.Record)
		}
	})
}

type fakeHistory struct {
	commits []history.Commit
	err     error
	n       int
}

func (f *fakeHistory) Log(_ context.Context, n int) ([]history.Commit, error) {
	f.n = n
	return f.commits, f.err
}

func TestHistoryHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled", func(t *testing.T) {
		_, err := NewHistoryHandler(nil).History(ctx, &dto.HistoryRequest{})
		wantAPIError(t, err, http.StatusNotImplemented)
	})

	t.Run("lists", func(t *testing.T) {
		f := &fakeHistory{commits: []history.Commit{{
			Hash: "abc", Message: "Update database.json", Body: "insert users", Author: "jsondb",
			AuthorEmail: "jsondb@localhost", Date: time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
		}}}
		got, err := NewHistoryHandler(f).History(ctx, &dto.HistoryRequest{})
		if err != nil {
			t.Fatal(err)
		}
		if f.n != defaultHistoryLimit {
			t.Errorf("limit = %d, want %d", f.n, defaultHistoryLimit)
		}
		want := dto.CommitResponse{
			Hash: "abc", Message: "Update database.json", Body: "insert users", Author: "jsondb",
			AuthorEmail: "jsondb@localhost", Date: "2026-03-04T05:06:07Z",
		}
		if len(got.Commits) != 1 || got.Commits[0] != want {
			t.Errorf("Commits = %+v", got.Commits)
		}
		if _, err := NewHistoryHandler(f).History(ctx, &dto.HistoryRequest{Limit: 3}); err != nil || f.n != 3 {
			t.Errorf("limit = %d, err = %v", f.n, err)
		}
	})

	t.Run("error", func(t *testing.T) {
		_, err := NewHistoryHandler(&fakeHistory{err: errors.New("broken")}).History(ctx, &dto.HistoryRequest{})
		wantAPIError(t, err, http.StatusInternalServerError)
	})
}

func TestSchemaHandler(t *testing.T) {
	got, err := NewSchemaHandler().Schemas(context.Background(), &dto.SchemasRequest{})
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"CreateUserRequest", "UpdateUserRequest"} {
		if got.Schemas[name] == nil {
			t.Errorf("missing schema %s", name)
		}
	}
}
