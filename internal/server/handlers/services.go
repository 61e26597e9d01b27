// Defines the dependencies shared by handlers.

package handlers

import (
	"context"

	"github.com/maruel/jsondb/internal/history"
	"github.com/maruel/jsondb/internal/tablestore"
)

// Store is the part of *tablestore.Store the handlers use.
type Store interface {
	Select(table string) []tablestore.Record
	Insert(table string, record tablestore.Record) tablestore.Record
	Update(table string, id any, patch tablestore.Record) (tablestore.Record, bool)
	Delete(table string, id any) bool
	FindByID(table string, id any) (tablestore.Record, bool)
	Tables() []string
	Len(table string) int
}

// HistoryLog lists revisions of the data file.
type HistoryLog interface {
	Log(ctx context.Context, n int) ([]history.Commit, error)
}

// Services holds all service dependencies for handlers.
type Services struct {
	Store   Store
	History HistoryLog // nil when history is disabled
}

// Config holds configuration values needed by handlers.
type Config struct {
	Version             string
	MaxRequestBodyBytes int64
	// TrustProxyHeaders takes the client address from X-Forwarded-For and
	// X-Real-IP.
	TrustProxyHeaders bool
}
