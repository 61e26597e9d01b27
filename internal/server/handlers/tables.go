// Serves generic access to any table.

package handlers

import (
	"context"

	"github.com/maruel/jsondb/internal/server/dto"
	"github.com/maruel/jsondb/internal/tablestore"
)

// TableHandler handles requests on arbitrary tables.
type TableHandler struct {
	store Store
}

// NewTableHandler creates a new table handler.
func NewTableHandler(store Store) *TableHandler {
	return &TableHandler{store: store}
}

// ListTables returns every table with its record count.
func (h *TableHandler) ListTables(ctx context.Context, _ *dto.ListTablesRequest) (*dto.ListTablesResponse, error) {
	names := h.store.Tables()
	out := make([]dto.TableSummary, 0, len(names))
	for _, n := range names {
		out = append(out, dto.TableSummary{Name: n, Count: h.store.Len(n)})
	}
	return &dto.ListTablesResponse{Tables: out}, nil
}

// ListRecords returns the records of a table. An unknown table is empty.
func (h *TableHandler) ListRecords(ctx context.Context, req *dto.TableRequest) (*dto.ListRecordsResponse, error) {
	return &dto.ListRecordsResponse{Table: req.Table, Records: toMaps(h.store.Select(req.Table))}, nil
}

// GetRecord returns the first record with the requested id.
func (h *TableHandler) GetRecord(ctx context.Context, req *dto.RecordRequest) (*dto.RecordResponse, error) {
	r, ok := h.store.FindByID(req.Table, req.Key())
	if !ok {
		return nil, dto.NotFound("record")
	}
	return &dto.RecordResponse{Record: r}, nil
}

// CreateRecord appends the body to the table, creating the table if needed.
func (h *TableHandler) CreateRecord(ctx context.Context, req *dto.CreateRecordRequest) (*dto.CreateRecordResponse, error) {
	r := h.store.Insert(req.Table, req.Record)
	return &dto.CreateRecordResponse{Message: "record created", Record: r}, nil
}

// UpdateRecord merges the body into the first record with the requested id.
// The id itself cannot be changed.
func (h *TableHandler) UpdateRecord(ctx context.Context, req *dto.UpdateRecordRequest) (*dto.UpdateRecordResponse, error) {
	delete(req.Patch, tablestore.IDField)
	r, ok := h.store.Update(req.Table, req.Key(), req.Patch)
	if !ok {
		return nil, dto.NotFound("record")
	}
	return &dto.UpdateRecordResponse{Message: "record updated", Record: r}, nil
}

// DeleteRecord removes the first record with the requested id.
func (h *TableHandler) DeleteRecord(ctx context.Context, req *dto.RecordRequest) (*dto.MessageResponse, error) {
	if !h.store.Delete(req.Table, req.Key()) {
		return nil, dto.NotFound("record")
	}
	return &dto.MessageResponse{Message: "record deleted"}, nil
}

func toMaps(rows []tablestore.Record) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}
