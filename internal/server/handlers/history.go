package handlers

import (
	"context"
	"time"

	"github.com/maruel/jsondb/internal/server/dto"
)

const defaultHistoryLimit = 20

// HistoryHandler lists the revisions of the data file.
type HistoryHandler struct {
	log HistoryLog
}

// NewHistoryHandler creates a new history handler. log may be nil.
func NewHistoryHandler(log HistoryLog) *HistoryHandler {
	return &HistoryHandler{log: log}
}

// History returns the most recent revisions, newest first.
func (h *HistoryHandler) History(ctx context.Context, req *dto.HistoryRequest) (*dto.HistoryResponse, error) {
	if h.log == nil {
		return nil, dto.NotImplemented("history")
	}
	n := req.Limit
	if n == 0 {
		n = defaultHistoryLimit
	}
	commits, err := h.log.Log(ctx, n)
	if err != nil {
		return nil, dto.InternalWithError("failed to read history", err)
	}
	out := make([]dto.CommitResponse, 0, len(commits))
	for _, c := range commits {
		out = append(out, dto.CommitResponse{
			Hash:        c.Hash,
			Message:     c.Message,
			Body:        c.Body,
			Author:      c.Author,
			AuthorEmail: c.AuthorEmail,
			Date:        c.Date.UTC().Format(time.RFC3339),
		})
	}
	return &dto.HistoryResponse{Commits: out}, nil
}
