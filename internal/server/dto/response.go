package dto

import "net/http"

// StatusCoder is implemented by responses that are not sent with 200 OK.
type StatusCoder interface {
	StatusCode() int
}

// --- Health ---

// HealthResponse is a response containing server health status.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// --- Users ---

// UserResponse is the API representation of a user.
type UserResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// ListUsersResponse is a response containing every user.
type ListUsersResponse struct {
	Users []UserResponse `json:"users"`
}

// GetUserResponse is a response containing one user.
type GetUserResponse struct {
	User *UserResponse `json:"user"`
}

// CreateUserResponse is a response from creating a user.
type CreateUserResponse struct {
	Message string        `json:"message"`
	User    *UserResponse `json:"user"`
}

// StatusCode implements StatusCoder.
func (r *CreateUserResponse) StatusCode() int {
	return http.StatusCreated
}

// UpdateUserResponse is a response from updating a user.
type UpdateUserResponse struct {
	Message string        `json:"message"`
	User    *UserResponse `json:"user"`
}

// MessageResponse is a response carrying only a message.
type MessageResponse struct {
	Message string `json:"message"`
}

// --- Tables ---

// TableSummary describes one table.
type TableSummary struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ListTablesResponse is a response containing every table.
type ListTablesResponse struct {
	Tables []TableSummary `json:"tables"`
}

// ListRecordsResponse is a response containing the records of a table.
type ListRecordsResponse struct {
	Table   string           `json:"table"`
	Records []map[string]any `json:"records"`
}

// RecordResponse is a response containing one record.
type RecordResponse struct {
	Record map[string]any `json:"record"`
}

// CreateRecordResponse is a response from appending a record.
type CreateRecordResponse struct {
	Message string         `json:"message"`
	Record  map[string]any `json:"record"`
}

// StatusCode implements StatusCoder.
func (r *CreateRecordResponse) StatusCode() int {
	return http.StatusCreated
}

// UpdateRecordResponse is a response from updating a record.
type UpdateRecordResponse struct {
	Message string         `json:"message"`
	Record  map[string]any `json:"record"`
}

// --- Schemas ---

// SchemasResponse maps request type names to their JSON Schema.
type SchemasResponse struct {
	Schemas map[string]any `json:"schemas"`
}

// --- History ---

// CommitResponse describes one revision of the data file.
type CommitResponse struct {
	Hash        string `json:"hash"`
	Message     string `json:"message"`
	Body        string `json:"body,omitempty"`
	Author      string `json:"author"`
	AuthorEmail string `json:"author_email"`
	Date        string `json:"date"`
}

// HistoryResponse lists recent revisions, newest first.
type HistoryResponse struct {
	Commits []CommitResponse `json:"commits"`
}
