package dto

import (
	"encoding/json"
	"strings"

	"github.com/maruel/jsondb/internal/tablestore"
	"github.com/maruel/ksid"
)

// --- Health ---

// HealthRequest is a request to check server health.
type HealthRequest struct{}

// Validate is a no-op for HealthRequest.
func (r *HealthRequest) Validate() error {
	return nil
}

// --- Users ---

// ListUsersRequest is a request to list every user.
type ListUsersRequest struct{}

// Validate is a no-op for ListUsersRequest.
func (r *ListUsersRequest) Validate() error {
	return nil
}

// CreateUserRequest is a request to create a user.
type CreateUserRequest struct {
	Name  string `json:"name" validate:"required,min=2,max=100,personname" jsonschema:"description=Full name,minLength=2,maxLength=100"`
	Email string `json:"email" validate:"required,mailbox,nodoubledot,max=254" jsonschema:"description=Email address,maxLength=254"`
}

// Validate trims the fields and checks them.
func (r *CreateUserRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	return validateStruct(r)
}

// UserIDRequest is a request addressing one user.
type UserIDRequest struct {
	ID string `path:"id" json:"-"`

	id ksid.ID
}

// Validate checks that the id is a valid user id.
func (r *UserIDRequest) Validate() error {
	id, err := parseUserID(r.ID)
	if err != nil {
		return err
	}
	r.id = id
	return nil
}

// UserID returns the parsed id. Only valid after Validate succeeded.
func (r *UserIDRequest) UserID() ksid.ID {
	return r.id
}

// UpdateUserRequest is a request to update a user. Absent fields are kept.
type UpdateUserRequest struct {
	ID    string  `path:"id" json:"-"`
	Name  *string `json:"name,omitempty" validate:"omitnil,min=2,max=100,personname" jsonschema:"description=New full name,minLength=2,maxLength=100"`
	Email *string `json:"email,omitempty" validate:"omitnil,mailbox,nodoubledot,max=254" jsonschema:"description=New email address,maxLength=254"`

	id ksid.ID
}

// Validate checks the id and every field present.
func (r *UpdateUserRequest) Validate() error {
	id, err := parseUserID(r.ID)
	if err != nil {
		return err
	}
	r.id = id
	if r.Name == nil && r.Email == nil {
		return ValidationFailed([]string{"at least one of name or email is required"})
	}
	if r.Name != nil {
		*r.Name = strings.TrimSpace(*r.Name)
	}
	if r.Email != nil {
		*r.Email = strings.TrimSpace(*r.Email)
	}
	return validateStruct(r)
}

// UserID returns the parsed id. Only valid after Validate succeeded.
func (r *UpdateUserRequest) UserID() ksid.ID {
	return r.id
}

func parseUserID(s string) (ksid.ID, error) {
	if s == "" {
		return 0, MissingField("id")
	}
	id, err := ksid.Parse(s)
	if err != nil || id.IsZero() {
		return 0, InvalidID(s)
	}
	return id, nil
}

// --- Tables ---

// ListTablesRequest is a request to list the tables.
type ListTablesRequest struct{}

// Validate is a no-op for ListTablesRequest.
func (r *ListTablesRequest) Validate() error {
	return nil
}

// TableRequest is a request addressing a whole table.
type TableRequest struct {
	Table string `path:"table" json:"-"`
}

// Validate checks the table name.
func (r *TableRequest) Validate() error {
	return validateTable(r.Table)
}

// RecordRequest is a request addressing one record of a table.
type RecordRequest struct {
	Table string `path:"table" json:"-"`
	ID    string `path:"id" json:"-"`
}

// Validate checks the table name and that an id is present.
func (r *RecordRequest) Validate() error {
	if err := validateTable(r.Table); err != nil {
		return err
	}
	if r.ID == "" {
		return MissingField("id")
	}
	return nil
}

// Key returns the id to look up. See [PathID].
func (r *RecordRequest) Key() any {
	return PathID(r.ID)
}

// CreateRecordRequest is a request to append a record. The body is the
// record itself.
type CreateRecordRequest struct {
	Table  string         `path:"table" json:"-"`
	Record map[string]any `json:"-"`
}

// UnmarshalJSON decodes the body into Record.
func (r *CreateRecordRequest) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &r.Record)
}

// Validate checks the table name and the record id.
func (r *CreateRecordRequest) Validate() error {
	if err := validateTable(r.Table); err != nil {
		return err
	}
	if r.Record == nil {
		return ValidationFailed([]string{"body must be a JSON object"})
	}
	if !tablestore.ValidID(r.Record[tablestore.IDField]) {
		return ValidationFailed([]string{"id is required and must be a string, number or boolean"})
	}
	return nil
}

// UpdateRecordRequest is a request to merge fields into a record. The body is
// the patch itself.
type UpdateRecordRequest struct {
	Table string         `path:"table" json:"-"`
	ID    string         `path:"id" json:"-"`
	Patch map[string]any `json:"-"`
}

// UnmarshalJSON decodes the body into Patch.
func (r *UpdateRecordRequest) UnmarshalJSON(b []byte) error {
	return json.Unmarshal(b, &r.Patch)
}

// Validate checks the table name, the id and that the patch is an object.
func (r *UpdateRecordRequest) Validate() error {
	if err := validateTable(r.Table); err != nil {
		return err
	}
	if r.ID == "" {
		return MissingField("id")
	}
	if r.Patch == nil {
		return ValidationFailed([]string{"body must be a JSON object"})
	}
	return nil
}

// Key returns the id to look up. See [PathID].
func (r *UpdateRecordRequest) Key() any {
	return PathID(r.ID)
}

// PathID converts an id taken from a URL path. See [tablestore.ParseID].
func PathID(s string) any {
	return tablestore.ParseID(s)
}

func validateTable(name string) error {
	if name == "" {
		return MissingField("table")
	}
	if !tablestore.ValidTableName(name) {
		return InvalidTable(name)
	}
	return nil
}

// --- Schemas ---

// SchemasRequest is a request for the JSON Schemas of the request bodies.
type SchemasRequest struct{}

// Validate is a no-op for SchemasRequest.
func (r *SchemasRequest) Validate() error {
	return nil
}

// --- History ---

// HistoryRequest is a request for the recent revisions of the data file.
type HistoryRequest struct {
	Limit int `query:"limit" json:"-"`
}

// Validate checks the limit.
func (r *HistoryRequest) Validate() error {
	if r.Limit < 0 {
		return BadRequest("limit must be non-negative")
	}
	return nil
}
