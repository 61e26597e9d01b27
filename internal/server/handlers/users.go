// Serves the users resource on top of the "users" table.

package handlers

import (
	"context"
	"time"

	"github.com/maruel/jsondb/internal/server/dto"
	"github.com/maruel/jsondb/internal/tablestore"
	"github.com/maruel/ksid"
)

// UsersTable is the table holding users.
const UsersTable = "users"

// UserHandler handles user CRUD requests.
type UserHandler struct {
	store Store
	now   func() time.Time
}

// NewUserHandler creates a new user handler.
func NewUserHandler(store Store) *UserHandler {
	return &UserHandler{store: store, now: time.Now}
}

// ListUsers returns every user in insertion order.
func (h *UserHandler) ListUsers(ctx context.Context, _ *dto.ListUsersRequest) (*dto.ListUsersResponse, error) {
	rows := h.store.Select(UsersTable)
	users := make([]dto.UserResponse, 0, len(rows))
	for _, r := range rows {
		users = append(users, *userToResponse(r))
	}
	return &dto.ListUsersResponse{Users: users}, nil
}

// GetUser returns one user.
func (h *UserHandler) GetUser(ctx context.Context, req *dto.UserIDRequest) (*dto.GetUserResponse, error) {
	r, ok := h.store.FindByID(UsersTable, req.UserID().String())
	if !ok {
		return nil, dto.NotFound("user")
	}
	return &dto.GetUserResponse{User: userToResponse(r)}, nil
}

// CreateUser stores a new user under a fresh id.
func (h *UserHandler) CreateUser(ctx context.Context, req *dto.CreateUserRequest) (*dto.CreateUserResponse, error) {
	r := h.store.Insert(UsersTable, tablestore.Record{
		"id":         ksid.NewID().String(),
		"name":       req.Name,
		"email":      req.Email,
		"created_at": h.timestamp(),
	})
	return &dto.CreateUserResponse{Message: "user created", User: userToResponse(r)}, nil
}

// UpdateUser merges the fields present in the request into the user.
func (h *UserHandler) UpdateUser(ctx context.Context, req *dto.UpdateUserRequest) (*dto.UpdateUserResponse, error) {
	patch := tablestore.Record{"updated_at": h.timestamp()}
	if req.Name != nil {
		patch["name"] = *req.Name
	}
	if req.Email != nil {
		patch["email"] = *req.Email
	}
	r, ok := h.store.Update(UsersTable, req.UserID().String(), patch)
	if !ok {
		return nil, dto.NotFound("user")
	}
	return &dto.UpdateUserResponse{Message: "user updated", User: userToResponse(r)}, nil
}

// DeleteUser removes a user.
func (h *UserHandler) DeleteUser(ctx context.Context, req *dto.UserIDRequest) (*dto.MessageResponse, error) {
	if !h.store.Delete(UsersTable, req.UserID().String()) {
		return nil, dto.NotFound("user")
	}
	return &dto.MessageResponse{Message: "user deleted"}, nil
}

func (h *UserHandler) timestamp() string {
	return h.now().UTC().Format(time.RFC3339Nano)
}

// userToResponse tolerates rows written by other clients: fields of the wrong
// type are left empty.
func userToResponse(r tablestore.Record) *dto.UserResponse {
	str := func(k string) string {
		s, _ := r[k].(string)
		return s
	}
	return &dto.UserResponse{
		ID:        str("id"),
		Name:      str("name"),
		Email:     str("email"),
		CreatedAt: str("created_at"),
		UpdatedAt: str("updated_at"),
	}
}
