// Package repository declares the storage interfaces the services depend on.
// The sqlite subpackage is the only implementation; service tests use fakes.
package repository

import (
	"context"

	"github.com/sakif/debugging-platform/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

type UserRepository interface {
	// Create assigns ID and CreatedAt. A duplicate email yields apperror.ErrConflict.
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

type SubmissionRepository interface {
	// Create assigns ID and SubmittedAt.
	Create(ctx context.Context, sub *model.Submission) error
	// ListByUser returns the user's submissions, newest first.
	ListByUser(ctx context.Context, userID string, opts ListOptions) ([]model.Submission, error)
}
