// Package store defines the persistence contract shared by the two
// interchangeable backends (MongoDB document store, hosted Postgres).
// The server constructs exactly one Store at startup and injects it into
// every handler; switching backends is constructing a different Store,
// never flipping shared state.
package store

import (
	"context"

	"github.com/pkg/errors"

	"github.com/istm-portal/backend/model"
)

var (
	// ErrNotFound reports a missing entity, distinct from a backend failure.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate reports a violation of the (form, email, nom, prenom)
	// uniqueness constraint.
	ErrDuplicate = errors.New("duplicate registration")
	// ErrConflict reports a lost optimistic-lock race on a form update.
	ErrConflict = errors.New("version conflict")
)

// SubmissionFilter narrows GetSubmissions. Zero values mean "all".
type SubmissionFilter struct {
	FormID string
	Status model.SubmissionStatus
}

// Store is the CRUD surface both backends implement. Every method reports
// failures as errors; callers can always distinguish "empty" from
// "unreachable".
type Store interface {
	GetForms(ctx context.Context) ([]model.Form, error)
	GetForm(ctx context.Context, id string) (model.Form, error)
	CreateForm(ctx context.Context, form *model.Form) error
	// UpdateForm bumps the version and fails with ErrConflict when the
	// stored version moved under the caller.
	UpdateForm(ctx context.Context, form *model.Form) error
	DeleteForm(ctx context.Context, id string) error

	GetSubmissions(ctx context.Context, filter SubmissionFilter) ([]model.Submission, error)
	GetSubmission(ctx context.Context, id string) (model.Submission, error)
	GetSubmissionByMatricule(ctx context.Context, matricule string) (model.Submission, error)
	CreateSubmission(ctx context.Context, sub *model.Submission) error
	UpdateSubmissionStatus(ctx context.Context, id string, to model.SubmissionStatus, by string) (model.Submission, error)
	DeleteSubmission(ctx context.Context, id string) error
	CountSubmissions(ctx context.Context, formID string) (int, error)

	// AdminPasswordHash returns the bcrypt hash for a back-office account.
	AdminPasswordHash(ctx context.Context, username string) ([]byte, error)

	Close(ctx context.Context) error
}
