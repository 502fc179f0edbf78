package api

import (
	"context"

	"kaban-board/domain"
)

// Service abstracts the task application logic for handlers.
type Service interface {
	List(ctx context.Context) ([]domain.Task, error)
	Create(ctx context.Context, candidate domain.Task) (domain.Task, error)
	Get(ctx context.Context, id int64) (domain.Task, error)
	Update(ctx context.Context, candidate domain.Task) (domain.Task, error)
	Delete(ctx context.Context, id int64) error
	UpdateStatus(ctx context.Context, id int64, rawStatus string) (domain.Task, error)
}

// TokenService issues and verifies the anti-forgery tokens that must
// accompany every state-mutating request.
type TokenService interface {
	// Issue returns a fresh token bound to the page being rendered.
	Issue(ctx context.Context) (string, error)
	// Verify reports whether the token is currently valid. Tokens stay
	// valid until they expire so one page can submit more than once.
	Verify(ctx context.Context, token string) (bool, error)
}
