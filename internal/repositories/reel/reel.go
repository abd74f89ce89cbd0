package reel

import (
	"context"
	"errors"
	"time"

	"github.com/vidsnap/vidsnap/internal/domain"
)

var (
	ErrNotFound     = errors.New("reel not found")
	ErrCannotCreate = errors.New("error create reel")
)

//go:generate go run go.uber.org/mock/mockgen -source=reel.go -destination=mocks/mock.go -package=mocks

type Repository interface {
	// Create inserts the reel. Re-running with the same id is a no-op, so
	// a retried submit never duplicates rows.
	Create(ctx context.Context, reel domain.Reel) error
	GetByID(ctx context.Context, id string) (*domain.Reel, error)
	GetAll(ctx context.Context) ([]*domain.Reel, error)
	GetByAuthor(ctx context.Context, authorID string) ([]*domain.Reel, error)
	// MarkReady attaches the storage reference and duration and moves the
	// reel to the ready state.
	MarkReady(ctx context.Context, id, storageID, videoURL string, duration int) error
	// MarkFailed moves the reel to the failed state.
	MarkFailed(ctx context.Context, id string) error
	// ToggleLike adds or removes the user's like and keeps likeCount
	// consistent with likedBy.
	ToggleLike(ctx context.Context, id, userID string) error
	IncrementView(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
	// MarkStaleFailed moves processing reels older than the threshold into
	// the failed state and returns how many were touched.
	MarkStaleFailed(ctx context.Context, olderThan time.Duration) (int64, error)
	// CleanupOldRecords removes failed reels older than the threshold.
	CleanupOldRecords(ctx context.Context, olderThan time.Duration) (int64, error)
}
