package assets

import (
	"context"

	"github.com/vidsnap/vidsnap/internal/domain"
)

//go:generate go run go.uber.org/mock/mockgen -source=assets.go -destination=mocks/mock.go -package=mocks

// Loader decodes user-supplied image bytes into drawable assets.
//
// The load is atomic: if any single source fails to decode the whole call
// fails and no partial set is returned, because the render plan needs an
// exact, stable image count before frame timing is computed. Order of the
// returned assets matches source order regardless of decode completion
// order.
type Loader interface {
	Load(ctx context.Context, sources [][]byte) ([]domain.ImageAsset, error)
}
