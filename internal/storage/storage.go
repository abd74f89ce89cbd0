package storage

import "context"

//go:generate go run go.uber.org/mock/mockgen -source=storage.go -destination=mocks/mock.go -package=mocks

// Store is the binary-storage boundary of the document store. The pipeline
// only ever hands it a validated blob with a clean base MIME type.
type Store interface {
	// GenerateUploadURL issues a short-lived write endpoint.
	GenerateUploadURL(ctx context.Context) (string, error)
	// Upload PUTs the blob to the issued endpoint and returns the storage
	// reference id.
	Upload(ctx context.Context, uploadURL, contentType string, data []byte) (string, error)
	// ResolveURL returns a readable URL for a stored blob.
	ResolveURL(ctx context.Context, storageID string) (string, error)
	// Delete removes a stored blob.
	Delete(ctx context.Context, storageID string) error
}
