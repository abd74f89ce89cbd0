package domain

import "time"

type ReelStatus string

const (
	ReelStatusProcessing ReelStatus = "processing"
	ReelStatusReady      ReelStatus = "ready"
	ReelStatusFailed     ReelStatus = "failed"
)

type Reel struct {
	ID          string
	Title       string
	Narration   string
	AuthorID    string
	AuthorName  string
	AuthorImage string
	Thumbnails  []string // small data-URL previews, one per slide
	StorageID   string
	VideoURL    string
	Status      ReelStatus
	Duration    int // seconds
	LikeCount   int
	LikedBy     []string
	ViewCount   int
	CreatedAt   time.Time
}

// Liked reports whether the given user has liked the reel.
func (r *Reel) Liked(userID string) bool {
	for _, id := range r.LikedBy {
		if id == userID {
			return true
		}
	}
	return false
}
