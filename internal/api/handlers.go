package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/vidsnap/vidsnap/internal/domain"
	"github.com/vidsnap/vidsnap/internal/pipeline"
	reelrepo "github.com/vidsnap/vidsnap/internal/repositories/reel"
	"github.com/vidsnap/vidsnap/pkg/errors"
)

// 32 MB of form data covers the soft cap of 50 reasonably sized images.
const maxUploadBytes = 32 << 20

type identity struct {
	ID    string
	Name  string
	Image string
}

// identityFrom trusts the X-User-* headers set by the upstream auth proxy;
// authentication itself is outside this service.
func identityFrom(r *http.Request) identity {
	return identity{
		ID:    r.Header.Get("X-User-Id"),
		Name:  r.Header.Get("X-User-Name"),
		Image: r.Header.Get("X-User-Image"),
	}
}

func (s *Server) handleCreateReel(w http.ResponseWriter, r *http.Request) {
	user := identityFrom(r)
	if user.ID == "" {
		s.writeError(w, errors.Wrap(errors.ErrUnauthorized, "missing user identity"))
		return
	}
	if !s.limiter.Allow(user.ID) {
		s.writeJSON(w, http.StatusTooManyRequests, errorResponse{
			Error: "Too many renders, slow down",
			Class: string(errors.ClassTransient),
		})
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, errors.Wrap(errors.ErrInvalidInput, "invalid multipart form"))
		return
	}

	var images [][]byte
	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File["images"] {
			f, err := fh.Open()
			if err != nil {
				s.writeError(w, errors.Wrap(errors.ErrInvalidInput, "unreadable image upload"))
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				s.writeError(w, errors.Wrap(errors.ErrInvalidInput, "unreadable image upload"))
				return
			}
			images = append(images, data)
		}
	}

	req := pipeline.CreateRequest{
		UserID:    user.ID,
		UserName:  user.Name,
		UserImage: user.Image,
		Title:     r.FormValue("title"),
		Narration: r.FormValue("narration"),
		Images:    images,
		Progress: func(percent int) {
			if percent%25 == 0 {
				s.logger.Debug("Render progress", "user", user.ID, "percent", percent)
			}
		},
	}

	reel, err := s.pipeline.CreateReel(r.Context(), req)
	if err != nil {
		s.logger.Error("Reel creation failed", "user", user.ID, "class", errors.ClassOf(err), "error", err)
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, toReelResponse(reel, user.ID))
}

func (s *Server) handleListReels(w http.ResponseWriter, r *http.Request) {
	user := identityFrom(r)

	var (
		reels []*domain.Reel
		err   error
	)
	if author := r.URL.Query().Get("author"); author != "" {
		reels, err = s.repo.GetByAuthor(r.Context(), author)
	} else {
		reels, err = s.repo.GetAll(r.Context())
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := make([]reelResponse, 0, len(reels))
	for _, reel := range reels {
		out = append(out, toReelResponse(reel, user.ID))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleToggleLike(w http.ResponseWriter, r *http.Request) {
	user := identityFrom(r)
	if user.ID == "" {
		s.writeError(w, errors.Wrap(errors.ErrUnauthorized, "missing user identity"))
		return
	}

	if err := s.repo.ToggleLike(r.Context(), r.PathValue("id"), user.ID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleIncrementView(w http.ResponseWriter, r *http.Request) {
	if err := s.repo.IncrementView(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRemoveReel(w http.ResponseWriter, r *http.Request) {
	user := identityFrom(r)
	if user.ID == "" {
		s.writeError(w, errors.Wrap(errors.ErrUnauthorized, "missing user identity"))
		return
	}

	id := r.PathValue("id")
	reel, err := s.repo.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if reel.AuthorID != user.ID {
		s.writeError(w, errors.Wrap(errors.ErrUnauthorized, "not the reel's author"))
		return
	}

	if reel.StorageID != "" {
		if err := s.store.Delete(r.Context(), reel.StorageID); err != nil {
			s.logger.Warn("Failed to delete stored blob", "reel_id", id, "error", err)
		}
	}
	if err := s.repo.Remove(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reelResponse struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Narration  string   `json:"narration"`
	AuthorID   string   `json:"authorId"`
	AuthorName string   `json:"authorName"`
	Thumbnails []string `json:"thumbnails"`
	VideoURL   string   `json:"videoUrl,omitempty"`
	Status     string   `json:"status"`
	Duration   int      `json:"duration"`
	LikeCount  int      `json:"likeCount"`
	Liked      bool     `json:"liked"`
	ViewCount  int      `json:"viewCount"`
	CreatedAt  int64    `json:"createdAt"`
}

func toReelResponse(reel *domain.Reel, viewerID string) reelResponse {
	return reelResponse{
		ID:         reel.ID,
		Title:      reel.Title,
		Narration:  reel.Narration,
		AuthorID:   reel.AuthorID,
		AuthorName: reel.AuthorName,
		Thumbnails: reel.Thumbnails,
		VideoURL:   reel.VideoURL,
		Status:     string(reel.Status),
		Duration:   reel.Duration,
		LikeCount:  reel.LikeCount,
		Liked:      viewerID != "" && reel.Liked(viewerID),
		ViewCount:  reel.ViewCount,
		CreatedAt:  reel.CreatedAt.UnixMilli(),
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Class string `json:"class"`
}

// writeError maps the failure taxonomy onto status codes and the three
// user-facing message classes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	class := errors.ClassOf(err)

	var status int
	var msg string
	switch {
	case errors.Is(err, reelrepo.ErrNotFound), errors.Is(err, errors.ErrNotFound):
		status, msg = http.StatusNotFound, "Reel not found"
	case errors.Is(err, errors.ErrUnauthorized):
		status, msg = http.StatusUnauthorized, "Unauthorized"
	case class == errors.ClassInput:
		status, msg = http.StatusBadRequest, errors.GetMessage(err)
	case class == errors.ClassEnvironment:
		status, msg = http.StatusInternalServerError,
			"Recording failed — try a different browser or fewer images"
	case class == errors.ClassTransient:
		status, msg = http.StatusBadGateway,
			"Upload failed — please try again"
	default:
		status, msg = http.StatusInternalServerError, "Failed to create reel. Please try again."
	}

	s.writeJSON(w, status, errorResponse{Error: msg, Class: string(class)})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}
