package reel

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vidsnap/vidsnap/internal/domain"
	"github.com/vidsnap/vidsnap/internal/repositories"
	"github.com/vidsnap/vidsnap/pkg/logger"
)

type Pgx struct {
	pg     *pgxpool.Pool
	logger logger.Logger
}

func NewPgx(pg *pgxpool.Pool, logger logger.Logger) *Pgx {
	return &Pgx{
		pg:     pg,
		logger: logger.WithComponent("ReelRepo"),
	}
}

var _ Repository = (*Pgx)(nil)

var reelColumns = []string{
	"id", "title", "narration", "author_id", "author_name", "author_image",
	"thumbnails", "storage_id", "video_url", "status", "duration",
	"like_count", "liked_by", "view_count", "created_at",
}

// Create inserts the reel, ignoring conflicts on id so a retried submit
// stays idempotent.
func (p *Pgx) Create(ctx context.Context, reel domain.Reel) error {
	thumbs, err := json.Marshal(reel.Thumbnails)
	if err != nil {
		return ErrCannotCreate
	}
	likedBy, err := json.Marshal(reel.LikedBy)
	if err != nil {
		return ErrCannotCreate
	}

	query, args, err := repositories.SqBuilder.
		Insert("reels").
		Columns(reelColumns...).
		Values(
			reel.ID, reel.Title, reel.Narration, reel.AuthorID, reel.AuthorName,
			reel.AuthorImage, thumbs, reel.StorageID, reel.VideoURL,
			string(reel.Status), reel.Duration, reel.LikeCount, likedBy,
			reel.ViewCount, time.Now(),
		).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return repositories.ErrBadQuery
	}

	_, err = p.pg.Exec(ctx, query, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			p.logger.Error("Failed to insert reel", "code", pgErr.Code, "error", err)
		}
		return err
	}
	return nil
}

func (p *Pgx) GetByID(ctx context.Context, id string) (*domain.Reel, error) {
	query, args, err := repositories.SqBuilder.
		Select(reelColumns...).
		From("reels").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, repositories.ErrBadQuery
	}

	row := p.pg.QueryRow(ctx, query, args...)
	reel, err := scanReel(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return reel, nil
}

func (p *Pgx) GetAll(ctx context.Context) ([]*domain.Reel, error) {
	return p.list(ctx, nil)
}

func (p *Pgx) GetByAuthor(ctx context.Context, authorID string) ([]*domain.Reel, error) {
	return p.list(ctx, sq.Eq{"author_id": authorID})
}

func (p *Pgx) list(ctx context.Context, where any) ([]*domain.Reel, error) {
	builder := repositories.SqBuilder.
		Select(reelColumns...).
		From("reels").
		OrderBy("created_at DESC")
	if where != nil {
		builder = builder.Where(where)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, repositories.ErrBadQuery
	}

	rows, err := p.pg.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reels []*domain.Reel
	for rows.Next() {
		reel, err := scanReel(rows)
		if err != nil {
			return nil, err
		}
		reels = append(reels, reel)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return reels, nil
}

func (p *Pgx) MarkReady(ctx context.Context, id, storageID, videoURL string, duration int) error {
	query, args, err := repositories.SqBuilder.
		Update("reels").
		Set("storage_id", storageID).
		Set("video_url", videoURL).
		Set("status", string(domain.ReelStatusReady)).
		Set("duration", duration).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return repositories.ErrBadQuery
	}
	return p.execExpectingRow(ctx, query, args)
}

func (p *Pgx) MarkFailed(ctx context.Context, id string) error {
	query, args, err := repositories.SqBuilder.
		Update("reels").
		Set("status", string(domain.ReelStatusFailed)).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return repositories.ErrBadQuery
	}
	return p.execExpectingRow(ctx, query, args)
}

// ToggleLike reads and rewrites the liked_by set in one transaction so
// likeCount can never drift from the set it counts.
func (p *Pgx) ToggleLike(ctx context.Context, id, userID string) error {
	tx, err := p.pg.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var likedByRaw []byte
	err = tx.QueryRow(ctx, "SELECT liked_by FROM reels WHERE id = $1 FOR UPDATE", id).Scan(&likedByRaw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	var likedBy []string
	if err := json.Unmarshal(likedByRaw, &likedBy); err != nil {
		return err
	}

	found := false
	next := likedBy[:0]
	for _, uid := range likedBy {
		if uid == userID {
			found = true
			continue
		}
		next = append(next, uid)
	}
	if !found {
		next = append(next, userID)
	}

	nextRaw, err := json.Marshal(next)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx,
		"UPDATE reels SET liked_by = $1, like_count = $2 WHERE id = $3",
		nextRaw, len(next), id,
	)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (p *Pgx) IncrementView(ctx context.Context, id string) error {
	query, args, err := repositories.SqBuilder.
		Update("reels").
		Set("view_count", sq.Expr("view_count + 1")).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return repositories.ErrBadQuery
	}
	// A view on a vanished reel is not an error worth surfacing.
	_, err = p.pg.Exec(ctx, query, args...)
	return err
}

func (p *Pgx) Remove(ctx context.Context, id string) error {
	query, args, err := repositories.SqBuilder.
		Delete("reels").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return repositories.ErrBadQuery
	}
	return p.execExpectingRow(ctx, query, args)
}

func (p *Pgx) MarkStaleFailed(ctx context.Context, olderThan time.Duration) (int64, error) {
	query, args, err := repositories.SqBuilder.
		Update("reels").
		Set("status", string(domain.ReelStatusFailed)).
		Where(sq.Eq{"status": string(domain.ReelStatusProcessing)}).
		Where(sq.Lt{"created_at": time.Now().Add(-olderThan)}).
		ToSql()
	if err != nil {
		return 0, repositories.ErrBadQuery
	}

	tag, err := p.pg.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *Pgx) CleanupOldRecords(ctx context.Context, olderThan time.Duration) (int64, error) {
	query, args, err := repositories.SqBuilder.
		Delete("reels").
		Where(sq.Eq{"status": string(domain.ReelStatusFailed)}).
		Where(sq.Lt{"created_at": time.Now().Add(-olderThan)}).
		ToSql()
	if err != nil {
		return 0, repositories.ErrBadQuery
	}

	tag, err := p.pg.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (p *Pgx) execExpectingRow(ctx context.Context, query string, args []any) error {
	tag, err := p.pg.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReel(row rowScanner) (*domain.Reel, error) {
	var (
		reel      domain.Reel
		thumbsRaw []byte
		likedRaw  []byte
		status    string
	)
	err := row.Scan(
		&reel.ID, &reel.Title, &reel.Narration, &reel.AuthorID, &reel.AuthorName,
		&reel.AuthorImage, &thumbsRaw, &reel.StorageID, &reel.VideoURL, &status,
		&reel.Duration, &reel.LikeCount, &likedRaw, &reel.ViewCount, &reel.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(thumbsRaw, &reel.Thumbnails); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(likedRaw, &reel.LikedBy); err != nil {
		return nil, err
	}
	reel.Status = domain.ReelStatus(status)
	return &reel, nil
}
