package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"semaphore/posts/internal/model"
)

var ErrNotFound = errors.New("post not found")

// Filter holds equality constraints for listing; empty fields are unconstrained.
// Tag matches posts whose tags contain the value.
type Filter struct {
	Category string
	Author   string
	Tag      string
	Status   string
}

type Page struct {
	Skip  int
	Limit int
}

// Store persists posts. Insert and Save validate the post before writing and
// return *model.ValidationError when it is rejected. Malformed identifiers are
// reported as ErrNotFound.
type Store interface {
	Find(ctx context.Context, filter Filter, page Page) ([]model.Post, int64, error)
	FindByID(ctx context.Context, id string) (model.Post, error)
	Insert(ctx context.Context, post model.Post) (model.Post, error)
	Save(ctx context.Context, post model.Post) (model.Post, error)
	DeleteByID(ctx context.Context, id string) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

func NewPool(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func prepareInsert(post model.Post, precision time.Duration) (model.Post, error) {
	post.Normalize()
	now := time.Now().UTC().Truncate(precision)
	post.CreatedAt = now
	post.UpdatedAt = now
	if err := post.Validate(); err != nil {
		return model.Post{}, err
	}
	return post, nil
}

func prepareSave(post model.Post, precision time.Duration) (model.Post, error) {
	post.Normalize()
	post.UpdatedAt = nextUpdatedAt(post.UpdatedAt, precision)
	if post.CreatedAt.IsZero() || post.CreatedAt.After(post.UpdatedAt) {
		post.CreatedAt = post.UpdatedAt
	}
	if err := post.Validate(); err != nil {
		return model.Post{}, err
	}
	return post, nil
}

// nextUpdatedAt returns the current time at the store precision, moved one
// tick past prev when the clock has not advanced beyond it.
func nextUpdatedAt(prev time.Time, precision time.Duration) time.Time {
	now := time.Now().UTC().Truncate(precision)
	if !now.After(prev) {
		now = prev.UTC().Truncate(precision).Add(precision)
	}
	return now
}

func copyPost(post model.Post) model.Post {
	if post.Tags != nil {
		post.Tags = append([]string{}, post.Tags...)
	}
	if post.Attachments != nil {
		post.Attachments = append([]model.Attachment{}, post.Attachments...)
	}
	return post
}
