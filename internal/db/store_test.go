package db

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"semaphore/posts/internal/model"
)

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore(), uuid.NewString)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("POSTS_TEST_DB")
	if url == "" {
		t.Skip("POSTS_TEST_DB not set")
	}
	ctx := context.Background()
	require.NoError(t, Migrate(ctx, url))
	pool, err := NewPool(ctx, url)
	if err != nil {
		t.Skipf("db unavailable: %v", err)
	}
	store := NewPostgresStore(pool)
	defer store.Close(ctx)
	testStore(t, store, uuid.NewString)
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("POSTS_TEST_MONGO")
	if uri == "" {
		t.Skip("POSTS_TEST_MONGO not set")
	}
	ctx := context.Background()
	store, err := NewMongoStore(ctx, uri, "posts_test")
	if err != nil {
		t.Skipf("mongo unavailable: %v", err)
	}
	defer store.Close(ctx)
	testStore(t, store, func() string { return primitive.NewObjectID().Hex() })
}

func testStore(t *testing.T, store Store, missingID func() string) {
	t.Run("InsertAppliesDefaults", func(t *testing.T) {
		testInsertAppliesDefaults(t, store)
	})
	t.Run("InsertRejectsInvalidPost", func(t *testing.T) {
		testInsertRejectsInvalidPost(t, store)
	})
	t.Run("SaveRefreshesUpdatedAt", func(t *testing.T) {
		testSaveRefreshesUpdatedAt(t, store)
	})
	t.Run("SaveRejectsInvalidPost", func(t *testing.T) {
		testSaveRejectsInvalidPost(t, store)
	})
	t.Run("FindByIDMissing", func(t *testing.T) {
		testFindByIDMissing(t, store, missingID)
	})
	t.Run("Pagination", func(t *testing.T) {
		testPagination(t, store)
	})
	t.Run("Filters", func(t *testing.T) {
		testFilters(t, store)
	})
	t.Run("Delete", func(t *testing.T) {
		testDelete(t, store, missingID)
	})
}

func newPost(author string) model.Post {
	return model.Post{
		Title:      "Initial title",
		Content:    "Initial content",
		Author:     author,
		AuthorName: "Test User",
		AuthorRole: model.RoleTeacher,
		Category:   model.CategoryAnnouncement,
	}
}

func testInsertAppliesDefaults(t *testing.T, store Store) {
	ctx := context.Background()
	post := newPost(uuid.NewString())
	post.Title = "  Trimmed title  "
	post.Tags = []string{"test", "unit"}

	saved, err := store.Insert(ctx, post)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, "Trimmed title", saved.Title)
	assert.Equal(t, model.StatusPublished, saved.Status)
	assert.Equal(t, []string{"test", "unit"}, saved.Tags)
	assert.Empty(t, saved.Attachments)
	assert.False(t, saved.CreatedAt.IsZero())
	assert.True(t, saved.CreatedAt.Equal(saved.UpdatedAt))

	fetched, err := store.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.Title, fetched.Title)
	assert.True(t, fetched.CreatedAt.Equal(saved.CreatedAt))
	assert.True(t, fetched.UpdatedAt.Equal(saved.UpdatedAt))
}

func testInsertRejectsInvalidPost(t *testing.T, store Store) {
	ctx := context.Background()
	author := uuid.NewString()
	_, err := store.Insert(ctx, model.Post{Title: "Title without content", Author: author})
	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)

	invalid := newPost(author)
	invalid.Category = "news"
	_, err = store.Insert(ctx, invalid)
	require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)

	_, total, err := store.Find(ctx, Filter{Author: author}, Page{Limit: 10})
	require.NoError(t, err)
	assert.Zero(t, total)
}

func testSaveRefreshesUpdatedAt(t *testing.T, store Store) {
	ctx := context.Background()
	saved, err := store.Insert(ctx, newPost(uuid.NewString()))
	require.NoError(t, err)

	previous := saved
	for i := 0; i < 3; i++ {
		previous.Title = "Updated title"
		updated, err := store.Save(ctx, previous)
		require.NoError(t, err)
		assert.True(t, updated.UpdatedAt.After(previous.UpdatedAt), "updatedAt must strictly increase")
		assert.True(t, updated.CreatedAt.Equal(saved.CreatedAt))
		assert.Equal(t, "Updated title", updated.Title)
		previous = updated
	}

	fetched, err := store.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.True(t, fetched.UpdatedAt.Equal(previous.UpdatedAt))
}

func testSaveRejectsInvalidPost(t *testing.T, store Store) {
	ctx := context.Background()
	saved, err := store.Insert(ctx, newPost(uuid.NewString()))
	require.NoError(t, err)

	saved.Status = "deleted"
	_, err = store.Save(ctx, saved)
	var verr *model.ValidationError
	require.True(t, errors.As(err, &verr), "expected validation error, got %v", err)

	fetched, err := store.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPublished, fetched.Status)
}

func testFindByIDMissing(t *testing.T, store Store, missingID func() string) {
	ctx := context.Background()
	_, err := store.FindByID(ctx, "not-a-valid-id")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.FindByID(ctx, missingID())
	assert.ErrorIs(t, err, ErrNotFound)
}

func testPagination(t *testing.T, store Store) {
	ctx := context.Background()
	author := uuid.NewString()
	const n = 7
	for i := 0; i < n; i++ {
		_, err := store.Insert(ctx, newPost(author))
		require.NoError(t, err)
	}

	const limit = 3
	for page := 1; page <= 4; page++ {
		skip := (page - 1) * limit
		posts, total, err := store.Find(ctx, Filter{Author: author}, Page{Skip: skip, Limit: limit})
		require.NoError(t, err)
		assert.EqualValues(t, n, total)
		expected := n - skip
		if expected > limit {
			expected = limit
		}
		if expected < 0 {
			expected = 0
		}
		assert.Len(t, posts, expected, "page %d", page)
		for i := 1; i < len(posts); i++ {
			assert.False(t, posts[i].CreatedAt.After(posts[i-1].CreatedAt), "posts must be sorted newest first")
		}
	}
}

func testFilters(t *testing.T, store Store) {
	ctx := context.Background()
	author := uuid.NewString()

	material := newPost(author)
	material.Category = model.CategoryMaterial
	material.Tags = []string{"math", "algebra"}
	_, err := store.Insert(ctx, material)
	require.NoError(t, err)

	question := newPost(author)
	question.Category = model.CategoryQuestion
	question.Tags = []string{"math"}
	question.Status = model.StatusDraft
	_, err = store.Insert(ctx, question)
	require.NoError(t, err)

	cases := []struct {
		name   string
		filter Filter
		want   int64
	}{
		{"author", Filter{Author: author}, 2},
		{"category", Filter{Author: author, Category: "material"}, 1},
		{"tag", Filter{Author: author, Tag: "math"}, 2},
		{"tag subset", Filter{Author: author, Tag: "algebra"}, 1},
		{"status", Filter{Author: author, Status: "draft"}, 1},
		{"combined", Filter{Author: author, Tag: "algebra", Status: "draft"}, 0},
	}
	for _, tc := range cases {
		posts, total, err := store.Find(ctx, tc.filter, Page{Limit: 10})
		require.NoError(t, err, tc.name)
		assert.Equal(t, tc.want, total, tc.name)
		assert.Len(t, posts, int(tc.want), tc.name)
	}
}

func testDelete(t *testing.T, store Store, missingID func() string) {
	ctx := context.Background()
	saved, err := store.Insert(ctx, newPost(uuid.NewString()))
	require.NoError(t, err)

	require.NoError(t, store.DeleteByID(ctx, saved.ID))
	_, err = store.FindByID(ctx, saved.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.DeleteByID(ctx, saved.ID), ErrNotFound)
	assert.ErrorIs(t, store.DeleteByID(ctx, missingID()), ErrNotFound)
	assert.ErrorIs(t, store.DeleteByID(ctx, "not-a-valid-id"), ErrNotFound)
}
