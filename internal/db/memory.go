package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"semaphore/posts/internal/model"
)

type memoryEntry struct {
	post model.Post
	seq  uint64
}

// MemoryStore is a process-local Store used for development and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	posts map[string]memoryEntry
	seq   uint64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{posts: make(map[string]memoryEntry)}
}

func (s *MemoryStore) Find(_ context.Context, filter Filter, page Page) ([]model.Post, int64, error) {
	s.mu.RLock()
	entries := make([]memoryEntry, 0, len(s.posts))
	for _, entry := range s.posts {
		if matches(entry.post, filter) {
			entries = append(entries, entry)
		}
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.post.CreatedAt.Equal(b.post.CreatedAt) {
			return a.post.CreatedAt.After(b.post.CreatedAt)
		}
		return a.seq > b.seq
	})

	total := int64(len(entries))
	start := page.Skip
	if start < 0 {
		start = 0
	}
	if start > len(entries) {
		start = len(entries)
	}
	end := len(entries)
	if page.Limit > 0 && start+page.Limit < end {
		end = start + page.Limit
	}
	posts := make([]model.Post, 0, end-start)
	for _, entry := range entries[start:end] {
		posts = append(posts, copyPost(entry.post))
	}
	return posts, total, nil
}

func (s *MemoryStore) FindByID(_ context.Context, id string) (model.Post, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.Post{}, ErrNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.posts[id]
	if !ok {
		return model.Post{}, ErrNotFound
	}
	return copyPost(entry.post), nil
}

func (s *MemoryStore) Insert(_ context.Context, post model.Post) (model.Post, error) {
	post, err := prepareInsert(post, time.Microsecond)
	if err != nil {
		return model.Post{}, err
	}
	post.ID = uuid.NewString()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	s.posts[post.ID] = memoryEntry{post: copyPost(post), seq: s.seq}
	return copyPost(post), nil
}

func (s *MemoryStore) Save(ctx context.Context, post model.Post) (model.Post, error) {
	if post.ID == "" {
		return s.Insert(ctx, post)
	}
	if _, err := uuid.Parse(post.ID); err != nil {
		return model.Post{}, ErrNotFound
	}
	post, err := prepareSave(post, time.Microsecond)
	if err != nil {
		return model.Post{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.posts[post.ID]
	if !ok {
		s.seq++
		entry.seq = s.seq
	}
	entry.post = copyPost(post)
	s.posts[post.ID] = entry
	return copyPost(post), nil
}

func (s *MemoryStore) DeleteByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[id]; !ok {
		return ErrNotFound
	}
	delete(s.posts, id)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

func (s *MemoryStore) Close(context.Context) error {
	return nil
}

func matches(post model.Post, filter Filter) bool {
	if filter.Category != "" && string(post.Category) != filter.Category {
		return false
	}
	if filter.Author != "" && post.Author != filter.Author {
		return false
	}
	if filter.Status != "" && string(post.Status) != filter.Status {
		return false
	}
	if filter.Tag != "" {
		for _, tag := range post.Tags {
			if tag == filter.Tag {
				return true
			}
		}
		return false
	}
	return true
}
