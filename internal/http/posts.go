package http

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"semaphore/posts/internal/auth"
	"semaphore/posts/internal/db"
	"semaphore/posts/internal/events"
	"semaphore/posts/internal/model"
)

const (
	defaultPage  = 1
	defaultLimit = 10
	maxQueryInt  = 1_000_000
)

type postRequest struct {
	Title       string             `json:"title"`
	Content     string             `json:"content"`
	Category    model.Category     `json:"category"`
	Tags        []string           `json:"tags"`
	Attachments []model.Attachment `json:"attachments"`
	Status      model.Status       `json:"status"`
}

// postResponse exposes the identifier under both "_id" and "id".
type postResponse struct {
	model.Post
	ID string `json:"id"`
}

func mapPost(post model.Post) postResponse {
	return postResponse{Post: post, ID: post.ID}
}

type paginationResponse struct {
	Total int64 `json:"total"`
	Page  int   `json:"page"`
	Pages int64 `json:"pages"`
}

type listPostsResponse struct {
	Posts      []postResponse     `json:"posts"`
	Pagination paginationResponse `json:"pagination"`
}

func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := db.Filter{
		Category: query.Get("category"),
		Author:   query.Get("author"),
		Tag:      query.Get("tag"),
		Status:   query.Get("status"),
	}
	page := queryInt(query.Get("page"), defaultPage)
	limit := queryInt(query.Get("limit"), defaultLimit)

	posts, total, err := s.store.Find(r.Context(), filter, db.Page{Skip: (page - 1) * limit, Limit: limit})
	if err != nil {
		s.logger.Error("list posts failed", zap.Error(err))
		writeServerError(w, "error listing posts", err)
		return
	}

	resp := listPostsResponse{
		Posts: make([]postResponse, 0, len(posts)),
		Pagination: paginationResponse{
			Total: total,
			Page:  page,
			Pages: (total + int64(limit) - 1) / int64(limit),
		},
	}
	for _, post := range posts {
		resp.Posts = append(resp.Posts, mapPost(post))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	post, err := s.store.FindByID(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	if err != nil {
		s.logger.Error("get post failed", zap.String("post_id", id), zap.Error(err))
		writeServerError(w, "error fetching post", err)
		return
	}
	writeJSON(w, http.StatusOK, mapPost(post))
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())

	var req postRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := s.users.GetUserByID(r.Context(), identity.ID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid author")
		return
	}

	post := model.Post{
		Title:       req.Title,
		Content:     req.Content,
		Author:      identity.ID,
		AuthorName:  identity.Name,
		AuthorRole:  identity.Role,
		Category:    req.Category,
		Tags:        req.Tags,
		Attachments: req.Attachments,
		Status:      req.Status,
	}
	saved, err := s.store.Insert(r.Context(), post)
	if err != nil {
		s.logger.Error("create post failed", zap.String("user_id", identity.ID), zap.Error(err))
		writeServerError(w, "error creating post", err)
		return
	}

	s.logger.Info("post created", zap.String("post_id", saved.ID), zap.String("user_id", identity.ID))
	s.publish(r, events.NewEvent(events.PostCreated, saved, identity.ID))
	writeJSON(w, http.StatusCreated, mapPost(saved))
}

func (s *Server) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id := chi.URLParam(r, "id")

	var req postRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	post, err := s.store.FindByID(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	if err != nil {
		s.logger.Error("update post failed", zap.String("post_id", id), zap.Error(err))
		writeServerError(w, "error updating post", err)
		return
	}
	if !auth.CanModify(identity, post) {
		writeError(w, http.StatusForbidden, "you do not have permission to edit this post")
		return
	}

	applyUpdate(&post, req)
	saved, err := s.store.Save(r.Context(), post)
	if err != nil {
		s.logger.Error("update post failed", zap.String("post_id", id), zap.Error(err))
		writeServerError(w, "error updating post", err)
		return
	}

	s.logger.Info("post updated", zap.String("post_id", id), zap.String("user_id", identity.ID))
	s.publish(r, events.NewEvent(events.PostUpdated, saved, identity.ID))
	writeJSON(w, http.StatusOK, mapPost(saved))
}

func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFromContext(r.Context())
	id := chi.URLParam(r, "id")

	post, err := s.store.FindByID(r.Context(), id)
	if errors.Is(err, db.ErrNotFound) {
		writeError(w, http.StatusNotFound, "post not found")
		return
	}
	if err != nil {
		s.logger.Error("delete post failed", zap.String("post_id", id), zap.Error(err))
		writeServerError(w, "error deleting post", err)
		return
	}
	if !auth.CanModify(identity, post) {
		writeError(w, http.StatusForbidden, "you do not have permission to delete this post")
		return
	}

	// A concurrent delete between the lookup and here is still a success.
	if err := s.store.DeleteByID(r.Context(), id); err != nil && !errors.Is(err, db.ErrNotFound) {
		s.logger.Error("delete post failed", zap.String("post_id", id), zap.Error(err))
		writeServerError(w, "error deleting post", err)
		return
	}

	s.logger.Info("post deleted", zap.String("post_id", id), zap.String("user_id", identity.ID))
	s.publish(r, events.NewEvent(events.PostDeleted, post, identity.ID))
	writeJSON(w, http.StatusOK, errorResponse{Message: "post deleted successfully"})
}

// applyUpdate replaces only the fields given a non-empty value; empty strings
// and empty lists keep the stored value.
func applyUpdate(post *model.Post, req postRequest) {
	if req.Title != "" {
		post.Title = req.Title
	}
	if req.Content != "" {
		post.Content = req.Content
	}
	if req.Category != "" {
		post.Category = req.Category
	}
	if len(req.Tags) > 0 {
		post.Tags = req.Tags
	}
	if len(req.Attachments) > 0 {
		post.Attachments = req.Attachments
	}
	if req.Status != "" {
		post.Status = req.Status
	}
}

// queryInt parses the leading integer of value, ignoring leading whitespace
// and any trailing text ("12abc" is 12). Values that do not start with a
// number, and values below 1, yield fallback. Results are capped at
// maxQueryInt.
func queryInt(value string, fallback int) int {
	value = strings.TrimLeft(value, " \t\n\r\v\f")
	sign := 1
	if value != "" && (value[0] == '+' || value[0] == '-') {
		if value[0] == '-' {
			sign = -1
		}
		value = value[1:]
	}
	n, digits := 0, 0
	for _, c := range value {
		if c < '0' || c > '9' {
			break
		}
		if n <= maxQueryInt {
			n = n*10 + int(c-'0')
		}
		digits++
	}
	if digits == 0 {
		return fallback
	}
	n *= sign
	if n < 1 {
		return fallback
	}
	if n > maxQueryInt {
		return maxQueryInt
	}
	return n
}
