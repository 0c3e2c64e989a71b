package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"semaphore/posts/internal/model"
)

const postColumns = `id, title, content, author, author_name, author_role, category, tags, attachments, status, created_at, updated_at`

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Find(ctx context.Context, filter Filter, page Page) ([]model.Post, int64, error) {
	where, args := postgresWhere(filter)

	var total int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM posts`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count posts: %w", err)
	}

	query := `SELECT ` + postColumns + ` FROM posts` + where + ` ORDER BY created_at DESC, id`
	if page.Limit > 0 {
		args = append(args, page.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if page.Skip > 0 {
		args = append(args, page.Skip)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	posts := []model.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, post)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list posts: %w", err)
	}
	return posts, total, nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (model.Post, error) {
	postID, err := uuid.Parse(id)
	if err != nil {
		return model.Post{}, ErrNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id = $1`, postID)
	post, err := scanPost(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Post{}, ErrNotFound
	}
	if err != nil {
		return model.Post{}, fmt.Errorf("get post %s: %w", id, err)
	}
	return post, nil
}

func (s *PostgresStore) Insert(ctx context.Context, post model.Post) (model.Post, error) {
	post, err := prepareInsert(post, time.Microsecond)
	if err != nil {
		return model.Post{}, err
	}
	postID := uuid.New()
	post.ID = postID.String()
	attachments, err := json.Marshal(post.Attachments)
	if err != nil {
		return model.Post{}, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO posts (`+postColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING `+postColumns,
		postID, post.Title, post.Content, post.Author, post.AuthorName, string(post.AuthorRole),
		string(post.Category), post.Tags, attachments, string(post.Status), post.CreatedAt, post.UpdatedAt,
	)
	saved, err := scanPost(row)
	if err != nil {
		return model.Post{}, fmt.Errorf("insert post: %w", err)
	}
	return saved, nil
}

func (s *PostgresStore) Save(ctx context.Context, post model.Post) (model.Post, error) {
	if post.ID == "" {
		return s.Insert(ctx, post)
	}
	postID, err := uuid.Parse(post.ID)
	if err != nil {
		return model.Post{}, ErrNotFound
	}
	post, err = prepareSave(post, time.Microsecond)
	if err != nil {
		return model.Post{}, err
	}
	attachments, err := json.Marshal(post.Attachments)
	if err != nil {
		return model.Post{}, err
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO posts (`+postColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			author = EXCLUDED.author,
			author_name = EXCLUDED.author_name,
			author_role = EXCLUDED.author_role,
			category = EXCLUDED.category,
			tags = EXCLUDED.tags,
			attachments = EXCLUDED.attachments,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
		RETURNING `+postColumns,
		postID, post.Title, post.Content, post.Author, post.AuthorName, string(post.AuthorRole),
		string(post.Category), post.Tags, attachments, string(post.Status), post.CreatedAt, post.UpdatedAt,
	)
	saved, err := scanPost(row)
	if err != nil {
		return model.Post{}, fmt.Errorf("save post %s: %w", post.ID, err)
	}
	return saved, nil
}

func (s *PostgresStore) DeleteByID(ctx context.Context, id string) error {
	postID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE id = $1`, postID)
	if err != nil {
		return fmt.Errorf("delete post %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close(_ context.Context) error {
	s.pool.Close()
	return nil
}

func postgresWhere(filter Filter) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, value string) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Category != "" {
		add("category = $%d", filter.Category)
	}
	if filter.Author != "" {
		add("author = $%d", filter.Author)
	}
	if filter.Tag != "" {
		add("$%d = ANY(tags)", filter.Tag)
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanPost(row pgx.Row) (model.Post, error) {
	var (
		post        model.Post
		id          uuid.UUID
		authorRole  string
		category    string
		status      string
		attachments []byte
	)
	err := row.Scan(
		&id,
		&post.Title,
		&post.Content,
		&post.Author,
		&post.AuthorName,
		&authorRole,
		&category,
		&post.Tags,
		&attachments,
		&status,
		&post.CreatedAt,
		&post.UpdatedAt,
	)
	if err != nil {
		return model.Post{}, err
	}
	post.ID = id.String()
	post.AuthorRole = model.Role(authorRole)
	post.Category = model.Category(category)
	post.Status = model.Status(status)
	post.CreatedAt = post.CreatedAt.UTC()
	post.UpdatedAt = post.UpdatedAt.UTC()
	if err := json.Unmarshal(attachments, &post.Attachments); err != nil {
		return model.Post{}, err
	}
	post.Normalize()
	return post, nil
}
