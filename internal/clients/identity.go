package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"semaphore/posts/internal/auth"
	"semaphore/posts/internal/metrics"
	"semaphore/posts/internal/model"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrUserNotFound = errors.New("user not found")
)

type User struct {
	ID    string     `json:"id"`
	Name  string     `json:"name"`
	Role  model.Role `json:"role"`
	Email string     `json:"email,omitempty"`
}

// userPayload accepts both "id" and the document-style "_id" key.
type userPayload struct {
	ID    string     `json:"id"`
	DocID string     `json:"_id"`
	Name  string     `json:"name"`
	Role  model.Role `json:"role"`
	Email string     `json:"email"`
}

func (p userPayload) id() string {
	if p.ID != "" {
		return p.ID
	}
	return p.DocID
}

// IdentityClient talks to the auth service (token verification) and the user
// service (user lookup). Calls are never retried.
type IdentityClient struct {
	authURL    string
	userURL    string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

func NewIdentityClient(authURL, userURL string, timeout time.Duration, logger *zap.Logger, m *metrics.Metrics) *IdentityClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IdentityClient{
		authURL:    authURL,
		userURL:    userURL,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		metrics:    m,
	}
}

func (c *IdentityClient) VerifyToken(ctx context.Context, token string) (auth.Identity, error) {
	identity, err := c.verifyToken(ctx, token)
	c.metrics.ObserveIdentity("verify_token", err)
	if err != nil {
		c.logger.Error("token verification failed", zap.Error(err))
		return auth.Identity{}, ErrInvalidToken
	}
	return identity, nil
}

func (c *IdentityClient) verifyToken(ctx context.Context, token string) (auth.Identity, error) {
	payload, err := json.Marshal(map[string]string{"token": token})
	if err != nil {
		return auth.Identity{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.authURL+"/api/auth/verify", bytes.NewReader(payload))
	if err != nil {
		return auth.Identity{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var body userPayload
	if err := c.do(req, &body); err != nil {
		return auth.Identity{}, err
	}
	if body.id() == "" {
		return auth.Identity{}, errors.New("auth service returned an identity without id")
	}
	return auth.Identity{ID: body.id(), Name: body.Name, Role: body.Role, Email: body.Email}, nil
}

func (c *IdentityClient) GetUserByID(ctx context.Context, userID string) (User, error) {
	user, err := c.getUserByID(ctx, userID)
	c.metrics.ObserveIdentity("get_user", err)
	if err != nil {
		c.logger.Error("user lookup failed", zap.String("user_id", userID), zap.Error(err))
		return User{}, ErrUserNotFound
	}
	return user, nil
}

func (c *IdentityClient) getUserByID(ctx context.Context, userID string) (User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userURL+"/api/users/"+url.PathEscape(userID), nil)
	if err != nil {
		return User{}, err
	}
	var body userPayload
	if err := c.do(req, &body); err != nil {
		return User{}, err
	}
	return User{ID: body.id(), Name: body.Name, Role: body.Role, Email: body.Email}, nil
}

// CheckUserPermission reports whether the user exists and holds one of the
// allowed roles (student or teacher when none are given). Lookup failures
// count as no permission.
func (c *IdentityClient) CheckUserPermission(ctx context.Context, userID string, allowed ...model.Role) bool {
	if len(allowed) == 0 {
		allowed = []model.Role{model.RoleTeacher, model.RoleStudent}
	}
	user, err := c.GetUserByID(ctx, userID)
	if err != nil {
		c.logger.Error("permission check failed", zap.String("user_id", userID), zap.Error(err))
		return false
	}
	return auth.HasRole(user.Role, allowed)
}

func (c *IdentityClient) do(req *http.Request, out interface{}) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return upstreamError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

type upstreamStatusError struct {
	status int
	detail string
}

func (e *upstreamStatusError) Error() string {
	if e.detail == "" {
		return fmt.Sprintf("upstream responded %d", e.status)
	}
	return fmt.Sprintf("upstream responded %d: %s", e.status, e.detail)
}

func upstreamError(resp *http.Response) error {
	detail := ""
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		detail = payload.Message
		if detail == "" {
			detail = payload.Error
		}
	}
	return &upstreamStatusError{status: resp.StatusCode, detail: detail}
}
