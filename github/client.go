// Package github submits translation changes upstream as a pull request from
// the user's fork.
//
// Every call is authenticated with the user's OAuth token through an
// oauth2 static token source. A 401 from any endpoint is reported as an
// *AuthError and triggers Client.OnAuthError so the caller can drop the
// stale token.
package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const (
	DefaultAPIBase = "https://api.github.com"
	acceptHeader   = "application/vnd.github.v3+json"
	userAgent      = "transkit"
)

// AuthError reports a missing, invalid or expired token.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	if e.Message == "" {
		return "GitHub authentication failed"
	}
	return "GitHub authentication failed: " + e.Message
}

// APIError is any other non-2xx answer from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("GitHub API error: %d", e.Status)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client talks to the GitHub REST API on behalf of one user.
type Client struct {
	HTTP    *http.Client
	APIBase string
	// Owner, Repo and Branch identify the upstream repository.
	Owner  string
	Repo   string
	Branch string

	// PollAttempts and PollInterval bound the wait for a new fork.
	PollAttempts int
	PollInterval time.Duration

	// OnAuthError runs once per 401 response.
	OnAuthError func()
	Log         zerolog.Logger
	Now         func() time.Time
}

// NewClient returns a Client authenticated with token.
func NewClient(ctx context.Context, token, owner, repo, branch string) *Client {
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token,
		TokenType:   "Bearer",
	}))
	httpClient.Timeout = 30 * time.Second
	return &Client{
		HTTP:         httpClient,
		APIBase:      DefaultAPIBase,
		Owner:        owner,
		Repo:         repo,
		Branch:       branch,
		PollAttempts: 10,
		PollInterval: 2 * time.Second,
		Log:          zerolog.Nop(),
		Now:          time.Now,
	}
}

// do sends one API request. body, when non-nil, is sent as JSON; out, when
// non-nil, receives the decoded response.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	url := path
	if !strings.HasPrefix(path, "http") {
		url = strings.TrimRight(c.APIBase, "/") + path
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", acceptHeader)
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
		}
		_ = json.Unmarshal(data, &apiErr)
		if resp.StatusCode == http.StatusUnauthorized {
			if c.OnAuthError != nil {
				c.OnAuthError()
			}
			return &AuthError{Message: apiErr.Message}
		}
		return &APIError{Status: resp.StatusCode, Message: apiErr.Message}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

// User is the authenticated account.
type User struct {
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

// Repository is the subset of repository fields the submission flow reads.
type Repository struct {
	FullName string      `json:"full_name"`
	Fork     bool        `json:"fork"`
	Parent   *Repository `json:"parent,omitempty"`
}

// User returns the authenticated user.
func (c *Client) User(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/user", nil, &u); err != nil {
		return nil, fmt.Errorf("getting user: %w", err)
	}
	return &u, nil
}

func (c *Client) upstream() string { return c.Owner + "/" + c.Repo }

// UserFork returns login's fork of the upstream repository, or nil.
func (c *Client) UserFork(ctx context.Context, login string) (*Repository, error) {
	var r Repository
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s", login, c.Repo), nil, &r)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("checking fork: %w", err)
	}
	if !r.Fork || r.Parent == nil || r.Parent.FullName != c.upstream() {
		return nil, nil
	}
	return &r, nil
}

// CreateFork forks the upstream repository and waits, up to PollAttempts
// times, for the fork to become readable. The fork is returned even if it
// never reports ready.
func (c *Client) CreateFork(ctx context.Context) (*Repository, error) {
	var fork Repository
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/forks", c.upstream()), nil, &fork); err != nil {
		return nil, fmt.Errorf("creating fork: %w", err)
	}

	for attempt := 1; attempt <= c.PollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.PollInterval):
		}
		err := c.do(ctx, http.MethodGet, "/repos/"+fork.FullName, nil, nil)
		if err == nil {
			return &fork, nil
		}
		var authErr *AuthError
		if errors.As(err, &authErr) {
			return nil, err
		}
		c.Log.Debug().Int("attempt", attempt).Str("fork", fork.FullName).Msg("fork not ready")
	}

	c.Log.Warn().Str("fork", fork.FullName).Msg("fork not confirmed ready, continuing")
	return &fork, nil
}

// GetOrCreateFork returns the user's fork, creating it when absent.
func (c *Client) GetOrCreateFork(ctx context.Context, login string) (*Repository, error) {
	fork, err := c.UserFork(ctx, login)
	if err != nil || fork != nil {
		return fork, err
	}
	return c.CreateFork(ctx)
}

// LatestCommitSHA returns the head commit of the upstream branch.
func (c *Client) LatestCommitSHA(ctx context.Context) (string, error) {
	var ref struct {
		Object struct {
			SHA string `json:"sha"`
		} `json:"object"`
	}
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/git/ref/heads/%s", c.upstream(), c.Branch), nil, &ref); err != nil {
		return "", fmt.Errorf("reading %s head: %w", c.Branch, err)
	}
	return ref.Object.SHA, nil
}

// CreateBranch creates branch at sha in owner's copy of the repository.
func (c *Client) CreateBranch(ctx context.Context, owner, branch, sha string) error {
	body := map[string]string{"ref": "refs/heads/" + branch, "sha": sha}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/%s/git/refs", owner, c.Repo), body, nil); err != nil {
		return fmt.Errorf("creating branch %s: %w", branch, err)
	}
	return nil
}

// FileSHA returns the blob SHA of path on ref, or "" when the file does not
// exist.
func (c *Client) FileSHA(ctx context.Context, owner, path, ref string) (string, error) {
	var file struct {
		SHA string `json:"sha"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s", owner, c.Repo, path, ref), nil, &file)
	if IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return file.SHA, nil
}

type putFileRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

// PutFile creates or updates path on branch. sha must be the current blob
// SHA when the file exists.
func (c *Client) PutFile(ctx context.Context, owner, path, content, message, branch, sha string) error {
	body := putFileRequest{
		Message: message,
		Content: encodeContent(content),
		Branch:  branch,
		SHA:     sha,
	}
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/repos/%s/%s/contents/%s", owner, c.Repo, path), body, nil); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// PullRequest is a created pull request.
type PullRequest struct {
	Number  int    `json:"number"`
	HTMLURL string `json:"html_url"`
}

// CreatePullRequest opens a pull request against the upstream branch.
func (c *Client) CreatePullRequest(ctx context.Context, title, body, head string) (*PullRequest, error) {
	req := map[string]any{
		"title":                 title,
		"body":                  body,
		"head":                  head,
		"base":                  c.Branch,
		"maintainer_can_modify": true,
	}
	var pr PullRequest
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/repos/%s/pulls", c.upstream()), req, &pr); err != nil {
		return nil, fmt.Errorf("creating pull request: %w", err)
	}
	return &pr, nil
}

// ValidateToken reports whether the token is accepted. A rejected token
// triggers OnAuthError.
func (c *Client) ValidateToken(ctx context.Context) bool {
	_, err := c.User(ctx)
	return err == nil
}
