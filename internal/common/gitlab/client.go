// Package gitlab is a minimal GitLab REST v4 client covering what the watcher
// and the updater need: project metadata, raw repository files, and merge requests.
package gitlab

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/obentoo/nightwatch/internal/common/version"
)

var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("resource not found on GitLab")
	// ErrUnauthorized indicates the access token was rejected
	ErrUnauthorized = errors.New("GitLab rejected the access token")
	// ErrRateLimit indicates API rate limit exceeded
	ErrRateLimit = errors.New("GitLab API rate limit exceeded")
	// ErrAPIError indicates a general API error
	ErrAPIError = errors.New("GitLab API error")
	// ErrMergeRequestExists indicates an open merge request already uses the source branch
	ErrMergeRequestExists = errors.New("merge request already exists")
)

// Client talks to one GitLab project
type Client struct {
	// BaseURL is the API root, e.g. "https://gitlab.com/api/v4"
	BaseURL string
	// ProjectID is a numeric ID or "group/project" path, escaped on use
	ProjectID  string
	Token      string
	Ref        string
	UserAgent  string
	HTTPClient *http.Client

	projectOnce sync.Once
	project     *Project
	projectErr  error
}

// Project holds the subset of GET /projects/:id used here
type Project struct {
	ID                int    `json:"id"`
	PathWithNamespace string `json:"path_with_namespace"`
	DefaultBranch     string `json:"default_branch"`
	HTTPURLToRepo     string `json:"http_url_to_repo"`
	WebURL            string `json:"web_url"`
}

// MergeRequestOptions are the fields sent when opening a merge request
type MergeRequestOptions struct {
	SourceBranch       string `json:"source_branch"`
	TargetBranch       string `json:"target_branch"`
	Title              string `json:"title"`
	Description        string `json:"description,omitempty"`
	RemoveSourceBranch bool   `json:"remove_source_branch"`
}

// MergeRequest is the subset of the merge request resource used here
type MergeRequest struct {
	IID    int    `json:"iid"`
	Title  string `json:"title"`
	WebURL string `json:"web_url"`
	State  string `json:"state"`
}

// NewClient creates a client for a single project
func NewClient(baseURL, projectID, token string) *Client {
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		ProjectID: projectID,
		Token:     token,
		UserAgent: version.UserAgent(),
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// projectPath returns the escaped /projects/:id prefix
func (c *Client) projectPath() string {
	return fmt.Sprintf("%s/projects/%s", c.BaseURL, url.PathEscape(c.ProjectID))
}

// Project returns the project metadata, fetched once per client
func (c *Client) Project(ctx context.Context) (*Project, error) {
	c.projectOnce.Do(func() {
		var p Project
		c.projectErr = c.getJSON(ctx, c.projectPath(), &p)
		if c.projectErr == nil {
			c.project = &p
		}
	})
	return c.project, c.projectErr
}

// ResolveRef returns the configured ref or the project's default branch
func (c *Client) ResolveRef(ctx context.Context) (string, error) {
	if c.Ref != "" {
		return c.Ref, nil
	}
	p, err := c.Project(ctx)
	if err != nil {
		return "", fmt.Errorf("resolving default branch: %w", err)
	}
	if p.DefaultBranch == "" {
		return "", fmt.Errorf("%w: project has no default branch", ErrAPIError)
	}
	return p.DefaultBranch, nil
}

// RawFile fetches a repository file at the resolved ref
func (c *Client) RawFile(ctx context.Context, filePath string) ([]byte, error) {
	ref, err := c.ResolveRef(ctx)
	if err != nil {
		return nil, err
	}

	// GET /projects/:id/repository/files/:file_path/raw?ref=:ref
	apiURL := fmt.Sprintf("%s/repository/files/%s/raw?ref=%s",
		c.projectPath(), url.PathEscape(filePath), url.QueryEscape(ref))

	req, err := c.newRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}

	body, _, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", filePath, err)
	}
	return body, nil
}

// CreateMergeRequest opens a merge request. ErrMergeRequestExists is returned
// when GitLab reports a conflict for the same source branch.
func (c *Client) CreateMergeRequest(ctx context.Context, opts MergeRequestOptions) (*MergeRequest, error) {
	payload, err := json.Marshal(opts)
	if err != nil {
		return nil, err
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.projectPath()+"/merge_requests", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	body, status, err := c.do(req)
	if status == http.StatusConflict {
		return nil, ErrMergeRequestExists
	}
	if err != nil {
		return nil, fmt.Errorf("creating merge request: %w", err)
	}

	var mr MergeRequest
	if err := json.Unmarshal(body, &mr); err != nil {
		return nil, fmt.Errorf("failed to parse merge request response: %w", err)
	}
	return &mr, nil
}

// CloneURL returns the HTTPS clone URL with the access token embedded as
// oauth2 credentials
func (c *Client) CloneURL(ctx context.Context) (string, error) {
	p, err := c.Project(ctx)
	if err != nil {
		return "", err
	}
	if p.HTTPURLToRepo == "" {
		return "", fmt.Errorf("%w: project has no http clone url", ErrAPIError)
	}

	u, err := url.Parse(p.HTTPURLToRepo)
	if err != nil {
		return "", fmt.Errorf("parsing clone url: %w", err)
	}
	u.User = url.UserPassword("oauth2", c.Token)
	return u.String(), nil
}

func (c *Client) getJSON(ctx context.Context, apiURL string, out interface{}) error {
	req, err := c.newRequest(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return err
	}
	body, _, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse GitLab response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, apiURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, apiURL, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", c.UserAgent)

	// GitLab uses PRIVATE-TOKEN header for authentication
	if c.Token != "" {
		req.Header.Set("PRIVATE-TOKEN", c.Token)
	}
	return req, nil
}

// do executes req and maps error statuses to sentinel errors.
// The status code is returned even on error.
func (c *Client) do(req *http.Request) ([]byte, int, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, resp.StatusCode, ErrRateLimit
	case resp.StatusCode == http.StatusNotFound:
		return nil, resp.StatusCode, ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, resp.StatusCode, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, resp.StatusCode, fmt.Errorf("%w: status %d: %s", ErrAPIError, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return body, resp.StatusCode, nil
}
