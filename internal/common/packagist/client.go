// Package packagist looks up published package versions on a Packagist
// metadata mirror (the Composer v2 "p2" endpoint).
package packagist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/obentoo/nightwatch/internal/common/semver"
	"github.com/obentoo/nightwatch/internal/common/version"
)

var (
	// ErrPackageNotFound indicates the registry does not know the package
	ErrPackageNotFound = errors.New("package not found on registry")
	// ErrNoStableVersion indicates the package has no stable release
	ErrNoStableVersion = errors.New("no stable version published")
	// ErrAPIError indicates a general registry error
	ErrAPIError = errors.New("registry API error")
	// ErrInvalidName indicates a name that is not vendor/package
	ErrInvalidName = errors.New("invalid package name")
)

// Client handles communication with the Packagist metadata API
type Client struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
}

// release is one entry of a p2 package listing. Minified listings only repeat
// changed fields, but "version" is present on every entry.
type release struct {
	Version string `json:"version"`
}

type p2Response struct {
	Packages map[string][]release `json:"packages"`
}

// NewClient creates a registry client. An empty baseURL selects repo.packagist.org.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "https://repo.packagist.org"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		UserAgent: version.UserAgent(),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Versions returns every version string listed for a package
func (c *Client) Versions(ctx context.Context, name string) ([]string, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if strings.Count(name, "/") != 1 || strings.HasPrefix(name, "/") || strings.HasSuffix(name, "/") {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	// GET /p2/:vendor/:package.json
	apiURL := fmt.Sprintf("%s/p2/%s.json", c.BaseURL, name)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.UserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, name)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var parsed p2Response
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse registry response: %w", err)
	}

	releases, ok := parsed.Packages[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPackageNotFound, name)
	}

	versions := make([]string, 0, len(releases))
	for _, r := range releases {
		if r.Version != "" {
			versions = append(versions, r.Version)
		}
	}
	return versions, nil
}

// LatestVersion returns the most recent stable version of a package
func (c *Client) LatestVersion(ctx context.Context, name string) (string, error) {
	versions, err := c.Versions(ctx, name)
	if err != nil {
		return "", err
	}

	latest, ok := semver.LatestStable(versions)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoStableVersion, name)
	}
	return latest, nil
}
