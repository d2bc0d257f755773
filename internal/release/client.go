// Package release resolves GitHub release metadata for a ToolId,
// scores and picks the asset matching the host architecture, and
// downloads it with retry and checksum verification.
package release

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/go-github/v27/github"

	"github.com/x49dev/tpm/internal/errors"
)

const cacheTTL = 5 * time.Minute

// Client wraps a go-github client with an on-disk response cache and
// rate-limit bookkeeping derived from the API's response headers.
type Client struct {
	gh      *github.Client
	cache   *diskCache
	timeout time.Duration
	retries int

	mu         sync.Mutex
	remaining  int
	resetEpoch int64
}

// NewClient builds a Client. token may be empty for unauthenticated
// access (60 requests/hour instead of 5,000).
func NewClient(token, cacheDir string, timeout time.Duration, retries int) *Client {
	httpClient := &http.Client{Timeout: timeout}
	if token != "" {
		httpClient.Transport = &bearerTransport{token: token, base: http.DefaultTransport}
	}

	return &Client{
		gh:      github.NewClient(httpClient),
		cache:   newDiskCache(cacheDir, cacheTTL),
		timeout: timeout,
		retries: retries,
		// remaining starts optimistic; the first response populates real values.
		remaining: 1,
	}
}

// SetBaseURL overrides the GitHub API base URL, for pointing a Client
// at a test server instead of api.github.com.
func (c *Client) SetBaseURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return err
	}
	c.gh.BaseURL = u
	return nil
}

type bearerTransport struct {
	token string
	base  http.RoundTripper
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "token "+t.token)
	return t.base.RoundTrip(req)
}

// Release is the subset of release metadata the resolver needs.
type Release struct {
	TagName string
	Body    string
	Assets  []Asset
}

// Asset is one release artifact.
type Asset struct {
	Name string
	URL  string
	Size int
}

// gateRateLimit fails fast if the last observed rate-limit window has
// one or fewer requests remaining and has not yet reset.
func (c *Client) gateRateLimit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().Unix()
	if c.remaining <= 1 && now < c.resetEpoch {
		return errors.NewRateLimitedError(int(c.resetEpoch-now) + 5)
	}
	return nil
}

func (c *Client) recordRate(resp *github.Response) {
	if resp == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remaining = resp.Rate.Remaining
	c.resetEpoch = resp.Rate.Reset.Unix()
}

// GetLatestRelease fetches owner/repo's latest published release,
// consulting the disk cache first.
func (c *Client) GetLatestRelease(ctx context.Context, owner, repo string) (*Release, error) {
	cacheKey := fmt.Sprintf("latest-%s-%s", owner, repo)
	if cached, ok := c.cache.get(cacheKey); ok {
		return cached, nil
	}

	if err := c.gateRateLimit(); err != nil {
		return nil, err
	}

	gr, resp, err := c.gh.Repositories.GetLatestRelease(ctx, owner, repo)
	c.recordRate(resp)
	if err != nil {
		return nil, translateError(fmt.Sprintf("%s/%s", owner, repo), resp, err)
	}

	rel := fromGitHubRelease(gr)
	if rel.TagName == "" {
		return nil, errors.NewReleaseNotFoundError(fmt.Sprintf("%s/%s", owner, repo))
	}

	c.cache.put(cacheKey, rel)
	return rel, nil
}

// GetReleaseByTag fetches owner/repo's release tagged tag.
func (c *Client) GetReleaseByTag(ctx context.Context, owner, repo, tag string) (*Release, error) {
	cacheKey := fmt.Sprintf("tag-%s-%s-%s", owner, repo, tag)
	if cached, ok := c.cache.get(cacheKey); ok {
		return cached, nil
	}

	if err := c.gateRateLimit(); err != nil {
		return nil, err
	}

	gr, resp, err := c.gh.Repositories.GetReleaseByTag(ctx, owner, repo, tag)
	c.recordRate(resp)
	if err != nil {
		return nil, translateError(fmt.Sprintf("%s/%s@%s", owner, repo, tag), resp, err)
	}

	rel := fromGitHubRelease(gr)
	c.cache.put(cacheKey, rel)
	return rel, nil
}

func fromGitHubRelease(gr *github.RepositoryRelease) *Release {
	rel := &Release{
		TagName: gr.GetTagName(),
		Body:    gr.GetBody(),
	}
	for _, a := range gr.Assets {
		rel.Assets = append(rel.Assets, Asset{
			Name: a.GetName(),
			URL:  a.GetBrowserDownloadURL(),
			Size: a.GetSize(),
		})
	}
	return rel
}

func translateError(resource string, resp *github.Response, err error) error {
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return errors.NewReleaseNotFoundError(resource)
	}
	if resp != nil && resp.StatusCode == http.StatusForbidden {
		return errors.NewRateLimitedError(60)
	}
	if resp != nil {
		return errors.NewHTTPError(resource, resp.StatusCode)
	}
	return errors.NewNetworkError(resource, err)
}
