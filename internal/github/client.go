// Package github looks up repositories and organizations referenced by pledges.
package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"golang.org/x/oauth2"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultAPIBase = "https://api.github.com"
	reposPerPage   = 100
	maxRepoPages   = 20
)

var ErrNotFound = errors.New("github_not_found")

type Repository struct {
	FullName        string `json:"full_name"`
	StargazersCount int    `json:"stargazers_count"`
	Private         bool   `json:"private"`
}

type Organization struct {
	Login       string `json:"login"`
	Name        string `json:"name"`
	PublicRepos int    `json:"public_repos"`
}

// Client is the subset of the GitHub REST API used for pledges.
type Client interface {
	GetRepo(ctx context.Context, handle string) (*Repository, error)
	GetOrg(ctx context.Context, login string) (*Organization, error)
	ListOrgPublicRepos(ctx context.Context, login string) ([]Repository, error)
}

type restClient struct {
	apiBase string
	http    *http.Client
}

// NewClient authenticates with token when it is set. Anonymous calls work but
// are heavily rate limited by GitHub.
func NewClient(token, apiBase string) Client {
	apiBase = strings.TrimRight(strings.TrimSpace(apiBase), "/")
	if apiBase == "" {
		apiBase = defaultAPIBase
	}
	httpClient := &http.Client{Timeout: 15 * time.Second}
	if token = strings.TrimSpace(token); token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		httpClient = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}
	return &restClient{apiBase: apiBase, http: httpClient}
}

func newClientWithHTTP(apiBase string, httpClient *http.Client) *restClient {
	return &restClient{apiBase: strings.TrimRight(apiBase, "/"), http: httpClient}
}

func (c *restClient) GetRepo(ctx context.Context, handle string) (*Repository, error) {
	owner, name, ok := strings.Cut(strings.Trim(handle, "/"), "/")
	if !ok || owner == "" || name == "" {
		return nil, fmt.Errorf("invalid repository handle %q", handle)
	}
	var repo Repository
	if err := c.get(ctx, "/repos/"+url.PathEscape(owner)+"/"+url.PathEscape(name), nil, &repo); err != nil {
		return nil, err
	}
	return &repo, nil
}

func (c *restClient) GetOrg(ctx context.Context, login string) (*Organization, error) {
	var org Organization
	if err := c.get(ctx, "/orgs/"+url.PathEscape(strings.TrimSpace(login)), nil, &org); err != nil {
		return nil, err
	}
	return &org, nil
}

// ListOrgPublicRepos follows pagination until a short page comes back.
func (c *restClient) ListOrgPublicRepos(ctx context.Context, login string) ([]Repository, error) {
	path := "/orgs/" + url.PathEscape(strings.TrimSpace(login)) + "/repos"
	var all []Repository
	for page := 1; page <= maxRepoPages; page++ {
		query := url.Values{}
		query.Set("type", "public")
		query.Set("per_page", fmt.Sprint(reposPerPage))
		query.Set("page", fmt.Sprint(page))

		var batch []Repository
		if err := c.get(ctx, path, query, &batch); err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(batch) < reposPerPage {
			break
		}
	}
	return all, nil
}

func (c *restClient) get(ctx context.Context, path string, query url.Values, out any) error {
	target := c.apiBase + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= http.StatusBadRequest {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("github returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
