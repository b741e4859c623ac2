package git

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"strings"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	gderrors "gitdeck.dev/gitdeck/internal/errors"
)

// PullRequestLister lists pull requests of the repository's GitHub project
type PullRequestLister interface {
	ListPullRequests(ctx context.Context, p PullRequestParams) ([]PullRequest, error)
}

// GitHubClient lists pull requests through the GitHub REST API
type GitHubClient struct {
	client *github.Client
	owner  string
	repo   string
}

// NewGitHubClient creates a client for owner/repo on hostname with a token
func NewGitHubClient(ctx context.Context, info *RepoInfo, token string) (*GitHubClient, error) {
	client, err := createGitHubClient(ctx, info.Hostname, token)
	if err != nil {
		return nil, err
	}
	return &GitHubClient{client: client, owner: info.Owner, repo: info.Repo}, nil
}

// NewGitHubClientWithBaseURL creates a client against a custom API endpoint
func NewGitHubClientWithBaseURL(httpClient *http.Client, baseURL, owner, repo string) (*GitHubClient, error) {
	client := github.NewClient(httpClient)
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/") + "/")
	if err != nil {
		return nil, fmt.Errorf("failed to parse base URL: %w", err)
	}
	client.BaseURL = u
	return &GitHubClient{client: client, owner: owner, repo: repo}, nil
}

// OwnerRepo returns the repository owner and name
func (c *GitHubClient) OwnerRepo() (string, string) {
	return c.owner, c.repo
}

// ListPullRequests returns pull requests, newest first
func (c *GitHubClient) ListPullRequests(ctx context.Context, p PullRequestParams) ([]PullRequest, error) {
	state := p.State
	if state == "" {
		state = "open"
	}
	perPage := p.Limit
	if perPage <= 0 || perPage > 100 {
		perPage = 100
	}

	prs, resp, err := c.client.PullRequests.List(ctx, c.owner, c.repo, &github.PullRequestListOptions{
		State: state,
		ListOptions: github.ListOptions{
			PerPage: perPage,
		},
	})
	if err != nil {
		kind := gderrors.KindOther
		if resp != nil {
			switch resp.StatusCode {
			case http.StatusNotFound:
				kind = gderrors.KindNotFound
			case http.StatusUnauthorized:
				kind = gderrors.KindAuth
			case http.StatusForbidden:
				kind = gderrors.KindPermission
			}
		}
		return nil, gderrors.NewBackendError("pull-requests", kind, err)
	}

	out := make([]PullRequest, 0, len(prs))
	for _, pr := range prs {
		out = append(out, toPullRequest(pr))
	}
	if p.Limit > 0 && len(out) > p.Limit {
		out = out[:p.Limit]
	}
	return out, nil
}

func toPullRequest(pr *github.PullRequest) PullRequest {
	info := PullRequest{
		Number:  pr.GetNumber(),
		Title:   pr.GetTitle(),
		State:   pr.GetState(),
		HTMLURL: pr.GetHTMLURL(),
		Draft:   pr.GetDraft(),
	}
	if pr.User != nil {
		info.Author = pr.User.GetLogin()
	}
	if pr.Head != nil {
		info.Head = pr.Head.GetRef()
	}
	if pr.Base != nil {
		info.Base = pr.Base.GetRef()
	}
	return info
}

// PullRequests lists pull requests for the origin remote
func (r *Repository) PullRequests(ctx context.Context, p PullRequestParams) ([]PullRequest, error) {
	lister, err := r.pullRequestLister(ctx)
	if err != nil {
		return nil, err
	}
	return lister.ListPullRequests(ctx, p)
}

func (r *Repository) pullRequestLister(ctx context.Context) (PullRequestLister, error) {
	r.pullsMu.Lock()
	defer r.pullsMu.Unlock()
	if r.pulls != nil {
		return r.pulls, nil
	}

	remoteURL, err := r.RemoteURL(ctx, DefaultRemote)
	if err != nil {
		return nil, err
	}
	info, err := ParseGitHubRemoteURL(remoteURL)
	if err != nil {
		return nil, gderrors.NewBackendError("pull-requests", gderrors.KindNotFound, err)
	}
	token, err := getGitHubToken(ctx)
	if err != nil {
		return nil, gderrors.NewBackendError("pull-requests", gderrors.KindAuth, err)
	}
	client, err := NewGitHubClient(context.WithoutCancel(ctx), info, token)
	if err != nil {
		return nil, gderrors.NewBackendError("pull-requests", gderrors.KindOther, err)
	}
	r.pulls = client
	return client, nil
}

// createGitHubClient creates a GitHub client configured for the given hostname
// Supports both github.com and GitHub Enterprise instances
func createGitHubClient(ctx context.Context, hostname, token string) (*github.Client, error) {
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	tc := oauth2.NewClient(ctx, ts)
	client := github.NewClient(tc)

	if hostname != "github.com" {
		// GitHub Enterprise serves the REST API under /api/v3/
		baseURL, err := url.Parse(fmt.Sprintf("https://%s/api/v3/", hostname))
		if err != nil {
			return nil, fmt.Errorf("failed to parse base URL for hostname %s: %w", hostname, err)
		}
		uploadURL, err := url.Parse(fmt.Sprintf("https://%s/api/uploads/", hostname))
		if err != nil {
			return nil, fmt.Errorf("failed to parse upload URL for hostname %s: %w", hostname, err)
		}
		client.BaseURL = baseURL
		client.UploadURL = uploadURL
	}

	return client, nil
}

// getGitHubToken gets a GitHub token from the environment or the gh CLI
func getGitHubToken(ctx context.Context) (string, error) {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		return token, nil
	}

	out, err := exec.CommandContext(ctx, "gh", "auth", "token").Output()
	if err != nil {
		return "", fmt.Errorf("failed to get GitHub token: %w", err)
	}
	token := strings.TrimSpace(string(out))
	if token == "" {
		return "", errors.New("empty GitHub token")
	}
	return token, nil
}

// RepoInfo contains parsed information from a git remote URL
type RepoInfo struct {
	Hostname string
	Owner    string
	Repo     string
}

// ParseGitHubRemoteURL parses a git remote URL and extracts hostname, owner, and repo
// Examples:
//   - https://github.com/owner/repo.git
//   - git@github.com:owner/repo.git
//   - ssh://git@github.company.com/owner/repo.git
func ParseGitHubRemoteURL(remoteURL string) (*RepoInfo, error) {
	remoteURL = strings.TrimSpace(remoteURL)
	remoteURL = strings.TrimSuffix(remoteURL, ".git")

	var hostname, path string
	switch {
	case strings.Contains(remoteURL, "://"):
		u, err := url.Parse(remoteURL)
		if err != nil {
			return nil, fmt.Errorf("invalid remote URL: %w", err)
		}
		hostname = u.Hostname()
		path = strings.TrimPrefix(u.Path, "/")
	case strings.Contains(remoteURL, "@"):
		// scp-like syntax: git@hostname:owner/repo
		hostAndPath := strings.SplitN(remoteURL, "@", 2)[1]
		parts := strings.SplitN(hostAndPath, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid SSH remote URL: missing path")
		}
		hostname, path = parts[0], parts[1]
	default:
		return nil, fmt.Errorf("unsupported remote URL %q", remoteURL)
	}

	pathParts := strings.Split(path, "/")
	if len(pathParts) < 2 {
		return nil, fmt.Errorf("invalid remote URL: path must be owner/repo")
	}
	owner := pathParts[len(pathParts)-2]
	repo := pathParts[len(pathParts)-1]
	if hostname == "" || owner == "" || repo == "" {
		return nil, fmt.Errorf("failed to parse hostname, owner, or repo from remote URL")
	}

	return &RepoInfo{
		Hostname: hostname,
		Owner:    owner,
		Repo:     repo,
	}, nil
}
