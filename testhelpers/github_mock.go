package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-github/v62/github"
)

// MockGitHubServerConfig configures the behavior of a mock GitHub server
type MockGitHubServerConfig struct {
	// PRs is the full pull request list; the server filters it by the state query
	PRs []*github.PullRequest
	// Status, when non-zero, is returned for every request instead of data
	Status int
	// Owner and Repo for the mock server
	Owner string
	Repo  string

	requests atomic.Int64
}

// NewMockGitHubServerConfig creates a new mock server config with defaults
func NewMockGitHubServerConfig() *MockGitHubServerConfig {
	return &MockGitHubServerConfig{
		Owner: "owner",
		Repo:  "repo",
	}
}

// Requests returns the number of requests served
func (c *MockGitHubServerConfig) Requests() int {
	return int(c.requests.Load())
}

// AddPR appends a pull request to the mock data
func (c *MockGitHubServerConfig) AddPR(number int, title, state, head, base string) {
	c.PRs = append(c.PRs, &github.PullRequest{
		Number:  github.Int(number),
		Title:   github.String(title),
		State:   github.String(state),
		Head:    &github.PullRequestBranch{Ref: github.String(head)},
		Base:    &github.PullRequestBranch{Ref: github.String(base)},
		User:    &github.User{Login: github.String("octocat")},
		HTMLURL: github.String("https://github.com/" + c.Owner + "/" + c.Repo + "/pull/" + title),
	})
}

// NewMockGitHubServer creates an httptest server that serves
// GET /repos/{owner}/{repo}/pulls
func NewMockGitHubServer(t *testing.T, config *MockGitHubServerConfig) *httptest.Server {
	t.Helper()
	if config == nil {
		config = NewMockGitHubServerConfig()
	}

	mux := http.NewServeMux()
	basePath := "/repos/" + config.Owner + "/" + config.Repo + "/pulls"
	mux.HandleFunc(basePath, func(w http.ResponseWriter, r *http.Request) {
		config.requests.Add(1)
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if config.Status != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(config.Status)
			_ = json.NewEncoder(w).Encode(map[string]string{"message": http.StatusText(config.Status)})
			return
		}

		state := r.URL.Query().Get("state")
		if state == "" {
			state = "open"
		}
		prs := make([]*github.PullRequest, 0, len(config.PRs))
		for _, pr := range config.PRs {
			if state == "all" || strings.EqualFold(pr.GetState(), state) {
				prs = append(prs, pr)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(prs)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(func() { server.Close() })
	return server
}
