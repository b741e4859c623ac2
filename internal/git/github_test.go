package git_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	gderrors "gitdeck.dev/gitdeck/internal/errors"
	"gitdeck.dev/gitdeck/internal/git"
	"gitdeck.dev/gitdeck/testhelpers"
)

func TestGitHubClient_ListPullRequests(t *testing.T) {
	cfg := testhelpers.NewMockGitHubServerConfig()
	cfg.AddPR(2, "second", "open", "feature-b", "main")
	cfg.AddPR(1, "first", "closed", "feature-a", "main")
	server := testhelpers.NewMockGitHubServer(t, cfg)

	client, err := git.NewGitHubClientWithBaseURL(server.Client(), server.URL, cfg.Owner, cfg.Repo)
	require.NoError(t, err)
	ctx := context.Background()

	open, err := client.ListPullRequests(ctx, git.PullRequestParams{})
	require.NoError(t, err)
	require.Equal(t, []git.PullRequest{{
		Number:  2,
		Title:   "second",
		State:   "open",
		Author:  "octocat",
		Head:    "feature-b",
		Base:    "main",
		HTMLURL: "https://github.com/owner/repo/pull/second",
	}}, open)

	all, err := client.ListPullRequests(ctx, git.PullRequestParams{State: "all", Limit: 1})
	require.NoError(t, err)
	require.Len(t, all, 1)

	t.Run("status codes map to error kinds", func(t *testing.T) {
		for status, want := range map[int]error{
			http.StatusUnauthorized: gderrors.ErrAuthFailed,
			http.StatusForbidden:    gderrors.ErrPermission,
			http.StatusNotFound:     gderrors.ErrNotFound,
		} {
			cfg.Status = status
			_, err := client.ListPullRequests(ctx, git.PullRequestParams{})
			require.ErrorIs(t, err, want, http.StatusText(status))
		}
		cfg.Status = 0
	})
}

func TestRepository_PullRequestsUsesLister(t *testing.T) {
	cfg := testhelpers.NewMockGitHubServerConfig()
	cfg.AddPR(7, "seven", "open", "topic", "main")
	server := testhelpers.NewMockGitHubServer(t, cfg)
	client, err := git.NewGitHubClientWithBaseURL(server.Client(), server.URL, cfg.Owner, cfg.Repo)
	require.NoError(t, err)

	scene := testhelpers.NewScene(t, testhelpers.BasicSceneSetup)
	repo, err := git.OpenRepository(git.Location{WorkTree: scene.Dir}, git.RepositoryOptions{PullRequests: client})
	require.NoError(t, err)

	prs, err := repo.PullRequests(context.Background(), git.PullRequestParams{})
	require.NoError(t, err)
	require.Len(t, prs, 1)
	require.Equal(t, 7, prs[0].Number)
	require.Equal(t, 1, cfg.Requests())
}

func TestRepository_PullRequestsWithoutGitHubRemote(t *testing.T) {
	_, repo := openScene(t, testhelpers.BasicSceneSetup)
	_, err := repo.PullRequests(context.Background(), git.PullRequestParams{})
	require.ErrorIs(t, err, gderrors.ErrNotFound)
}
