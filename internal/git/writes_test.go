package git_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	gderrors "gitdeck.dev/gitdeck/internal/errors"
	"gitdeck.dev/gitdeck/internal/git"
	"gitdeck.dev/gitdeck/testhelpers"
)

func TestRepository_StageAndCommit(t *testing.T) {
	scene, repo := openScene(t, testhelpers.BasicSceneSetup)
	ctx := context.Background()

	require.NoError(t, scene.Repo.WriteFile("a.txt", "a"))
	require.NoError(t, scene.Repo.WriteFile("b.txt", "b"))

	staged, err := repo.Stage(ctx, git.StageParams{Paths: []string{"a.txt"}})
	require.NoError(t, err)
	require.Equal(t, []string{"a.txt"}, staged.Paths)

	id, err := repo.Commit(ctx, git.CommitParams{Message: "add a"})
	require.NoError(t, err)

	head, err := scene.Repo.GetRevision("HEAD")
	require.NoError(t, err)
	require.Equal(t, head, id.String())

	msgs, err := scene.Repo.ListCommitMessages()
	require.NoError(t, err)
	require.Equal(t, "add a", msgs[0])

	staged, err = repo.Stage(ctx, git.StageParams{All: true})
	require.NoError(t, err)
	require.Equal(t, []string{"b.txt"}, staged.Paths)

	_, err = repo.Commit(ctx, git.CommitParams{Message: "add b", AuthorName: "Someone", AuthorEmail: "someone@example.com"})
	require.NoError(t, err)
	author, err := scene.Repo.RunGitCommandAndGetOutput("log", "-1", "--format=%an")
	require.NoError(t, err)
	require.Equal(t, "Someone", author)
}

func TestRepository_CommitErrors(t *testing.T) {
	_, repo := openScene(t, testhelpers.BasicSceneSetup)
	ctx := context.Background()

	_, err := repo.Commit(ctx, git.CommitParams{Message: "  "})
	require.ErrorIs(t, err, gderrors.ErrMalformed)

	_, err = repo.Commit(ctx, git.CommitParams{Message: "nothing staged"})
	require.ErrorIs(t, err, gderrors.ErrConflict)

	_, err = repo.Commit(ctx, git.CommitParams{Message: "empty on purpose", AllowEmpty: true})
	require.NoError(t, err)

	_, err = repo.Stage(ctx, git.StageParams{})
	require.ErrorIs(t, err, gderrors.ErrMalformed)
}
