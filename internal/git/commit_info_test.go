package git_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	gderrors "gitdeck.dev/gitdeck/internal/errors"
	"gitdeck.dev/gitdeck/internal/git"
	"gitdeck.dev/gitdeck/testhelpers"
)

func openScene(t *testing.T, setup testhelpers.SceneSetup) (*testhelpers.Scene, *git.Repository) {
	t.Helper()
	scene := testhelpers.NewScene(t, setup)
	repo, err := git.OpenRepository(git.Location{WorkTree: scene.Dir}, git.RepositoryOptions{})
	require.NoError(t, err)
	return scene, repo
}

func TestParseCommitID(t *testing.T) {
	const full = "0123456789abcdef0123456789abcdef01234567"

	t.Run("full id", func(t *testing.T) {
		id, err := git.ParseCommitID(full)
		require.NoError(t, err)
		require.Equal(t, full, id.String())
		require.Equal(t, "0123456", id.Short())
		require.False(t, id.IsZero())
	})

	t.Run("rejects abbreviated and garbage ids", func(t *testing.T) {
		for _, in := range []string{"", "0123456", "zz23456789abcdef0123456789abcdef01234567"} {
			_, err := git.ParseCommitID(in)
			require.ErrorIs(t, err, gderrors.ErrMalformed, in)
		}
	})

	t.Run("text round trip", func(t *testing.T) {
		id, err := git.ParseCommitID(full)
		require.NoError(t, err)
		b, err := id.MarshalText()
		require.NoError(t, err)
		var back git.CommitID
		require.NoError(t, back.UnmarshalText(b))
		require.Equal(t, id, back)
	})
}

func TestSummaryLine(t *testing.T) {
	tests := []struct {
		name  string
		msg   string
		limit int
		want  string
	}{
		{"first line only", "subject\n\nbody text", 50, "subject"},
		{"trims surrounding space", "  subject  \n", 50, "subject"},
		{"truncates", "a long subject line", 6, "a long"},
		{"wide runes count double", "日本語のコミット", 5, "日本"},
		{"no limit keeps everything", "subject\nbody", 0, "subject\nbody"},
		{"crlf", "subject\r\nbody", 50, "subject"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, git.SummaryLine(tt.msg, tt.limit))
		})
	}
}

func TestRepository_CommitInfo(t *testing.T) {
	scene, repo := openScene(t, func(s *testhelpers.Scene) error {
		if err := s.Repo.CreateChangeAndCommit("commit1", "a"); err != nil {
			return err
		}
		return s.Repo.CreateChangeAndCommit("commit2 "+strings.Repeat("x", 80), "b")
	})
	ctx := context.Background()

	ids, err := repo.Log(ctx, git.LogParams{})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	head, err := scene.Repo.GetRevision("HEAD")
	require.NoError(t, err)
	require.Equal(t, head, ids[0].String())

	infos, err := repo.CommitInfo(ctx, git.CommitInfoParams{IDs: ids, MessageLimit: 10})
	require.NoError(t, err)
	require.Len(t, infos, 2)
	require.Equal(t, "commit2 xx", infos[0].Message)
	require.Equal(t, "commit1", infos[1].Message)
	require.Equal(t, "Test User", infos[0].Author)
	require.NotZero(t, infos[0].Time)
	require.Equal(t, ids[1], infos[1].ID)

	t.Run("unknown commit is not found", func(t *testing.T) {
		missing, err := git.ParseCommitID(strings.Repeat("ab", 20))
		require.NoError(t, err)
		_, err = repo.CommitInfo(ctx, git.CommitInfoParams{IDs: []git.CommitID{missing}})
		require.ErrorIs(t, err, gderrors.ErrNotFound)
	})
}

func TestRepository_ResolveRevision(t *testing.T) {
	scene, repo := openScene(t, func(s *testhelpers.Scene) error {
		if err := s.Repo.CreateChangeAndCommit("one", "a"); err != nil {
			return err
		}
		return s.Repo.CreateChangeAndCommit("two", "b")
	})
	ctx := context.Background()

	parent, err := scene.Repo.GetRevision("HEAD~1")
	require.NoError(t, err)

	id, err := repo.ResolveRevision(ctx, "HEAD~1")
	require.NoError(t, err)
	require.Equal(t, parent, id.String())

	id, err = repo.ResolveRevision(ctx, parent[:7])
	require.NoError(t, err)
	require.Equal(t, parent, id.String())

	_, err = repo.ResolveRevision(ctx, "no-such-branch")
	require.ErrorIs(t, err, gderrors.ErrNotFound)
}
