package git_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	gderrors "gitdeck.dev/gitdeck/internal/errors"
	"gitdeck.dev/gitdeck/internal/git"
	"gitdeck.dev/gitdeck/testhelpers"
)

func TestOpenRepository(t *testing.T) {
	t.Run("not a repository", func(t *testing.T) {
		_, err := git.OpenRepository(git.Location{WorkTree: t.TempDir()}, git.RepositoryOptions{})
		require.ErrorIs(t, err, gderrors.ErrNotFound)
	})

	t.Run("explicit git dir and work tree", func(t *testing.T) {
		scene := testhelpers.NewScene(t, testhelpers.BasicSceneSetup)
		repo, err := git.OpenRepository(git.Location{
			GitDir:   scene.Dir + "/.git",
			WorkTree: scene.Dir,
		}, git.RepositoryOptions{})
		require.NoError(t, err)
		require.Equal(t, scene.Dir, repo.Root())

		st, err := repo.Status(context.Background(), git.StatusParams{})
		require.NoError(t, err)
		require.Equal(t, "main", st.Branch)
	})
}

func TestRepository_Status(t *testing.T) {
	scene, repo := openScene(t, testhelpers.BasicSceneSetup)
	ctx := context.Background()

	st, err := repo.Status(ctx, git.StatusParams{})
	require.NoError(t, err)
	require.True(t, st.Clean())
	require.Equal(t, "main", st.Branch)

	head, err := scene.Repo.GetRevision("HEAD")
	require.NoError(t, err)
	require.Equal(t, head, st.Head.String())

	require.NoError(t, scene.Repo.WriteFile("new.txt", "untracked"))
	require.NoError(t, scene.Repo.CreateChange("staged", "s", false))

	st, err = repo.Status(ctx, git.StatusParams{})
	require.NoError(t, err)
	require.False(t, st.Clean())
	require.Len(t, st.Files, 2)
	require.Equal(t, "new.txt", st.Files[0].Path)
	require.Equal(t, byte('?'), st.Files[0].Worktree)
	require.Equal(t, "s_test.txt", st.Files[1].Path)
	require.Equal(t, byte('A'), st.Files[1].Staging)
}

func TestRepository_StatusUnbornBranch(t *testing.T) {
	_, repo := openScene(t, nil)

	st, err := repo.Status(context.Background(), git.StatusParams{})
	require.NoError(t, err)
	require.Equal(t, "main", st.Branch)
	require.True(t, st.Head.IsZero())
}

func TestRepository_Log(t *testing.T) {
	_, repo := openScene(t, func(s *testhelpers.Scene) error {
		for _, msg := range []string{"one", "two", "three"} {
			if err := s.Repo.CreateChangeAndCommit(msg, msg); err != nil {
				return err
			}
		}
		return nil
	})
	ctx := context.Background()

	ids, err := repo.Log(ctx, git.LogParams{})
	require.NoError(t, err)
	require.Len(t, ids, 3)

	limited, err := repo.Log(ctx, git.LogParams{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, ids[:2], limited)

	fromParent, err := repo.Log(ctx, git.LogParams{Revision: "HEAD~1"})
	require.NoError(t, err)
	require.Equal(t, ids[1:], fromParent)
}

func TestRepository_Diff(t *testing.T) {
	scene, repo := openScene(t, func(s *testhelpers.Scene) error {
		if err := s.Repo.WriteFile("a.txt", "one\ntwo\n"); err != nil {
			return err
		}
		return s.Repo.CommitAll("add a")
	})
	ctx := context.Background()

	require.NoError(t, scene.Repo.WriteFile("a.txt", "one\nthree\nfour\n"))

	d, err := repo.Diff(ctx, git.DiffParams{Path: "a.txt"})
	require.NoError(t, err)
	require.Contains(t, d.Patch, "+three")
	require.Contains(t, d.Patch, "-two")
	require.Equal(t, []git.DiffStat{{Path: "a.txt", Additions: 2, Deletions: 1}}, d.Stat)

	staged, err := repo.Diff(ctx, git.DiffParams{Staged: true})
	require.NoError(t, err)
	require.Empty(t, staged.Patch)
	require.Empty(t, staged.Stat)
}

func TestParseNumstat(t *testing.T) {
	stats := git.ParseNumstat("3\t1\tsrc/main.go\n-\t-\tlogo.png\n\ngarbage")
	require.Equal(t, []git.DiffStat{
		{Path: "src/main.go", Additions: 3, Deletions: 1},
		{Path: "logo.png", Binary: true},
	}, stats)
}

func TestRepository_Blame(t *testing.T) {
	scene, repo := openScene(t, func(s *testhelpers.Scene) error {
		if err := s.Repo.WriteFile("b.txt", "first\n"); err != nil {
			return err
		}
		if err := s.Repo.CommitAll("first"); err != nil {
			return err
		}
		if err := s.Repo.WriteFile("b.txt", "first\nsecond\n"); err != nil {
			return err
		}
		return s.Repo.CommitAll("second")
	})
	ctx := context.Background()

	head, err := scene.Repo.GetRevision("HEAD")
	require.NoError(t, err)
	parent, err := scene.Repo.GetRevision("HEAD~1")
	require.NoError(t, err)

	b, err := repo.Blame(ctx, git.BlameParams{Path: "b.txt"})
	require.NoError(t, err)
	require.Len(t, b.Lines, 2)
	require.Equal(t, parent, b.Lines[0].ID.String())
	require.Equal(t, "first", b.Lines[0].Text)
	require.Equal(t, head, b.Lines[1].ID.String())
	require.Equal(t, 2, b.Lines[1].Number)

	_, err = repo.Blame(ctx, git.BlameParams{Path: "missing.txt"})
	require.ErrorIs(t, err, gderrors.ErrNotFound)
}

func TestRepository_Refs(t *testing.T) {
	scene, repo := openScene(t, func(s *testhelpers.Scene) error {
		if err := s.Repo.CreateChangeAndCommit("1", "1"); err != nil {
			return err
		}
		if err := s.Repo.CreateTag("v1.0.0", ""); err != nil {
			return err
		}
		if err := s.Repo.CreateTag("v1.1.0", "annotated"); err != nil {
			return err
		}
		if err := s.Repo.CreateBranch("feature/a"); err != nil {
			return err
		}
		return s.Repo.CreateBranch("fix")
	})
	ctx := context.Background()

	head, err := scene.Repo.GetRevision("HEAD")
	require.NoError(t, err)

	tags, err := repo.Tags(ctx, git.TagParams{})
	require.NoError(t, err)
	require.Len(t, tags, 2)
	require.Equal(t, "v1.0.0", tags[0].Name)
	require.Equal(t, head, tags[0].Target.String())
	require.Equal(t, head, tags[1].Target.String(), "annotated tags are peeled")

	branches, err := repo.Branches(ctx, git.BranchParams{})
	require.NoError(t, err)
	require.Len(t, branches, 3)
	require.Equal(t, "feature/a", branches[0].Name)
	require.Equal(t, "main", branches[2].Name)
	require.True(t, branches[2].Head)
	require.False(t, branches[0].Head)

	filtered, err := repo.Branches(ctx, git.BranchParams{Prefix: "feature/"})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
}
