package testhelpers

import (
	"os"
	"path/filepath"
	"testing"
)

// Scene represents a test scene with a temporary directory and Git repository
type Scene struct {
	Dir  string
	Repo *GitRepo
}

// SceneSetup is a function type for setting up a scene
type SceneSetup func(*Scene) error

// NewScene creates a new test scene with a temporary directory and Git repository.
// The directory is removed by the testing package unless DEBUG is set, in which case
// it is kept for inspection.
func NewScene(t *testing.T, setup SceneSetup) *Scene {
	t.Helper()

	var dir string
	if os.Getenv("DEBUG") != "" {
		tmp, err := os.MkdirTemp("", "gitdeck-test-*")
		if err != nil {
			t.Fatalf("Failed to create temp dir: %v", err)
		}
		t.Logf("scene kept at %s", tmp)
		dir = tmp
	} else {
		dir = t.TempDir()
	}

	// Resolve symlinks (macOS /var -> /private/var) so paths compare equal to what
	// git reports.
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}

	repoDir := filepath.Join(dir, "repo")
	repo, err := NewGitRepo(repoDir)
	if err != nil {
		t.Fatalf("Failed to create Git repo: %v", err)
	}

	scene := &Scene{
		Dir:  repoDir,
		Repo: repo,
	}

	if setup != nil {
		if err := setup(scene); err != nil {
			t.Fatalf("Setup failed: %v", err)
		}
	}
	return scene
}

// BasicSceneSetup is a setup function that creates a basic scene with a single commit
func BasicSceneSetup(scene *Scene) error {
	return scene.Repo.CreateChangeAndCommit("1", "1")
}
