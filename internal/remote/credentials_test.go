package remote_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"os"
	"path/filepath"
	"testing"

	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	gderrors "gitdeck.dev/gitdeck/internal/errors"
	"gitdeck.dev/gitdeck/internal/remote"
)

type staticPrompter struct {
	user, pass string
	err        error
}

func (p staticPrompter) Credentials(context.Context, string) (string, string, error) {
	return p.user, p.pass, p.err
}

func writeKey(t *testing.T, passphrase string) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	var block *pem.Block
	if passphrase == "" {
		block, err = ssh.MarshalPrivateKey(priv, "test")
	} else {
		block, err = ssh.MarshalPrivateKeyWithPassphrase(priv, "test", []byte(passphrase))
	}
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0o600))
	return path
}

func TestPassword(t *testing.T) {
	ctx := context.Background()
	https := remote.Target{URL: "https://example.com/o/r.git"}

	auth, err := remote.Password{Prompt: staticPrompter{user: "me", pass: "secret"}}.Auth(ctx, https)
	require.NoError(t, err)
	require.Equal(t, &githttp.BasicAuth{Username: "me", Password: "secret"}, auth)

	_, err = remote.Password{Prompt: staticPrompter{user: "me"}}.Auth(ctx, remote.Target{URL: "git@example.com:o/r.git"})
	require.ErrorIs(t, err, gderrors.ErrCredentialUnavailable)

	_, err = remote.Password{}.Auth(ctx, https)
	require.ErrorIs(t, err, gderrors.ErrCredentialUnavailable)

	_, err = remote.Password{Prompt: staticPrompter{err: errors.New("declined")}}.Auth(ctx, https)
	require.ErrorIs(t, err, gderrors.ErrCredentialUnavailable)
}

func TestSSHAgent_NonSSHRemote(t *testing.T) {
	_, err := remote.SSHAgent{}.Auth(context.Background(), remote.Target{URL: "https://example.com/o/r.git"})
	require.ErrorIs(t, err, gderrors.ErrCredentialUnavailable)
}

func TestSSHKey(t *testing.T) {
	ctx := context.Background()
	target := remote.Target{URL: "ssh://deploy@example.com/o/r.git"}

	t.Run("plain key", func(t *testing.T) {
		auth, err := remote.SSHKey{Path: writeKey(t, "")}.Auth(ctx, target)
		require.NoError(t, err)
		keys, ok := auth.(*gitssh.PublicKeys)
		require.True(t, ok)
		require.Equal(t, "deploy", keys.User)
	})

	t.Run("configured user wins", func(t *testing.T) {
		auth, err := remote.SSHKey{User: "git", Path: writeKey(t, "")}.Auth(ctx, target)
		require.NoError(t, err)
		require.Equal(t, "git", auth.(*gitssh.PublicKeys).User)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := remote.SSHKey{Path: filepath.Join(t.TempDir(), "nope")}.Auth(ctx, target)
		require.ErrorIs(t, err, gderrors.ErrCredentialUnavailable)
	})

	t.Run("encrypted key", func(t *testing.T) {
		path := writeKey(t, "hunter2")

		_, err := remote.SSHKey{Path: path}.Auth(ctx, target)
		require.ErrorIs(t, err, gderrors.ErrCredentialUnavailable)

		asked := 0
		auth, err := remote.SSHKey{Path: path, Passphrase: func(_ context.Context, p string) (string, error) {
			asked++
			require.Equal(t, path, p)
			return "hunter2", nil
		}}.Auth(ctx, target)
		require.NoError(t, err)
		require.NotNil(t, auth)
		require.Equal(t, 1, asked)

		_, err = remote.SSHKey{Path: path, Passphrase: func(context.Context, string) (string, error) {
			return "wrong", nil
		}}.Auth(ctx, target)
		require.ErrorIs(t, err, gderrors.ErrAuthFailed)
	})

	t.Run("http remote", func(t *testing.T) {
		_, err := remote.SSHKey{Path: writeKey(t, "")}.Auth(ctx, remote.Target{URL: "https://example.com/o/r.git"})
		require.ErrorIs(t, err, gderrors.ErrCredentialUnavailable)
	})
}
