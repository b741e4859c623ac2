package remote

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v5/plumbing/transport/ssh"
	"golang.org/x/crypto/ssh"

	gderrors "gitdeck.dev/gitdeck/internal/errors"
)

// Target names the remote end of an operation. An empty URL is resolved from the
// repository's remote configuration before the first attempt.
type Target struct {
	Remote string
	URL    string
	Branch string
	Force  bool
}

// CredentialMethod produces one credential for a target. Methods that cannot apply
// (no agent, missing key, http method on an ssh url) return an error wrapping
// ErrCredentialUnavailable.
type CredentialMethod interface {
	Name() string
	Auth(ctx context.Context, target Target) (transport.AuthMethod, error)
}

// Prompter asks the user for a username and password
type Prompter interface {
	Credentials(ctx context.Context, url string) (username, password string, err error)
}

// PassphraseFunc asks for the passphrase of an encrypted key file
type PassphraseFunc func(ctx context.Context, keyPath string) (string, error)

func unavailable(method, format string, args ...any) error {
	return fmt.Errorf("%s: %s: %w", method, fmt.Sprintf(format, args...), gderrors.ErrCredentialUnavailable)
}

func endpoint(url string) (*transport.Endpoint, error) {
	ep, err := transport.NewEndpoint(url)
	if err != nil {
		return nil, fmt.Errorf("invalid remote url %q: %w", url, err)
	}
	return ep, nil
}

func sshUser(ep *transport.Endpoint, configured string) string {
	if configured != "" {
		return configured
	}
	if ep.User != "" {
		return ep.User
	}
	return "git"
}

// SSHAgent authenticates with the keys held by the running ssh-agent
type SSHAgent struct {
	User string
}

func (SSHAgent) Name() string { return "ssh-agent" }

func (m SSHAgent) Auth(_ context.Context, target Target) (transport.AuthMethod, error) {
	ep, err := endpoint(target.URL)
	if err != nil {
		return nil, err
	}
	if ep.Protocol != "ssh" {
		return nil, unavailable(m.Name(), "%s is not an ssh remote", target.URL)
	}
	auth, err := gitssh.NewSSHAgentAuth(sshUser(ep, m.User))
	if err != nil {
		return nil, unavailable(m.Name(), "%v", err)
	}
	return auth, nil
}

// SSHKey authenticates with a private key file. Encrypted keys need Passphrase.
type SSHKey struct {
	User       string
	Path       string
	Passphrase PassphraseFunc
}

func (SSHKey) Name() string { return "ssh-key" }

func (m SSHKey) Auth(ctx context.Context, target Target) (transport.AuthMethod, error) {
	ep, err := endpoint(target.URL)
	if err != nil {
		return nil, err
	}
	if ep.Protocol != "ssh" {
		return nil, unavailable(m.Name(), "%s is not an ssh remote", target.URL)
	}

	path := m.Path
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, unavailable(m.Name(), "no key path and no home directory")
		}
		path = filepath.Join(home, ".ssh", "id_ed25519")
	}
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, unavailable(m.Name(), "%v", err)
	}

	var passphrase string
	if _, err := ssh.ParsePrivateKey(pem); err != nil {
		var missing *ssh.PassphraseMissingError
		if !errors.As(err, &missing) {
			return nil, unavailable(m.Name(), "parse %s: %v", path, err)
		}
		if m.Passphrase == nil {
			return nil, unavailable(m.Name(), "%s is encrypted and no passphrase prompt is configured", path)
		}
		passphrase, err = m.Passphrase(ctx, path)
		if err != nil {
			return nil, unavailable(m.Name(), "passphrase: %v", err)
		}
	}

	auth, err := gitssh.NewPublicKeys(sshUser(ep, m.User), pem, passphrase)
	if err != nil {
		// A wrong passphrase is a rejected credential, not a missing one.
		return nil, fmt.Errorf("%s: %w: %v", m.Name(), gderrors.ErrAuthFailed, err)
	}
	return auth, nil
}

// Password asks for a username and password for http remotes
type Password struct {
	Prompt Prompter
}

func (Password) Name() string { return "password" }

func (m Password) Auth(ctx context.Context, target Target) (transport.AuthMethod, error) {
	ep, err := endpoint(target.URL)
	if err != nil {
		return nil, err
	}
	if ep.Protocol != "http" && ep.Protocol != "https" {
		return nil, unavailable(m.Name(), "%s is not an http remote", target.URL)
	}
	if m.Prompt == nil {
		return nil, unavailable(m.Name(), "no prompt configured")
	}
	user, pass, err := m.Prompt.Credentials(ctx, target.URL)
	if err != nil {
		return nil, unavailable(m.Name(), "%v", err)
	}
	if user == "" && ep.User != "" {
		user = ep.User
	}
	return &githttp.BasicAuth{Username: user, Password: pass}, nil
}

// anonymous is the single attempt made when no methods are configured
type anonymous struct{}

func (anonymous) Name() string { return "anonymous" }

func (anonymous) Auth(context.Context, Target) (transport.AuthMethod, error) {
	return nil, nil
}
