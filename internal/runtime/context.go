package runtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"gitdeck.dev/gitdeck/internal/config"
	"gitdeck.dev/gitdeck/internal/dispatch"
	"gitdeck.dev/gitdeck/internal/engine"
	"gitdeck.dev/gitdeck/internal/git"
	"gitdeck.dev/gitdeck/internal/metrics"
	"gitdeck.dev/gitdeck/internal/remote"
	"gitdeck.dev/gitdeck/internal/tui"
	"gitdeck.dev/gitdeck/internal/watcher"
)

// Options locate the repository and its configuration
type Options struct {
	Location   git.Location
	ConfigPath string
	// Flags are bound onto configuration keys by name
	Flags *pflag.FlagSet
	Splog *tui.Splog
	// Prompter asks for username and password; the password method is skipped
	// when nil
	Prompter remote.Prompter
	// Passphrase unlocks encrypted key files
	Passphrase remote.PassphraseFunc
	// Repository overrides backend construction details
	Repository git.RepositoryOptions
}

// Context provides access to the engine and output for commands
type Context struct {
	Config      *config.Config
	Repo        *git.Repository
	Engine      *engine.Engine
	Splog       *tui.Splog
	Credentials []remote.CredentialMethod
	Registry    *prometheus.Registry

	metricsSrv *metrics.Server
	watcher    io.Closer
}

// Open loads the configuration, opens the repository and starts the engine
func Open(ctx context.Context, opts Options) (*Context, error) {
	splog := opts.Splog
	if splog == nil {
		splog = tui.NewSplog()
	}

	repo, err := git.OpenRepository(opts.Location, opts.Repository)
	if err != nil {
		return nil, fmt.Errorf("not a git repository: %w", err)
	}

	cfg, err := config.Load(config.LoadOptions{
		Path:   opts.ConfigPath,
		GitDir: GitDir(repo),
		Flags:  opts.Flags,
	})
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	logger := splog.Logger()
	e := engine.New(repo, engine.Config{
		Dispatch: dispatch.Config{
			Workers:           cfg.Engine.Workers,
			QueueSize:         cfg.Engine.QueueSize,
			MutatingQueueSize: cfg.Engine.MutatingQueueSize,
		},
		ProgressInterval: cfg.Engine.ProgressInterval,
	}, engine.Options{Logger: logger, Metrics: m})
	if err := e.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start engine: %w", err)
	}

	c := &Context{
		Config:      cfg,
		Repo:        repo,
		Engine:      e,
		Splog:       splog,
		Credentials: CredentialMethods(cfg.Credentials, opts.Prompter, opts.Passphrase),
		Registry:    reg,
	}

	if cfg.Metrics.Addr != "" {
		srv, err := metrics.Serve(cfg.Metrics.Addr, reg, logger)
		if err != nil {
			_ = c.Close(ctx)
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
		c.metricsSrv = srv
	}
	return c, nil
}

// StartWatcher turns outside changes into engine invalidations, with file
// notifications or on a fixed tick depending on the configuration
func (c *Context) StartWatcher() error {
	if c.watcher != nil {
		return nil
	}
	w, err := watcher.Start(c.Repo.Root(), c.Engine, watcher.Config{
		Enabled:      c.Config.Watcher.Enabled,
		Debounce:     c.Config.Watcher.Debounce,
		TickInterval: c.Config.Watcher.TickInterval,
	}, c.Splog.Logger())
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	c.watcher = w
	return nil
}

// Close stops the watcher, the engine and the metrics endpoint
func (c *Context) Close(ctx context.Context) error {
	var errs []error
	if c.watcher != nil {
		errs = append(errs, c.watcher.Close())
	}
	errs = append(errs, c.Engine.Stop(ctx))
	if c.metricsSrv != nil {
		errs = append(errs, c.metricsSrv.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// MetricsAddr returns the bound metrics address, or "" when disabled
func (c *Context) MetricsAddr() string {
	if c.metricsSrv == nil {
		return ""
	}
	return c.metricsSrv.Addr()
}

// GitDir returns the git directory of repo, or "" when it cannot be located
// (for example a linked worktree whose .git is a file)
func GitDir(repo *git.Repository) string {
	if dir := repo.Location().GitDir; dir != "" {
		return dir
	}
	dir := filepath.Join(repo.Root(), ".git")
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return dir
	}
	return ""
}

// CredentialMethods builds the configured credential methods in order
func CredentialMethods(cfg config.CredentialsConfig, prompter remote.Prompter, passphrase remote.PassphraseFunc) []remote.CredentialMethod {
	var methods []remote.CredentialMethod
	for _, name := range cfg.Methods {
		switch name {
		case "ssh-agent":
			methods = append(methods, remote.SSHAgent{User: cfg.SSHUser})
		case "ssh-key":
			methods = append(methods, remote.SSHKey{User: cfg.SSHUser, Path: cfg.SSHKeyPath, Passphrase: passphrase})
		case "password":
			if prompter != nil {
				methods = append(methods, remote.Password{Prompt: prompter})
			}
		}
	}
	return methods
}

type contextKey struct{}

// WithContext stores c in ctx
func WithContext(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// GetContext returns the runtime context stored by WithContext
func GetContext(ctx context.Context) (*Context, error) {
	if ctx == nil {
		return nil, errors.New("no runtime context")
	}
	c, ok := ctx.Value(contextKey{}).(*Context)
	if !ok {
		return nil, errors.New("no runtime context")
	}
	return c, nil
}
