package tui

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"

	"gitdeck.dev/gitdeck/internal/engine"
	"gitdeck.dev/gitdeck/internal/git"
	"gitdeck.dev/gitdeck/internal/notify"
	"gitdeck.dev/gitdeck/internal/remote"
)

// Tab is one view of the application
type Tab int

const (
	TabStatus Tab = iota
	TabLog
	TabBranches
)

var tabNames = []string{"status", "log", "branches"}

func (t Tab) String() string {
	return tabNames[t]
}

// visibleKinds are refreshed after every invalidation
var visibleKinds = []git.Kind{git.KindStatus, git.KindLog, git.KindBranches}

// loadingKinds drive the spinner
var loadingKinds = []git.Kind{git.KindStatus, git.KindLog, git.KindCommitInfo, git.KindBranches}

// AppOptions configures the application model
type AppOptions struct {
	// Credentials are tried in order for fetch, push and pull
	Credentials []remote.CredentialMethod
	// Remote defaults to origin
	Remote string
	// LogLimit caps the commit log; zero means no limit
	LogLimit int
	// MessageLimit truncates commit subjects; zero uses the backend default
	MessageLimit int
}

// notificationsMsg carries every notification drained after a wake-up
type notificationsMsg []notify.Notification

// App is the bubbletea model rendering engine results. It never calls the backend
// itself; everything goes through the engine's consumer surface.
type App struct {
	engine engine.Consumer
	opts   AppOptions
	ctx    context.Context
	cancel context.CancelFunc

	tab      Tab
	spinner  spinner.Model
	progress progress.Model
	viewport viewport.Model

	status   *git.StatusResult
	commits  []git.CommitInfo
	branches []git.Ref
	errs     map[git.Kind]error

	op       remote.Handle
	opKind   git.Kind
	opPhase  string
	opStats  notify.Progress
	opResult string

	quitting bool
}

// NewApp creates the application model on top of e
func NewApp(e engine.Consumer, opts AppOptions) *App {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = spinnerStyle

	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		engine:   e,
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
		spinner:  s,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		viewport: viewport.New(80, 20),
		errs:     make(map[git.Kind]error),
	}
}

// waitForNotifications blocks on the engine and hands every available
// notification to Update in one message
func waitForNotifications(ctx context.Context, c engine.Notifications) tea.Cmd {
	return func() tea.Msg {
		if err := c.Wait(ctx); err != nil {
			return nil
		}
		return notificationsMsg(c.Drain())
	}
}

func (m *App) Init() tea.Cmd {
	m.refresh()
	return tea.Batch(m.spinner.Tick, waitForNotifications(m.ctx, m.engine))
}

// refresh loads every visible query. Results whose cache token is still valid
// are shown directly; only misses are spawned.
func (m *App) refresh() {
	for _, kind := range visibleKinds {
		m.request(m.paramsFor(kind))
	}
}

func (m *App) paramsFor(kind git.Kind) any {
	switch kind {
	case git.KindStatus:
		return git.StatusParams{}
	case git.KindLog:
		return git.LogParams{Limit: m.opts.LogLimit}
	case git.KindBranches:
		return git.BranchParams{}
	}
	return nil
}

// request serves params from the cache when possible and spawns it otherwise
func (m *App) request(params any) {
	kind, ok := git.KindOf(params)
	if !ok {
		return
	}
	if v, ok := m.engine.Cached(params); ok {
		m.apply(kind, v)
		return
	}
	if _, err := m.engine.Spawn(params); err != nil {
		m.errs[kind] = err
	}
}

func (m *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m, m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-6, 3)
		m.progress.Width = min(max(msg.Width-30, 10), 60)
		m.render()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		pm, cmd := m.progress.Update(msg)
		m.progress = pm.(progress.Model)
		return m, cmd

	case notificationsMsg:
		cmds := []tea.Cmd{waitForNotifications(m.ctx, m.engine)}
		for _, n := range msg {
			if cmd := m.handleNotification(n); cmd != nil {
				cmds = append(cmds, cmd)
			}
		}
		m.render()
		return m, tea.Batch(cmds...)
	}

	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *App) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "ctrl+c", "q":
		m.quitting = true
		m.cancel()
		return tea.Quit
	case "tab":
		m.tab = (m.tab + 1) % Tab(len(tabNames))
		m.render()
	case "r":
		m.engine.InvalidateAll("manual refresh")
	case "f":
		m.startRemote(git.KindFetch)
	case "p":
		m.startRemote(git.KindPush)
	case "P":
		m.startRemote(git.KindPull)
	case "x":
		if m.op != uuid.Nil {
			m.engine.Cancel(m.op)
		}
	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd
	}
	return nil
}

func (m *App) startRemote(kind git.Kind) {
	if m.op != uuid.Nil {
		return
	}
	h, err := m.engine.StartRemoteOp(kind, remote.Target{Remote: m.opts.Remote}, m.opts.Credentials)
	if err != nil {
		m.errs[kind] = err
		return
	}
	delete(m.errs, kind)
	m.op = h
	m.opKind = kind
	m.opPhase = remote.PhaseIdle.String()
	m.opStats = notify.Progress{}
	m.opResult = ""
}

func (m *App) handleNotification(n notify.Notification) tea.Cmd {
	switch n := n.(type) {
	case notify.JobCompleted:
		delete(m.errs, n.Kind)
		m.collect(n.Kind)

	case notify.JobFailed:
		m.errs[n.Kind] = n.Err

	case notify.BackendStateChanged:
		m.refresh()

	case notify.RemoteOpProgress:
		if m.op == uuid.Nil || n.Handle != m.op.String() {
			return nil
		}
		m.opPhase = n.Phase
		m.opStats = n.Progress
		cmd := m.progress.SetPercent(n.Progress.Percent())
		if st, ok := m.engine.State(m.op); ok && st.Phase.Terminal() {
			m.finishRemote(st)
		}
		return cmd
	}
	return nil
}

func (m *App) collect(kind git.Kind) {
	v, _, ok := m.engine.LastResult(kind)
	if !ok {
		return
	}
	m.apply(kind, v)
}

// apply stores one query result for rendering
func (m *App) apply(kind git.Kind, v any) {
	switch kind {
	case git.KindStatus:
		if st, ok := v.(*git.StatusResult); ok {
			m.status = st
		}
	case git.KindLog:
		ids, ok := v.([]git.CommitID)
		if !ok {
			return
		}
		if len(ids) == 0 {
			m.commits = nil
			return
		}
		m.request(git.CommitInfoParams{IDs: ids, MessageLimit: m.opts.MessageLimit})
	case git.KindCommitInfo:
		if infos, ok := v.([]git.CommitInfo); ok {
			m.commits = infos
		}
	case git.KindBranches:
		if refs, ok := v.([]git.Ref); ok {
			m.branches = refs
		}
	}
}

func (m *App) finishRemote(st remote.State) {
	switch {
	case st.Err != nil:
		m.errs[st.Kind] = st.Err
		m.opResult = fmt.Sprintf("%s %s", st.Kind, st.Phase)
	case st.Result != nil && st.Result.UpToDate:
		m.opResult = fmt.Sprintf("%s: already up to date", st.Kind)
	default:
		m.opResult = fmt.Sprintf("%s %s", st.Kind, st.Phase)
	}
	m.op = uuid.Nil
}

// pending reports whether any visible query is still running
func (m *App) pending() bool {
	for _, kind := range loadingKinds {
		if m.engine.IsPending(kind) {
			return true
		}
	}
	return m.op != uuid.Nil
}

// render refreshes the viewport body for the current tab
func (m *App) render() {
	var b strings.Builder
	switch m.tab {
	case TabStatus:
		m.renderStatus(&b)
	case TabLog:
		m.renderLog(&b)
	case TabBranches:
		m.renderBranches(&b)
	}
	m.viewport.SetContent(b.String())
}

func (m *App) renderStatus(b *strings.Builder) {
	if m.status == nil {
		b.WriteString(dimStyle.Render("loading status..."))
		return
	}
	if m.status.Clean() {
		b.WriteString(doneStyle.Render("nothing to commit, working tree clean"))
		return
	}
	for _, f := range m.status.Files {
		fmt.Fprintf(b, "%s %s\n", ColorStatusCode(f.Staging, f.Worktree), f.Path)
	}
}

func (m *App) renderLog(b *strings.Builder) {
	if len(m.commits) == 0 {
		b.WriteString(dimStyle.Render("no commits loaded"))
		return
	}
	authorWidth := 0
	for _, c := range m.commits {
		authorWidth = max(authorWidth, runewidth.StringWidth(c.Author))
	}
	authorWidth = min(authorWidth, 20)
	for _, c := range m.commits {
		when := time.Unix(c.Time, 0).Format("2006-01-02")
		author := runewidth.FillRight(runewidth.Truncate(c.Author, authorWidth, "…"), authorWidth)
		fmt.Fprintf(b, "%s %s %s %s\n", ColorYellow(c.ID.Short()), dimStyle.Render(when), ColorCyan(author), c.Message)
	}
}

func (m *App) renderBranches(b *strings.Builder) {
	if len(m.branches) == 0 {
		b.WriteString(dimStyle.Render("no branches"))
		return
	}
	for _, r := range m.branches {
		marker := "  "
		name := r.Name
		if r.Head {
			marker = "* "
			name = ColorGreen(name)
		}
		fmt.Fprintf(b, "%s%s %s\n", marker, name, dimStyle.Render(r.Target.Short()))
	}
}

func (m *App) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder

	tabs := make([]string, len(tabNames))
	for i, name := range tabNames {
		if Tab(i) == m.tab {
			tabs[i] = activeTab.Render(name)
		} else {
			tabs[i] = tabStyle.Render(name)
		}
	}
	head := "gitdeck"
	if m.status != nil && m.status.Branch != "" {
		head += " on " + m.status.Branch
	}
	line := headerStyle.Render(head) + "  " + lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
	if m.pending() {
		line += " " + m.spinner.View()
	}
	b.WriteString(line + "\n\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	switch {
	case m.op != uuid.Nil:
		fmt.Fprintf(&b, "%s %s %s %s\n", m.opKind, m.opPhase, m.progress.View(), dimStyle.Render(m.opStats.Stage))
	case m.opResult != "":
		b.WriteString(doneStyle.Render(m.opResult) + "\n")
	}
	for _, kind := range git.AllKinds {
		if err, ok := m.errs[kind]; ok {
			b.WriteString(errorStyle.Render(fmt.Sprintf("%s: %v", kind, err)) + "\n")
		}
	}
	b.WriteString(dimStyle.Render("tab switch view · r refresh · f fetch · p push · P pull · x cancel · q quit"))
	return b.String()
}

// RunOptions wires the program to the terminal
type RunOptions struct {
	Input  io.Reader
	Output io.Writer
	// OnProgram is called with the program before it starts, for example to let
	// credential prompts release the terminal
	OnProgram func(p *tea.Program)
}

// RunApp runs the application until the user quits
func RunApp(e engine.Consumer, opts AppOptions, run RunOptions) error {
	if run.Input == nil {
		run.Input = os.Stdin
	}
	if run.Output == nil {
		run.Output = os.Stdout
	}
	lipgloss.SetColorProfile(termenv.EnvColorProfile())

	p := tea.NewProgram(NewApp(e, opts), tea.WithAltScreen(), tea.WithInput(run.Input), tea.WithOutput(run.Output))
	if run.OnProgram != nil {
		run.OnProgram(p)
	}
	_, err := p.Run()
	return err
}

// IsTTY returns true if we can use a TTY for interactive TUI
func IsTTY() bool {
	if !((isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())) &&
		(isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()))) {
		return false
	}
	f, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}
