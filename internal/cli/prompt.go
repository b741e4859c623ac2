package cli

import (
	"context"
	"fmt"
	"sync"

	"github.com/AlecAivazis/survey/v2"
	tea "github.com/charmbracelet/bubbletea"
)

// surveyPrompter asks for credentials on the terminal. While the TUI runs it
// releases the terminal for the duration of a prompt.
type surveyPrompter struct {
	mu      sync.Mutex
	program *tea.Program
	askOpts []survey.AskOpt
}

func (p *surveyPrompter) attach(program *tea.Program) {
	p.mu.Lock()
	p.program = program
	p.mu.Unlock()
}

// ask runs one survey exchange with exclusive use of the terminal
func (p *surveyPrompter) ask(qs []*survey.Question, answers any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.program != nil {
		if err := p.program.ReleaseTerminal(); err != nil {
			return err
		}
		defer func() { _ = p.program.RestoreTerminal() }()
	}
	return survey.Ask(qs, answers, p.askOpts...)
}

// Credentials asks for a username and password for url
func (p *surveyPrompter) Credentials(ctx context.Context, url string) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}
	qs := []*survey.Question{
		{
			Name:     "username",
			Prompt:   &survey.Input{Message: fmt.Sprintf("Username for %s:", url)},
			Validate: survey.Required,
		},
		{
			Name:   "password",
			Prompt: &survey.Password{Message: "Password:"},
		},
	}
	var answers struct {
		Username string `survey:"username"`
		Password string `survey:"password"`
	}
	if err := p.ask(qs, &answers); err != nil {
		return "", "", err
	}
	return answers.Username, answers.Password, nil
}

// Passphrase asks for the passphrase of an encrypted key file
func (p *surveyPrompter) Passphrase(ctx context.Context, keyPath string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	qs := []*survey.Question{{
		Name:   "passphrase",
		Prompt: &survey.Password{Message: fmt.Sprintf("Passphrase for %s:", keyPath)},
	}}
	var answers struct {
		Passphrase string `survey:"passphrase"`
	}
	if err := p.ask(qs, &answers); err != nil {
		return "", err
	}
	return answers.Passphrase, nil
}
