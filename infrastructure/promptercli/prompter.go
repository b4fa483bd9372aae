// Package promptercli implements interactive consent prompts for
// terminal sessions.
package promptercli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/hostguard-dev/hostguard/domain/entities"
	"github.com/hostguard-dev/hostguard/domain/ports"
)

// CliPrompter implements ports.Prompter over an input/output pair,
// normally stdin and stderr.
type CliPrompter struct {
	in      io.Reader
	out     io.Writer
	scanner *bufio.Scanner
}

// NewCliPrompter creates a prompter. Pass os.Stdin for terminal
// detection to work.
func NewCliPrompter(in io.Reader, out io.Writer) *CliPrompter {
	return &CliPrompter{in: in, out: out, scanner: bufio.NewScanner(in)}
}

// IsInteractive reports whether the input is a terminal.
func (p *CliPrompter) IsInteractive() bool {
	if f, ok := p.in.(*os.File); ok {
		stat, err := f.Stat()
		if err != nil {
			return false
		}
		return (stat.Mode() & os.ModeCharDevice) != 0
	}
	return false
}

// PromptConsent presents each consent-requiring permission in turn and
// returns exactly what the user granted. Anything other than an
// explicit yes is a denial.
func (p *CliPrompter) PromptConsent(pluginID string, prompts []entities.ConsentPrompt) (entities.ConsentFlags, error) {
	var granted entities.ConsentFlags
	if len(prompts) == 0 {
		return granted, nil
	}

	_, _ = fmt.Fprintf(p.out, "Plugin %s requests the following permissions:\n", pluginID)
	for _, prompt := range prompts {
		_, _ = fmt.Fprintf(p.out, "\n- [%s risk] %s\n", prompt.Risk, prompt.Description)
		_, _ = fmt.Fprintf(p.out, "  Allow? [y/N]: ")

		answer, err := p.readLine()
		if err != nil {
			return entities.ConsentFlags{}, err
		}
		if answer != "y" && answer != "yes" {
			continue
		}

		switch prompt.Kind {
		case "network":
			granted.NetworkAll = true
		case "shell":
			granted.Shell = true
		case "env":
			granted.EnvVars = append(granted.EnvVars, prompt.Subject)
		}
	}
	return granted, nil
}

// Confirm asks a single yes/no question, defaulting to no.
func (p *CliPrompter) Confirm(message string) (bool, error) {
	_, _ = fmt.Fprintf(p.out, "%s [y/N]: ", message)
	answer, err := p.readLine()
	if err != nil {
		return false, err
	}
	return answer == "y" || answer == "yes", nil
}

func (p *CliPrompter) readLine() (string, error) {
	if p.scanner.Scan() {
		return strings.ToLower(strings.TrimSpace(p.scanner.Text())), nil
	}
	if err := p.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

var _ ports.Prompter = (*CliPrompter)(nil)
