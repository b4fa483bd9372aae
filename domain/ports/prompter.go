package ports

import "github.com/hostguard-dev/hostguard/domain/entities"

// Prompter handles interactive consent during install and first run.
type Prompter interface {
	// IsInteractive returns true if running in an interactive terminal.
	IsInteractive() bool

	// PromptConsent presents the consent-requiring permissions of one
	// plugin and returns which of them the user granted.
	PromptConsent(pluginID string, prompts []entities.ConsentPrompt) (entities.ConsentFlags, error)

	// Confirm asks a single yes/no question (install warnings).
	Confirm(message string) (bool, error)
}
