// Package markdown renders model replies for the terminal.
package markdown

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
)

// Config holds renderer settings
type Config struct {
	Width    int
	WordWrap bool
}

// ChatConfig returns settings tuned for chat replies
func ChatConfig() *Config {
	return &Config{
		Width:    100,
		WordWrap: true,
	}
}

// Renderer wraps glamour for chat message display
type Renderer struct {
	term   *glamour.TermRenderer
	config *Config
}

// NewRenderer creates a renderer with the given settings
func NewRenderer(config *Config) (*Renderer, error) {
	if config == nil {
		config = ChatConfig()
	}

	term, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(config.Width),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create glamour renderer: %w", err)
	}

	return &Renderer{term: term, config: config}, nil
}

// Render renders markdown to styled terminal output
func (r *Renderer) Render(markdown string) (string, error) {
	if markdown == "" {
		return "", nil
	}

	rendered, err := r.term.Render(trimTrailingSpace(markdown))
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}

	return collapseBlankLines(rendered), nil
}

// trimTrailingSpace strips trailing whitespace per line, leaving fenced code
// blocks untouched
func trimTrailingSpace(markdown string) string {
	lines := strings.Split(markdown, "\n")
	inFence := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			continue
		}
		if !inFence {
			lines[i] = strings.TrimRight(line, " \t")
		}
	}
	return strings.Join(lines, "\n")
}

// collapseBlankLines caps consecutive blank lines at one
func collapseBlankLines(rendered string) string {
	lines := strings.Split(rendered, "\n")
	result := make([]string, 0, len(lines))
	blanks := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			blanks++
			if blanks > 1 {
				continue
			}
		} else {
			blanks = 0
		}
		result = append(result, line)
	}
	return strings.Join(result, "\n")
}
