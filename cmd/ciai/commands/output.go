package commands

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/54b3r/ciai-go/internal/query"
)

var (
	// headerStyle for section titles
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	// dimStyle for muted metadata text
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	// yamlBoxStyle frames each extracted YAML block
	yamlBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("42")).
			Padding(0, 1)

	// promptStyle for the follow-up prompt marker
	promptStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("220"))
)

// outputMode selects how a query result is printed.
type outputMode int

const (
	// outputStyled prints a summary line and the answer with terminal styling.
	outputStyled outputMode = iota
	// outputPlain prints only the answer text.
	outputPlain
	// outputYAML prints only the extracted YAML blocks, separated by "---".
	outputYAML
)

// renderResult writes res to w in the given mode.
func renderResult(w io.Writer, res *query.Result, mode outputMode) {
	switch mode {
	case outputPlain:
		fmt.Fprintln(w, res.Answer)
	case outputYAML:
		blocks := make([]string, 0, len(res.YAML))
		for _, b := range res.YAML {
			blocks = append(blocks, strings.Trim(b, "\n"))
		}
		fmt.Fprintln(w, strings.Join(blocks, "\n---\n"))
	default:
		if res.Matches > 0 || res.Packed.Included > 0 {
			fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("found %d contexts (%d candidates, %d prompt tokens)",
				res.Packed.Included, res.Matches, res.PromptTokens)))
		}
		fmt.Fprintln(w, headerStyle.Render("Answer"))
		fmt.Fprintln(w, res.Answer)
		for i, b := range res.YAML {
			fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("YAML block %d", i+1)))
			fmt.Fprintln(w, yamlBoxStyle.Render(strings.Trim(b, "\n")))
		}
	}
}
