package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/Iron-Ham/fanout/internal/tui/styles"
)

const defaultRuleWidth = 50

// ruleWidth is the width of section rules: the terminal width capped at
// 80, or 50 when stdout is not a terminal.
func ruleWidth() int {
	fd := int(os.Stdout.Fd())
	if !term.IsTerminal(fd) {
		return defaultRuleWidth
	}
	if w, _, err := term.GetSize(fd); err == nil && w > 0 {
		return min(w, 80)
	}
	return defaultRuleWidth
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// section writes a titled block followed by a rule.
func section(w io.Writer, title string) {
	fmt.Fprintln(w, styles.Section.Render(styles.Title.Render(strings.ToUpper(title))))
	fmt.Fprintln(w, styles.Muted.Render(strings.Repeat("─", ruleWidth())))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// yesNo renders a boolean verdict.
func yesNo(ok bool, yes, no string) string {
	if ok {
		return styles.Secondary.Render(yes)
	}
	return styles.Error.Render(no)
}
