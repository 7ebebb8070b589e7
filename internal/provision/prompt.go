package provision

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Prompter asks the operator yes/no questions.
type Prompter interface {
	Confirm(question string, def bool) bool
}

// TerminalPrompter reads answers from a terminal. Without one it answers
// with the default.
type TerminalPrompter struct {
	In  *os.File
	Out io.Writer
}

func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{In: os.Stdin, Out: os.Stdout}
}

func (t *TerminalPrompter) Confirm(question string, def bool) bool {
	if !term.IsTerminal(int(t.In.Fd())) {
		return def
	}

	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	fmt.Fprintf(t.Out, "%s %s ", question, hint)

	line, err := bufio.NewReader(t.In).ReadString('\n')
	if err != nil {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	case "n", "no":
		return false
	default:
		return def
	}
}

// FixedPrompter gives the same answer to every question.
type FixedPrompter struct {
	Answer bool
}

func (f FixedPrompter) Confirm(string, bool) bool { return f.Answer }
