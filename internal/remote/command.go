package remote

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/kballard/go-shellquote"
)

// Mode selects the account a command runs as.
type Mode int

const (
	// AsLogin runs as the SSH login user.
	AsLogin Mode = iota
	// AsRoot runs through sudo as the superuser.
	AsRoot
	// AsUser runs through sudo as a named account.
	AsUser
)

func (m Mode) String() string {
	switch m {
	case AsRoot:
		return "sudo"
	case AsUser:
		return "sudo-user"
	default:
		return "run"
	}
}

var varName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Arg is one word of a command line.
type Arg struct {
	value  string
	expand bool
}

// Lit is an argument passed through verbatim.
func Lit(s string) Arg { return Arg{value: s} }

// Var is an argument expanded by the remote shell from the named variable.
func Var(name string) Arg { return Arg{value: name, expand: true} }

func (a Arg) render() string {
	if a.expand {
		return `"$` + a.value + `"`
	}
	return shellquote.Join(a.value)
}

// Command is a typed remote command line. Build with Cmd and the chaining
// methods; nothing is interpreted by the shell except Var arguments.
type Command struct {
	args     []Arg
	pipe     []*Command
	prefixes []*Command
	dir      string
	mode     Mode
	user     string
	noPTY    bool
	interact bool
	quiet    bool
	secret   bool
}

// Cmd starts a command with literal arguments.
func Cmd(name string, args ...string) *Command {
	c := &Command{args: []Arg{Lit(name)}}
	for _, a := range args {
		c.args = append(c.args, Lit(a))
	}
	return c
}

// Append adds typed arguments.
func (c *Command) Append(args ...Arg) *Command {
	c.args = append(c.args, args...)
	return c
}

// Sudo runs the command as root.
func (c *Command) Sudo() *Command {
	c.mode = AsRoot
	c.user = ""
	return c
}

// As runs the command as user through sudo.
func (c *Command) As(user string) *Command {
	c.mode = AsUser
	c.user = user
	return c
}

// In changes to dir before running.
func (c *Command) In(dir string) *Command {
	c.dir = dir
	return c
}

// Source sources a shell file before running.
func (c *Command) Source(file string) *Command {
	c.prefixes = append(c.prefixes, Cmd(".", file))
	return c
}

// Pipe feeds this command's output into next.
func (c *Command) Pipe(next *Command) *Command {
	c.pipe = append(c.pipe, next)
	return c
}

// NoPTY disables pseudo-terminal allocation.
func (c *Command) NoPTY() *Command {
	c.noPTY = true
	return c
}

// Interactive attaches the operator's terminal to the command.
func (c *Command) Interactive() *Command {
	c.interact = true
	return c
}

// Quiet keeps the command's output out of logs and the console.
func (c *Command) Quiet() *Command {
	c.quiet = true
	return c
}

// Secret marks a command line that carries a credential. It implies Quiet,
// and Display hides every argument.
func (c *Command) Secret() *Command {
	c.secret = true
	c.quiet = true
	return c
}

func (c *Command) Mode() Mode { return c.mode }
func (c *Command) User() string { return c.user }
func (c *Command) Dir() string { return c.dir }
func (c *Command) WantsPTY() bool { return !c.noPTY }
func (c *Command) IsInteractive() bool { return c.interact }
func (c *Command) IsQuiet() bool { return c.quiet }
func (c *Command) IsSecret() bool { return c.secret }

// Validate rejects variable names the remote shell would not expand as-is.
func (c *Command) Validate() error {
	if len(c.args) == 0 {
		return fmt.Errorf("empty command")
	}
	for _, a := range c.args {
		if a.expand && !varName.MatchString(a.value) {
			return fmt.Errorf("invalid variable name %q", a.value)
		}
	}
	if c.mode == AsUser && c.user == "" {
		return fmt.Errorf("sudo user not set for %q", c.args[0].value)
	}
	for _, p := range c.pipe {
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Argv returns the literal words of the command without pipes or wrapping.
// Var arguments are shown as $NAME.
func (c *Command) Argv() []string {
	out := make([]string, len(c.args))
	for i, a := range c.args {
		if a.expand {
			out[i] = "$" + a.value
		} else {
			out[i] = a.value
		}
	}
	return out
}

// Line renders the command and its pipe chain, without directory, prefixes
// or the sudo wrapper of the outermost command.
func (c *Command) Line() string {
	parts := []string{c.words()}
	for _, p := range c.pipe {
		parts = append(parts, p.wrap(p.Line()))
	}
	return strings.Join(parts, " | ")
}

func (c *Command) words() string {
	words := make([]string, len(c.args))
	for i, a := range c.args {
		words[i] = a.render()
	}
	return strings.Join(words, " ")
}

// String renders the full command line sent to the remote shell.
func (c *Command) String() string {
	var steps []string
	if c.dir != "" {
		steps = append(steps, "cd "+shellquote.Join(c.dir))
	}
	for _, p := range c.prefixes {
		steps = append(steps, p.Line())
	}
	steps = append(steps, c.Line())
	return c.wrap(strings.Join(steps, " && "))
}

// Display renders the command for logs and errors: String, or only the
// program name for a Secret command.
func (c *Command) Display() string {
	if !c.secret {
		return c.String()
	}
	name := "command"
	if len(c.args) > 0 {
		name = c.args[0].value
	}
	return name + " [redacted]"
}

func (c *Command) wrap(body string) string {
	switch c.mode {
	case AsRoot:
		return "sudo -H bash -c " + shellquote.Join(body)
	case AsUser:
		return "sudo -H -u " + shellquote.Join(c.user) + " bash -c " + shellquote.Join(body)
	default:
		return body
	}
}
