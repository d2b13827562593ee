package security

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Confirmer asks an operator whether an untrusted skill may be trusted.
type Confirmer struct {
	In          io.Reader
	Out         io.Writer
	Interactive bool
}

// NewTerminalConfirmer prompts on stderr and reads stdin. It is only
// interactive when stdin is a terminal.
func NewTerminalConfirmer() *Confirmer {
	return &Confirmer{
		In:          os.Stdin,
		Out:         os.Stderr,
		Interactive: term.IsTerminal(int(os.Stdin.Fd())),
	}
}

// Confirm blocks until the operator answers. Anything other than an explicit
// "y" or "yes" is a refusal, as is a non-interactive session.
func (c *Confirmer) Confirm(name, origin string) bool {
	if c == nil || !c.Interactive || c.In == nil {
		return false
	}

	out := c.Out
	if out == nil {
		out = io.Discard
	}
	fmt.Fprintf(out, "Skill %q from %s is not trusted.\n", name, origin)
	fmt.Fprint(out, "Skills can run code on this machine. Trust it? [y/N]: ")

	line, err := bufio.NewReader(c.In).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

// ConfirmUntrustedSource prompts on the controlling terminal.
func ConfirmUntrustedSource(name, origin string) bool {
	return NewTerminalConfirmer().Confirm(name, origin)
}
