// Package cli implements the command logic behind cmd/pqc: headless
// sequence runs, table calibration and status queries, with colored TTY
// output.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/hephy-dd/pqc/pkg/domain"
)

// stateColors maps terminal node states to their display color.
var stateColors = map[domain.NodeState]string{
	domain.StateSuccess:       "#22c55e",
	domain.StateCompliance:    "#f97316",
	domain.StateTimeout:       "#f97316",
	domain.StateError:         "#ef4444",
	domain.StateAnalysisError: "#eab308",
	domain.StateStopped:       "#94a3b8",
	domain.StateProcessing:    "#38bdf8",
}

// Printer renders command output, colored when stdout is a terminal.
type Printer struct {
	out     io.Writer
	profile termenv.Profile
}

// NewPrinter builds a printer over a file. Non-TTY targets get plain
// output.
func NewPrinter(out *os.File) *Printer {
	profile := termenv.Ascii
	if term.IsTerminal(int(out.Fd())) {
		profile = termenv.ColorProfile()
	}
	return &Printer{out: out, profile: profile}
}

// State renders a node state in its color.
func (p *Printer) State(state domain.NodeState) string {
	s := termenv.String(string(state))
	if color, ok := stateColors[state]; ok {
		s = s.Foreground(p.profile.Color(color))
	}
	return s.String()
}

// Printf writes a formatted line.
func (p *Printer) Printf(format string, args ...any) {
	fmt.Fprintf(p.out, format+"\n", args...)
}

// hooks returns lifecycle hooks that narrate a run on the printer.
func (p *Printer) hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnMessage: func(text string) {
			p.Printf("%s", text)
		},
		OnStateChanged: func(node *domain.Node, state domain.NodeState) {
			if state.IsTerminal() {
				p.Printf("  %-12s %-32s %s", node.Kind, node.Name, p.State(state))
			}
		},
	}
}
