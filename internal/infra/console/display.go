package console

import (
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
)

// Display prints the conversation to a terminal. Styles degrade to plain
// text when the writer is not a terminal.
type Display struct {
	mu           sync.Mutex
	w            io.Writer
	showPartials bool

	label    lipgloss.Style
	bot      lipgloss.Style
	partial  lipgloss.Style
	errStyle lipgloss.Style
}

func NewDisplay(w io.Writer, showPartials bool) *Display {
	r := lipgloss.NewRenderer(w)
	return &Display{
		w:            w,
		showPartials: showPartials,
		label:        r.NewStyle().Bold(true).Foreground(lipgloss.Color("#87CEEB")),
		bot:          r.NewStyle().Bold(true).Foreground(lipgloss.Color("#98FB98")),
		partial:      r.NewStyle().Faint(true),
		errStyle:     r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
	}
}

func (d *Display) Partial(text string) {
	if !d.showPartials {
		return
	}
	d.println(d.partial.Render("… " + text))
}

func (d *Display) Utterance(text string) {
	d.println(d.label.Render("You said:") + " " + text)
}

func (d *Display) Response(text string) {
	d.println(d.bot.Render("ChatBot:") + " " + text)
}

func (d *Display) Failure(err error) {
	d.println(d.errStyle.Render("Error: " + err.Error()))
}

func (d *Display) println(line string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fmt.Fprintln(d.w, line)
}
