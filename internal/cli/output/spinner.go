package output

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Spinner shows progress for a blocking operation. It only animates when
// w is a terminal; otherwise only the final line is written.
type Spinner struct {
	w     io.Writer
	s     *spinner.Spinner
	once  sync.Once
	active bool
}

// NewSpinner prepares a spinner with message. Call Start to show it.
func NewSpinner(w io.Writer, message string) *Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond,
		spinner.WithWriter(w),
		spinner.WithSuffix(" "+message),
	)
	_ = s.Color("cyan")
	return &Spinner{w: w, s: s}
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Start begins the animation when attached to a terminal.
func (s *Spinner) Start() {
	if IsTerminal(s.w) {
		s.active = true
		s.s.Start()
	}
}

// Stop clears the animation. Safe to call more than once.
func (s *Spinner) Stop() {
	s.once.Do(func() {
		if s.active {
			s.s.Stop()
		}
	})
}

// Success stops the spinner and prints a check mark line.
func (s *Spinner) Success(message string) {
	s.Stop()
	fmt.Fprintf(s.w, "%s %s\n", color.GreenString("✓"), message)
}

// Fail stops the spinner and prints a cross line.
func (s *Spinner) Fail(message string) {
	s.Stop()
	fmt.Fprintf(s.w, "%s %s\n", color.RedString("✗"), message)
}

// Skip stops the spinner and prints a neutral line.
func (s *Spinner) Skip(message string) {
	s.Stop()
	fmt.Fprintf(s.w, "%s %s\n", color.YellowString("!"), message)
}
