// Package ui provides terminal UI helpers for the analysisd CLI.
package ui

import (
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
)

// Spinner wraps a terminal spinner for loading states.
type Spinner struct {
	s *spinner.Spinner
}

// NewSpinner creates a spinner with the given message.
func NewSpinner(msg string) *Spinner {
	s := spinner.New(spinner.CharSets[14], 80*time.Millisecond, spinner.WithWriter(os.Stderr))
	s.Suffix = "  " + msg
	_ = s.Color("cyan")
	return &Spinner{s: s}
}

func (sp *Spinner) Start() { sp.s.Start() }

// Stop halts the spinner and clears the line. Safe to call twice.
func (sp *Spinner) Stop() {
	if sp.s.Active() {
		sp.s.Stop()
	}
}

// Fail stops the spinner and prints a red cross.
func (sp *Spinner) Fail(msg string) {
	sp.Stop()
	red := color.New(color.FgRed)
	red.Fprintf(os.Stderr, "  ✗ %s\n", msg)
}
