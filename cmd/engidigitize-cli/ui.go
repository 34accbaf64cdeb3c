package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

// UI provides user-friendly output utilities.
type UI struct {
	out      io.Writer
	errOut   io.Writer
	noColor  bool
	jsonMode bool
}

// NewUI creates a UI writing to stdout and stderr.
func NewUI(jsonMode, noColor bool) *UI {
	return &UI{
		out:      os.Stdout,
		errOut:   os.Stderr,
		noColor:  noColor || color.NoColor,
		jsonMode: jsonMode,
	}
}

// Success prints a success message.
func (ui *UI) Success(format string, args ...interface{}) {
	ui.print(ui.out, color.FgGreen, "✓", format, args...)
}

// Error prints an error message.
func (ui *UI) Error(format string, args ...interface{}) {
	ui.print(ui.errOut, color.FgRed, "✗", format, args...)
}

// Warning prints a warning message.
func (ui *UI) Warning(format string, args ...interface{}) {
	ui.print(ui.errOut, color.FgYellow, "⚠", format, args...)
}

// Info prints an info message.
func (ui *UI) Info(format string, args ...interface{}) {
	ui.print(ui.out, color.FgCyan, "ℹ", format, args...)
}

// Step prints a step message.
func (ui *UI) Step(format string, args ...interface{}) {
	ui.print(ui.out, color.FgBlue, "→", format, args...)
}

func (ui *UI) print(w io.Writer, attr color.Attribute, symbol, format string, args ...interface{}) {
	if ui.jsonMode {
		return
	}
	line := fmt.Sprintf("%s %s\n", symbol, fmt.Sprintf(format, args...))
	if ui.noColor {
		fmt.Fprint(w, line)
		return
	}
	color.New(attr).Fprint(w, line)
}

// ProgressBar wraps a progressbar for the simulated processing view.
type ProgressBar struct {
	bar *progressbar.ProgressBar
}

// ProgressBar creates a percentage bar, or nil in JSON mode.
func (ui *UI) ProgressBar(description string) *ProgressBar {
	if ui.jsonMode {
		return nil
	}
	bar := progressbar.NewOptions64(
		100,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(ui.errOut),
		progressbar.OptionEnableColorCodes(!ui.noColor),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(ui.errOut, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
	return &ProgressBar{bar: bar}
}

// Set moves the bar to percent and updates its label.
func (p *ProgressBar) Set(percent int, description string) {
	if p == nil {
		return
	}
	p.bar.Describe(description)
	_ = p.bar.Set(percent)
}

// Finish fills the bar with a final label. A bar already at 100 is left as is.
func (p *ProgressBar) Finish(description string) {
	if p == nil || p.bar.IsFinished() {
		return
	}
	p.bar.Describe(description)
	_ = p.bar.Finish()
}

// Spinner wraps a spinner for waits that outlive the progress bar.
type Spinner struct {
	spinner *spinner.Spinner
}

// Spinner creates a spinner with the given message, or nil in JSON mode.
func (ui *UI) Spinner(message string) *Spinner {
	if ui.jsonMode {
		return nil
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = ui.errOut
	return &Spinner{spinner: s}
}

// Start starts the spinner animation.
func (s *Spinner) Start() {
	if s != nil {
		s.spinner.Start()
	}
}

// Stop stops the spinner animation and clears the line.
func (s *Spinner) Stop() {
	if s != nil {
		s.spinner.Stop()
	}
}
