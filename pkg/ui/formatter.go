package ui

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
)

const (
	// BoxWidth is the standard width for display boxes
	BoxWidth = 80
)

// ColorScheme defines a set of colors for consistent UI formatting
type ColorScheme struct {
	Header      *color.Color // For box borders and section headers
	Title       *color.Color // For main titles
	Subtitle    *color.Color // For section titles
	Normal      *color.Color // For normal text
	Param       *color.Color // For parameter names
	Address     *color.Color // For addresses
	Chain       *color.Color // For chain tags
	Fingerprint *color.Color // For fingerprints
	Example     *color.Color // For example commands
	Success     *color.Color // For locked and accepted events
	Warning     *color.Color // For tamper warnings
	Error       *color.Color // For blocked and invalidated events
}

// DefaultColorScheme returns the default color scheme for the application
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Header:      color.New(color.FgBlue, color.Bold),
		Title:       color.New(color.FgHiWhite, color.Bold),
		Subtitle:    color.New(color.FgBlue),
		Normal:      color.New(color.FgWhite),
		Param:       color.New(color.FgCyan),
		Address:     color.New(color.FgHiCyan),
		Chain:       color.New(color.FgHiWhite, color.Bold),
		Fingerprint: color.New(color.FgYellow),
		Example:     color.New(color.FgGreen),
		Success:     color.New(color.FgGreen, color.Bold),
		Warning:     color.New(color.FgYellow, color.Bold),
		Error:       color.New(color.FgRed, color.Bold),
	}
}

// PrintHeader prints a formatted header box with the given title
func PrintHeader(w io.Writer, cs *ColorScheme, title string) {
	printBox(w, cs, cs.Title, title)
}

// PrintFooter prints a formatted footer box with the given message
func PrintFooter(w io.Writer, cs *ColorScheme, message string) {
	// Allow 6 chars for "│  " and " │"
	if utf8.RuneCountInString(message) > BoxWidth-6 {
		message = string([]rune(message)[:BoxWidth-9]) + "..."
	}
	printBox(w, cs, cs.Normal, message)
}

func printBox(w io.Writer, cs *ColorScheme, text *color.Color, message string) {
	padding := BoxWidth - 4 - utf8.RuneCountInString(message) // 4 is for "│  " and "│"
	if padding < 0 {
		padding = 0
	}
	rule := strings.Repeat("─", BoxWidth-2)

	fmt.Fprintln(w)
	cs.Header.Fprintln(w, "╭"+rule+"╮")
	cs.Header.Fprint(w, "│  ")
	text.Fprint(w, message)
	cs.Header.Fprintf(w, "%s│\n", strings.Repeat(" ", padding))
	cs.Header.Fprintln(w, "╰"+rule+"╯")
	fmt.Fprintln(w)
}

// PrintOption prints a command line option with description
func PrintOption(w io.Writer, cs *ColorScheme, flag, description string) {
	cs.Normal.Fprint(w, "  ")
	cs.Param.Fprint(w, flag)
	cs.Normal.Fprintln(w, description)
}

// PrintExample prints a usage example
func PrintExample(w io.Writer, cs *ColorScheme, example, description string) {
	cs.Example.Fprintf(w, "  %s", example)
	if description != "" {
		cs.Example.Fprintf(w, "  # %s", description)
	}
	fmt.Fprintln(w)
}

// PrintSectionHeader prints a section header
func PrintSectionHeader(w io.Writer, cs *ColorScheme, title string) {
	cs.Subtitle.Fprintln(w, title)
}

// PrintField prints an aligned "label: value" line
func PrintField(w io.Writer, cs *ColorScheme, label string, value *color.Color, text string) {
	cs.Normal.Fprintf(w, "  %-12s ", label+":")
	value.Fprintln(w, text)
}
