package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	// Result colors
	Triggered = color.New(color.FgGreen)
	Pending   = color.New(color.FgCyan)
	Failed    = color.New(color.FgRed)
	Skipped   = color.New(color.Faint)

	// Message colors
	Success = color.New(color.FgGreen)
	Warning = color.New(color.FgYellow)
	Error   = color.New(color.FgRed)
	Info    = color.New(color.FgCyan)
	Dim     = color.New(color.Faint)

	// Structural colors
	Header  = color.New(color.FgWhite, color.Bold)
	Project = color.New(color.FgBlue, color.Bold)
)

// NoColor disables color output
func NoColor() {
	color.NoColor = true
}

// ForceColor enables color output even when not a TTY
func ForceColor() {
	color.NoColor = false
}

// StatusColor returns the color used for a watch result status
func StatusColor(status string) *color.Color {
	switch status {
	case "update-triggered":
		return Triggered
	case "would-update":
		return Pending
	case "update-failed":
		return Failed
	case "skipped":
		return Skipped
	default:
		return color.New(color.Reset)
	}
}

// FormatStatus formats a status string with appropriate color
func FormatStatus(status string) string {
	return StatusColor(status).Sprintf("[%s]", status)
}

// Banner writes a title underlined with '=' to w
func Banner(w io.Writer, title string) {
	Header.Fprintln(w, title)
	Header.Fprintln(w, strings.Repeat("=", 12))
}

// PrintSuccess prints a success message
func PrintSuccess(format string, args ...interface{}) {
	Success.Printf("✓ "+format+"\n", args...)
}

// PrintError prints an error message
func PrintError(format string, args ...interface{}) {
	Error.Fprintf(os.Stderr, "✗ "+format+"\n", args...)
}

// PrintWarning prints a warning message
func PrintWarning(format string, args ...interface{}) {
	Warning.Printf("⚠ "+format+"\n", args...)
}

// PrintInfo prints an info message
func PrintInfo(format string, args ...interface{}) {
	Info.Printf("→ "+format+"\n", args...)
}

// Sprintf returns a colored string without printing
func Sprintf(c *color.Color, format string, args ...interface{}) string {
	return c.Sprintf(format, args...)
}

// Fprintf prints with color to w
func Fprintf(w io.Writer, c *color.Color, format string, args ...interface{}) {
	fmt.Fprint(w, c.Sprintf(format, args...))
}
