package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Format represents the output format type.
type Format string

const (
	// FormatTable outputs aligned columns with a header.
	FormatTable Format = "table"
	// FormatPlain outputs one tab-separated record per line, for scripts.
	FormatPlain Format = "plain"
)

// ParseFormat parses a string into a Format, returning an error if invalid.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "table", "":
		return FormatTable, nil
	case "plain", "tsv":
		return FormatPlain, nil
	default:
		return "", fmt.Errorf("invalid output format: %q (valid: table, plain)", s)
	}
}

// SetupColor enables coloured output only when stdout is a terminal and
// noColor is not set.
func SetupColor(noColor bool) {
	fd := os.Stdout.Fd()
	color.NoColor = noColor || (!isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd))
}

var (
	successColor = color.New(color.FgGreen)
	warningColor = color.New(color.FgYellow)
	errorColor   = color.New(color.FgRed, color.Bold)
	dirColor     = color.New(color.FgBlue, color.Bold)
)

// Printer handles formatted output to a writer.
type Printer struct {
	out    io.Writer
	format Format
}

// NewPrinter creates a new Printer.
func NewPrinter(out io.Writer, format Format) *Printer {
	return &Printer{out: out, format: format}
}

// Format returns the printer's output format.
func (p *Printer) Format() Format {
	return p.format
}

// Print outputs data as a table, or as tab-separated lines in plain mode.
func (p *Printer) Print(data TableRenderer, right ...int) error {
	if p.format == FormatPlain {
		for _, row := range data.Rows() {
			if _, err := fmt.Fprintln(p.out, strings.Join(row, "\t")); err != nil {
				return err
			}
		}
		return nil
	}
	return PrintTable(p.out, data, right...)
}

// Println prints a message followed by a newline.
func (p *Printer) Println(args ...any) {
	_, _ = fmt.Fprintln(p.out, args...)
}

// Printf prints a formatted message.
func (p *Printer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format, args...)
}

// Success prints a success message.
func (p *Printer) Success(msg string) {
	_, _ = successColor.Fprintln(p.out, msg)
}

// Warning prints a warning message.
func (p *Printer) Warning(msg string) {
	_, _ = warningColor.Fprintln(p.out, msg)
}

// Error prints an error message.
func (p *Printer) Error(msg string) {
	_, _ = errorColor.Fprintln(p.out, msg)
}

// DirName highlights a directory name.
func DirName(name string) string {
	return dirColor.Sprint(name)
}

// Bytes renders n in binary units, e.g. "1.5 MiB".
func Bytes(n uint64) string {
	return humanize.IBytes(n)
}

// Count renders n with thousands separators.
func Count(n int64) string {
	return humanize.Comma(n)
}

// Time renders t the way ls -l does: time of day for recent files, year
// for older ones.
func Time(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	if time.Since(t) < 180*24*time.Hour {
		return t.Local().Format("Jan _2 15:04")
	}
	return t.Local().Format("Jan _2  2006")
}
