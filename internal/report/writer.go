package report

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// Writer formats a Result and writes it somewhere, auto-detecting whether
// the destination is a terminal before deciding whether colors are usable.
type Writer struct {
	formatter Formatter
	output    io.Writer
	isTTY     bool
}

// NewWriter creates a Writer over stdout, disabling colors if stdout isn't
// a terminal.
func NewWriter(format Format, config Config) *Writer {
	isTTY := isTerminal(os.Stdout)
	if !isTTY {
		config.Colors = false
	}
	return &Writer{
		formatter: NewFormatter(format, config),
		output:    os.Stdout,
		isTTY:     isTTY,
	}
}

// Write formats and writes result, flushing if the destination is a file.
func (w *Writer) Write(result *Result) error {
	data, err := w.formatter.Format(result)
	if err != nil {
		return err
	}
	if _, err := w.output.Write(data); err != nil {
		return err
	}
	if f, ok := w.output.(*os.File); ok {
		f.Sync()
	}
	return nil
}

// IsTTY reports whether the writer's destination is a terminal.
func (w *Writer) IsTTY() bool { return w.isTTY }

func isTerminal(f *os.File) bool {
	if f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// WriteToFile formats result and writes it to filename.
func WriteToFile(result *Result, filename string, formatter Formatter) error {
	data, err := formatter.Format(result)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}
