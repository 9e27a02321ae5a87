// Package logging builds the process logger and its per-component children.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-isatty"
)

type Options struct {
	Level  string
	Format string // auto, text, logfmt or json
	Output io.Writer
}

// New returns a root logger. "auto" picks colored text on a terminal and
// logfmt otherwise.
func New(opts Options) (*log.Logger, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := strings.TrimSpace(opts.Level)
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	if format == "" || format == "auto" {
		format = "logfmt"
		if IsTerminal(out) {
			format = "text"
		}
	}

	var formatter log.Formatter
	switch format {
	case "text":
		formatter = log.TextFormatter
	case "logfmt":
		formatter = log.LogfmtFormatter
	case "json":
		formatter = log.JSONFormatter
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}

	return log.NewWithOptions(out, log.Options{
		Level:           lvl,
		Formatter:       formatter,
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
	}), nil
}

// Component returns a child logger tagged with name.
func Component(root *log.Logger, name string) *log.Logger {
	if root == nil {
		root = log.Default()
	}
	return root.WithPrefix(name)
}

func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
