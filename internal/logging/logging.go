// Package logging builds the diagnostics logger. The terminal belongs to the
// heat-map, so diagnostics go to a file or nowhere.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

// New returns a logfmt logger writing to path at the given level, and a
// function that closes the file. An empty path discards everything.
func New(path, lvl string) (log.Logger, func() error, error) {
	if path == "" {
		return log.NewNopLogger(), func() error { return nil }, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open log file")
	}
	return NewWriter(f, lvl), f.Close, nil
}

// NewWriter returns a logfmt logger on w filtered at lvl.
func NewWriter(w io.Writer, lvl string) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(w))
	logger = level.NewFilter(logger, allow(lvl))
	return log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)
}

func allow(lvl string) level.Option {
	switch strings.ToLower(lvl) {
	case "debug":
		return level.AllowDebug()
	case "warn":
		return level.AllowWarn()
	case "error":
		return level.AllowError()
	}
	return level.AllowInfo()
}
