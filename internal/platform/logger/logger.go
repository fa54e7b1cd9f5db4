package logger

import (
	"log/slog"
	"os"
)

// New returns the process logger. JSON output so log shippers need no
// parsing rules.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}
