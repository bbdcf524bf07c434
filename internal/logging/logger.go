package logging

import (
	"io"
	"log/slog"
	"os"

	"gorm.io/gorm"
)

// Setup initializes the global slog logger with JSON output to stdout.
func Setup() {
	slog.SetDefault(slog.New(newJSONHandler(os.Stdout)))
}

// AttachDB routes ERROR+ records to the system_logs table as well as stdout.
// The returned handler must be stopped on shutdown.
func AttachDB(db *gorm.DB) *DBHandler {
	dbHandler := NewDBHandler(db)
	slog.SetDefault(slog.New(NewMultiHandler(newJSONHandler(os.Stdout), dbHandler)))
	return dbHandler
}

func newJSONHandler(w io.Writer) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
}
