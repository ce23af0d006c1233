package logging

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/saltyorg/todos/internal/config"
	"github.com/saltyorg/todos/internal/database"
)

// DefaultLogFilePath is used when neither --log-file nor a file database
// gives the log a home.
const DefaultLogFilePath = "todos.log"

const timeFormat = "2006-01-02 15:04:05"

// Rotation bounds the size and history of the todos log file
type Rotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultRotation keeps 50MB files for a month, five backups, gzipped
func DefaultRotation() Rotation {
	return Rotation{MaxSizeMB: 50, MaxBackups: 5, MaxAgeDays: 30, Compress: true}
}

// RotationFromEnv reads LOG_MAX_SIZE_MB, LOG_MAX_BACKUPS, LOG_MAX_AGE_DAYS and
// LOG_COMPRESS. Out of range values fall back to the defaults.
func RotationFromEnv(l *config.Loader) Rotation {
	rot := DefaultRotation()
	if size := l.Int("LOG_MAX_SIZE_MB", rot.MaxSizeMB); size > 0 {
		rot.MaxSizeMB = size
	}
	if backups := l.Int("LOG_MAX_BACKUPS", rot.MaxBackups); backups >= 0 {
		rot.MaxBackups = backups
	}
	if age := l.Int("LOG_MAX_AGE_DAYS", rot.MaxAgeDays); age >= 0 {
		rot.MaxAgeDays = age
	}
	rot.Compress = l.Bool("LOG_COMPRESS", rot.Compress)
	return rot
}

// Apply sets the global level and points the global logger at the console
// and the rotated file at path. If the file's directory cannot be created the
// service keeps running with console output only.
func Apply(level string, loader *config.Loader, path string) {
	zerolog.SetGlobalLevel(parseLevel(level))

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: timeFormat}
	file := RotationFromEnv(loader).writer(path)
	if err := os.MkdirAll(filepath.Dir(file.Filename), 0o755); err != nil {
		log.Logger = zerolog.New(console).With().Timestamp().Logger()
		log.Error().Err(err).Str("log_file", file.Filename).Msg("Todos log file unavailable, logging to console only")
		return
	}
	out := zerolog.MultiLevelWriter(console, zerolog.ConsoleWriter{Out: file, TimeFormat: timeFormat, NoColor: true})

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
}

// LevelFromVerbosity maps the -v count: none is info, -v debug, -vv trace
func LevelFromVerbosity(verbosity int) string {
	if verbosity <= 0 {
		return zerolog.InfoLevel.String()
	}
	if verbosity == 1 {
		return zerolog.DebugLevel.String()
	}
	return zerolog.TraceLevel.String()
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl > zerolog.InfoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (r Rotation) writer(path string) *lumberjack.Logger {
	if path == "" {
		path = DefaultLogFilePath
	}
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    r.MaxSizeMB,
		MaxBackups: r.MaxBackups,
		MaxAge:     r.MaxAgeDays,
		Compress:   r.Compress,
	}
}

// FilePathForDB places todos.log next to the database file. In-memory
// databases have no directory, so they log to the working directory.
func FilePathForDB(dbPath string) string {
	if dbPath == "" || database.IsMemory(dbPath) {
		return DefaultLogFilePath
	}
	if abs, err := filepath.Abs(dbPath); err == nil {
		dbPath = abs
	}
	return filepath.Join(filepath.Dir(dbPath), DefaultLogFilePath)
}
