// Package logging provides structured logging for the s3fetch CLI.
package logging

import (
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger wraps zerolog with console and optional rotating file output.
type Logger struct {
	zlog   zerolog.Logger
	output io.Writer // current console writer
	file   *lumberjack.Logger
}

// NewLogger creates a logger writing human-readable lines to out.
// When logFile is set, JSON lines are also written to a rotating file.
func NewLogger(out io.Writer, logFile string) *Logger {
	l := &Logger{output: out}
	if logFile != "" {
		l.file = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
	}
	l.rebuild()
	return l
}

// NewDefaultCLILogger creates a console logger on stderr. Stdout is kept
// free for command output such as presigned URLs.
func NewDefaultCLILogger() *Logger {
	return NewLogger(os.Stderr, "")
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zlog: zerolog.Nop(), output: io.Discard}
}

func (l *Logger) rebuild() {
	var w io.Writer = zerolog.ConsoleWriter{
		Out:        l.output,
		TimeFormat: "15:04:05",
		NoColor:    !isTerminal(l.output),
	}
	if l.file != nil {
		w = zerolog.MultiLevelWriter(w, l.file)
	}
	l.zlog = zerolog.New(w).With().Timestamp().Logger()
}

// isTerminal reports whether w is a terminal that can render colors.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Info returns an info level event.
func (l *Logger) Info() *zerolog.Event {
	return l.zlog.Info()
}

// Error returns an error level event.
func (l *Logger) Error() *zerolog.Event {
	return l.zlog.Error()
}

// Debug returns a debug level event.
func (l *Logger) Debug() *zerolog.Event {
	return l.zlog.Debug()
}

// Warn returns a warn level event.
func (l *Logger) Warn() *zerolog.Event {
	return l.zlog.Warn()
}

// With creates a child logger context with additional fields.
func (l *Logger) With() zerolog.Context {
	return l.zlog.With()
}

// WithField returns a child logger that stamps every line with key=value.
func (l *Logger) WithField(key, value string) *Logger {
	return &Logger{
		zlog:   l.zlog.With().Str(key, value).Logger(),
		output: l.output,
		file:   l.file,
	}
}

// SetOutput changes the console writer, e.g. to print above progress bars.
func (l *Logger) SetOutput(w io.Writer) {
	l.output = w
	l.rebuild()
}

// Output returns the current console writer.
func (l *Logger) Output() io.Writer {
	return l.output
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Debugf logs a debug message with printf-style formatting.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.zlog.Debug().Msgf(format, args...)
}

// Infof logs an info message with printf-style formatting.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.zlog.Info().Msgf(format, args...)
}

// Errorf logs an error message with printf-style formatting.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.zlog.Error().Msgf(format, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.zlog.Warn().Msgf(format, args...)
}

// SetGlobalLevel sets the global log level.
func SetGlobalLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// ParseLevel maps a config level name to a zerolog level. Unknown names
// fall back to info.
func ParseLevel(name string) zerolog.Level {
	switch strings.ToLower(name) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// RedactURL drops the query string and any userinfo from a URL so that
// presigned signatures and proxy passwords never reach the log.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		if i := strings.IndexByte(raw, '?'); i >= 0 {
			return raw[:i]
		}
		return raw
	}
	u.RawQuery = ""
	u.ForceQuery = false
	u.Fragment = ""
	u.User = nil
	return u.String()
}

func init() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: "15:04:05",
	})
}
