package log

import (
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type Level int

const (
	// Log absolutely nothing
	LOGLEVEL_NONE Level = iota
	// Log situations that are not expected to happen and
	// are difficult to handle (e.g. a worker socket that can't be created)
	LOGLEVEL_ERRORS
	// Log non-critical situations that might happen, but shouldn't (e.g. an undecryptable request)
	LOGLEVEL_WARNINGS
	// Log situations that are expected, but important for the operation
	LOGLEVEL_INFO
	// Log everything
	LOGLEVEL_DEBUG
)

var loglevel_strings []string = []string{"none", "error", "warn", "info", "debug"}

func (ll Level) String() string {
	if ll < LOGLEVEL_NONE || ll > LOGLEVEL_DEBUG {
		return "unknown"
	}
	return loglevel_strings[ll]
}

func (ll Level) zerologLevel() zerolog.Level {
	switch ll {
	case LOGLEVEL_ERRORS:
		return zerolog.ErrorLevel
	case LOGLEVEL_WARNINGS:
		return zerolog.WarnLevel
	case LOGLEVEL_INFO:
		return zerolog.InfoLevel
	case LOGLEVEL_DEBUG:
		return zerolog.DebugLevel
	default:
		return zerolog.Disabled
	}
}

// Parses a level name as found in the configuration ("error", "warn", "info", "debug", "none").
func ParseLevel(s string) (Level, error) {
	for i, name := range loglevel_strings {
		if strings.EqualFold(s, name) {
			return Level(i), nil
		}
	}
	switch strings.ToLower(s) {
	case "errors":
		return LOGLEVEL_ERRORS, nil
	case "warning", "warnings":
		return LOGLEVEL_WARNINGS, nil
	}
	return LOGLEVEL_NONE, fmt.Errorf("unknown log level %q", s)
}

/*
A Logger is handed to every component explicitly; there is no package-level
logger. Derived loggers (With) share the output and the level of their parent.
*/
type Logger struct {
	zl       zerolog.Logger
	loglevel Level
}

const console_time_format = "2006-01-02 15:04:05.000000"

// New returns a logger writing human-readable lines to w.
func New(w io.Writer, component string, ll Level) *Logger {
	cw := zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: console_time_format}
	return newLogger(cw, component, ll)
}

// NewJSON returns a logger writing one JSON object per line to w.
func NewJSON(w io.Writer, component string, ll Level) *Logger {
	return newLogger(w, component, ll)
}

func newLogger(w io.Writer, component string, ll Level) *Logger {
	zl := zerolog.New(w).With().Timestamp().Str("component", component).Logger()
	return &Logger{zl: zl, loglevel: ll}
}

// Default logger to stderr, used by the command line tools.
func NewStderr(component string, ll Level, format string) *Logger {
	if format == "json" {
		return NewJSON(os.Stderr, component, ll)
	}
	return New(os.Stderr, component, ll)
}

// Discard drops everything; useful in tests.
func Discard() *Logger {
	return &Logger{zl: zerolog.Nop(), loglevel: LOGLEVEL_NONE}
}

// With returns a child logger that attaches key=value to every line.
func (l *Logger) With(key, value string) *Logger {
	return &Logger{zl: l.zl.With().Str(key, value).Logger(), loglevel: l.loglevel}
}

func (l *Logger) Level() Level {
	return l.loglevel
}

// Performance-enhancer: Prevent unnecessary log calls
func (l *Logger) IsLoggingEnabled(ll Level) bool {
	return l.loglevel >= ll
}

func (l *Logger) Log(ll Level, what ...interface{}) {
	if ll == LOGLEVEL_NONE || ll > l.loglevel {
		return
	}
	l.zl.WithLevel(ll.zerologLevel()).Msg(strings.TrimSuffix(fmt.Sprintln(what...), "\n"))
}

func (l *Logger) Logf(ll Level, format string, args ...interface{}) {
	if ll == LOGLEVEL_NONE || ll > l.loglevel {
		return
	}
	l.zl.WithLevel(ll.zerologLevel()).Msgf(format, args...)
}

func mapToChar(i int) byte {
	i = i % (10 + 26 + 26)
	if i < 10 {
		return byte('0' + i)
	} else if i < 10+26 {
		return byte('A' + i - 10)
	} else if i < 10+26+26 {
		return byte('a' + i - 10 - 26)
	}
	return byte('_')
}

// Returns a short random alphanumeric string.
// The client tags each request attempt with one to track it across log lines.
func GetLogToken() string {
	str := make([]byte, 6)
	for i := range str {
		str[i] = mapToChar(rand.Int())
	}
	return string(str)
}

const session_alphabet = "0123456789ABCDEF"

const SessionIDLength = 8

/*
Returns a session identifier: SessionIDLength distinct characters drawn from
session_alphabet. Workers assign one to every received request so that the
request and reply lines can be matched up. Collisions between workers are
possible and harmless.
*/
func NewSessionID() string {
	perm := rand.Perm(len(session_alphabet))
	str := make([]byte, SessionIDLength)
	for i := range str {
		str[i] = session_alphabet[perm[i]]
	}
	return string(str)
}

// Used for durations in log lines.
func Millis(d time.Duration) string {
	return fmt.Sprintf("%d ms", d.Milliseconds())
}
