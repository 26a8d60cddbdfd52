package logger

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	mu           sync.Mutex
	currentLevel = LevelInfo
	logger       = stdlog.New(os.Stderr, "", 0)
	colorize     = isTerminal(os.Stderr)
)

var levelColors = map[Level]*color.Color{
	LevelDebug: color.New(color.FgHiBlack),
	LevelInfo:  color.New(color.FgCyan),
	LevelWarn:  color.New(color.FgYellow),
	LevelError: color.New(color.FgRed, color.Bold),
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a level name (case-insensitive) into a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", level)
}

// SetLevel sets the minimum level that is written. Unknown names are ignored.
func SetLevel(level string) {
	l, err := ParseLevel(level)
	if err != nil {
		return
	}
	mu.Lock()
	currentLevel = l
	mu.Unlock()
}

// GetLevel returns the current minimum level.
func GetLevel() Level {
	mu.Lock()
	defer mu.Unlock()
	return currentLevel
}

// SetOutput redirects log output. Colour is only used when w is a terminal.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	logger.SetOutput(w)
	colorize = false
	if f, ok := w.(*os.File); ok {
		colorize = isTerminal(f)
	}
}

// SetColor forces coloured level tags on or off.
func SetColor(enabled bool) {
	mu.Lock()
	colorize = enabled
	mu.Unlock()
}

// Enabled reports whether messages at level would be written.
func Enabled(level Level) bool {
	return level >= GetLevel()
}

func isTerminal(f *os.File) bool {
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func log(level Level, format string, v ...any) {
	mu.Lock()
	defer mu.Unlock()

	if level < currentLevel {
		return
	}

	tag := level.String()
	if colorize {
		tag = levelColors[level].Sprint(tag)
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05")
	prefix := fmt.Sprintf("[%s] [%s] ", timestamp, tag)
	message := fmt.Sprintf(format, v...)
	logger.Println(prefix + message)
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}
