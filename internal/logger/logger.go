package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Format selects how log lines are rendered.
type Format int

const (
	// FormatText renders "[timestamp] [LEVEL] message".
	FormatText Format = iota

	// FormatJSON renders one JSON object per line with time, level and msg.
	FormatJSON
)

var (
	mu           sync.Mutex
	currentLevel = LevelInfo
	format       = FormatText
	output       io.Writer = os.Stdout
	outputFile   *os.File
)

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

// ParseLevel converts a level name (case-insensitive) to a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// SetLevel sets the minimum level. Unknown names are ignored.
func SetLevel(level string) {
	l, err := ParseLevel(level)
	if err != nil {
		return
	}
	mu.Lock()
	currentLevel = l
	mu.Unlock()
}

// IsEnabled reports whether messages at level would be written.
func IsEnabled(level Level) bool {
	mu.Lock()
	defer mu.Unlock()
	return level >= currentLevel
}

// SetOutput redirects log output to w. Any file opened by Configure is
// closed.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	closeFileLocked()
	output = w
}

// Configure applies level, format ("text" or "json") and output ("stdout",
// "stderr" or a file path, opened in append mode).
func Configure(level, logFormat, out string) error {
	l, err := ParseLevel(level)
	if err != nil {
		return err
	}

	var f Format
	switch strings.ToLower(logFormat) {
	case "", "text":
		f = FormatText
	case "json":
		f = FormatJSON
	default:
		return fmt.Errorf("unknown log format %q", logFormat)
	}

	var w io.Writer
	var file *os.File
	switch strings.ToLower(out) {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		file, err = os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		w = file
	}

	mu.Lock()
	defer mu.Unlock()
	closeFileLocked()
	currentLevel = l
	format = f
	output = w
	outputFile = file
	return nil
}

func closeFileLocked() {
	if outputFile != nil {
		_ = outputFile.Close()
		outputFile = nil
	}
}

type jsonLine struct {
	Time  string `json:"time"`
	Level string `json:"level"`
	Msg   string `json:"msg"`
}

func log(level Level, msgFormat string, v ...any) {
	mu.Lock()
	defer mu.Unlock()

	if level < currentLevel {
		return
	}

	now := time.Now()
	message := fmt.Sprintf(msgFormat, v...)

	switch format {
	case FormatJSON:
		line, err := json.Marshal(jsonLine{
			Time:  now.Format(time.RFC3339Nano),
			Level: level.String(),
			Msg:   message,
		})
		if err != nil {
			return
		}
		_, _ = output.Write(append(line, '\n'))
	default:
		timestamp := now.Format("2006-01-02 15:04:05")
		_, _ = fmt.Fprintf(output, "[%s] [%s] %s\n", timestamp, level.String(), message)
	}
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
