package msg

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// Level is the minimum severity a message needs to be printed
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[string]Level{
	"debug": LevelDebug,
	"info":  LevelInfo,
	"warn":  LevelWarn,
	"error": LevelError,
}

var (
	mu     sync.Mutex
	level  Level     = LevelInfo
	output io.Writer = os.Stdout
)

// ParseLevel converts a level name (debug, info, warn, error) to a Level
func ParseLevel(name string) (Level, error) {
	if l, ok := levelNames[strings.ToLower(name)]; ok {
		return l, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", name)
}

func SetLevel(l Level) {
	mu.Lock()
	level = l
	mu.Unlock()
}

// SetOutput redirects all messages to w and returns the previous writer
func SetOutput(w io.Writer) io.Writer {
	mu.Lock()
	defer mu.Unlock()
	prev := output
	output = w
	return prev
}

func emit(l Level, prefix string, format string, a ...any) {
	mu.Lock()
	defer mu.Unlock()
	if l < level {
		return
	}
	fmt.Fprint(output, prefix)
	fmt.Fprint(output, ": ")
	fmt.Fprintf(output, format, a...)
	fmt.Fprint(output, "\n")
}

func Debug(format string, a ...any) {
	emit(LevelDebug, color.CyanString("debug"), format, a...)
}

func Info(format string, a ...any) {
	emit(LevelInfo, color.HiGreenString("info"), format, a...)
}

func Warn(format string, a ...any) {
	emit(LevelWarn, color.YellowString("warn"), format, a...)
}

func Error(format string, a ...any) {
	emit(LevelError, color.HiRedString("error"), format, a...)
}

func Fatal(format string, a ...any) {
	emit(LevelError, color.RedString("fatal"), format, a...)
	os.Exit(1)
}

type IndentWriter struct {
	Indent    string
	W         io.Writer
	didIndent bool
}

func (w *IndentWriter) Write(p []byte) (n int, err error) {
	for _, c := range p {
		if !w.didIndent {
			if _, err := w.W.Write([]byte(w.Indent)); err != nil {
				return n, err
			}
			w.didIndent = true
		}
		if _, err := w.W.Write([]byte{c}); err != nil { // FIXME-perf: buffer this
			return n, err
		}
		n++
		if c == '\n' || c == '\r' {
			w.didIndent = false
		}
	}
	return n, nil
}
