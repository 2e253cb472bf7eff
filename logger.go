package siesta

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"runtime"
	"sync"
	"time"
)

// Level is a logging severity threshold.
type Level uint8

// Logging levels, ordered least to most severe.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = []string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return "UNKNOWN"
}

// Logger is a leveled text logger used for handler errors, server serve
// errors, and (at debug level) opened WebSocket connections. It has no
// spec-level component of its own.
type Logger struct {
	min    Level
	mu     sync.Mutex
	output io.Writer
	bufs   sync.Pool
}

// NewLogger returns a Logger that writes to os.Stderr and discards any
// message below min.
func NewLogger(min Level) *Logger {
	return &Logger{
		min:    min,
		output: os.Stderr,
		bufs: sync.Pool{
			New: func() interface{} { return bytes.NewBuffer(make([]byte, 0, 256)) },
		},
	}
}

// SetOutput redirects where log lines are written.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}

func (l *Logger) Debugf(format string, args ...interface{}) { l.log(LevelDebug, format, args...) }
func (l *Logger) Infof(format string, args ...interface{})  { l.log(LevelInfo, format, args...) }
func (l *Logger) Warnf(format string, args ...interface{})  { l.log(LevelWarn, format, args...) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.log(LevelError, format, args...) }

func (l *Logger) log(lvl Level, format string, args ...interface{}) {
	if l == nil || lvl < l.min {
		return
	}

	_, file, line, _ := runtime.Caller(2)

	buf := l.bufs.Get().(*bytes.Buffer)
	buf.Reset()

	fmt.Fprintf(buf, "%s %-5s %s:%d %s\n",
		time.Now().Format(time.RFC3339),
		lvl, path.Base(file), line,
		fmt.Sprintf(format, args...),
	)

	l.mu.Lock()
	l.output.Write(buf.Bytes())
	l.mu.Unlock()

	l.bufs.Put(buf)
}
