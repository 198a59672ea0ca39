// Package oplog defines the structured event sink the OPI core reports to.
//
// The core never owns log formatting or destinations: callers inject a
// Logger and decide where events go. NopLogger discards everything and is
// the default wherever a Logger is optional.
package oplog

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Logger receives structured events from the substitution pipeline.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

// Field is a typed key/value attached to an event.
type Field interface {
	Key() string
	Value() interface{}
}

type stringField struct{ key, val string }

func (f stringField) Key() string        { return f.key }
func (f stringField) Value() interface{} { return f.val }

type intField struct {
	key string
	val int
}

func (f intField) Key() string        { return f.key }
func (f intField) Value() interface{} { return f.val }

type int64Field struct {
	key string
	val int64
}

func (f int64Field) Key() string        { return f.key }
func (f int64Field) Value() interface{} { return f.val }

type float64Field struct {
	key string
	val float64
}

func (f float64Field) Key() string        { return f.key }
func (f float64Field) Value() interface{} { return f.val }

type errorField struct {
	key string
	err error
}

func (f errorField) Key() string        { return f.key }
func (f errorField) Value() interface{} { return f.err }

func String(key, value string) Field          { return stringField{key, value} }
func Int(key string, value int) Field         { return intField{key, value} }
func Int64(key string, value int64) Field     { return int64Field{key, value} }
func Float64(key string, value float64) Field { return float64Field{key, value} }
func Error(err error) Field                   { return errorField{"error", err} }

// NopLogger discards all events.
type NopLogger struct{}

func (NopLogger) Debug(string, ...Field) {}
func (NopLogger) Info(string, ...Field)  {}
func (NopLogger) Warn(string, ...Field)  {}
func (NopLogger) Error(string, ...Field) {}
func (NopLogger) With(...Field) Logger   { return NopLogger{} }

// TextLogger writes events as single lines to an io.Writer, prefixed
// with the elapsed time since the logger was created. Safe for
// concurrent use.
type TextLogger struct {
	mu    *sync.Mutex // shared between a logger and its With children
	w     io.Writer
	start time.Time
	debug bool
	bound []Field
}

// NewTextLogger returns a line-oriented Logger writing to w. Debug events
// are dropped unless debug is true.
func NewTextLogger(w io.Writer, debug bool) *TextLogger {
	return &TextLogger{mu: &sync.Mutex{}, w: w, start: time.Now(), debug: debug}
}

func (l *TextLogger) log(level, msg string, fields []Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	elapsed := time.Since(l.start).Round(time.Second)
	h := int(elapsed.Hours())
	m := int(elapsed.Minutes()) % 60
	s := int(elapsed.Seconds()) % 60
	fmt.Fprintf(l.w, "%02d:%02d:%02d %s %s", h, m, s, level, msg)
	for _, f := range l.bound {
		fmt.Fprintf(l.w, " %s=%v", f.Key(), f.Value())
	}
	for _, f := range fields {
		fmt.Fprintf(l.w, " %s=%v", f.Key(), f.Value())
	}
	fmt.Fprintln(l.w)
}

func (l *TextLogger) Debug(msg string, fields ...Field) {
	if l.debug {
		l.log("DEBUG", msg, fields)
	}
}

func (l *TextLogger) Info(msg string, fields ...Field)  { l.log("INFO", msg, fields) }
func (l *TextLogger) Warn(msg string, fields ...Field)  { l.log("WARN", msg, fields) }
func (l *TextLogger) Error(msg string, fields ...Field) { l.log("ERROR", msg, fields) }

func (l *TextLogger) With(fields ...Field) Logger {
	child := &TextLogger{mu: l.mu, w: l.w, start: l.start, debug: l.debug}
	child.bound = append(append([]Field{}, l.bound...), fields...)
	return child
}
