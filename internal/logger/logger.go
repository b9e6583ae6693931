// Package logger wraps the standard logger and forwards warnings and errors
// to Rollbar when a token is configured.
package logger

import (
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"runtime/debug"

	"github.com/rollbar/rollbar-go"
)

type Logger struct {
	std     *log.Logger
	rollbar bool
}

type Options struct {
	Prefix       string
	Output       io.Writer
	RollbarToken string
	Env          string
	Host         string
	Version      string
}

func New(opts Options) *Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	prefix := opts.Prefix
	if prefix != "" {
		prefix = "[" + prefix + "] "
	}
	l := &Logger{std: log.New(out, prefix, log.LstdFlags|log.Lmsgprefix)}
	if opts.RollbarToken != "" {
		rollbar.SetToken(opts.RollbarToken)
		rollbar.SetEnvironment(opts.Env)
		rollbar.SetServerHost(opts.Host)
		rollbar.SetCodeVersion(opts.Version)
		rollbar.SetEnabled(true)
		l.rollbar = true
	}
	return l
}

// Std exposes the underlying logger for libraries that want a *log.Logger.
func (l *Logger) Std() *log.Logger { return l.std }

// With returns a logger that shares the Rollbar setup but uses another prefix.
func (l *Logger) With(prefix string) *Logger {
	return &Logger{
		std:     log.New(l.std.Writer(), "["+prefix+"] ", l.std.Flags()),
		rollbar: l.rollbar,
	}
}

func (l *Logger) Infof(format string, args ...any) {
	l.std.Printf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	l.std.Print("WARN " + msg)
	if l.rollbar {
		rollbar.Warning(msg)
	}
}

// Error logs err with optional key/value context.
func (l *Logger) Error(msg string, err error, extras map[string]any) {
	if extras == nil {
		l.std.Printf("ERROR %s: %v", msg, err)
	} else {
		l.std.Printf("ERROR %s: %v %v", msg, err, extras)
	}
	if l.rollbar {
		if extras == nil {
			extras = map[string]any{}
		}
		extras["message"] = msg
		rollbar.Error(err, extras)
	}
}

// Close flushes queued Rollbar items.
func (l *Logger) Close() {
	if l.rollbar {
		rollbar.Wait()
	}
}

// Recoverer turns panics into 500 responses and reports them.
func (l *Logger) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil || rec == http.ErrAbortHandler {
				if rec != nil {
					panic(rec)
				}
				return
			}
			l.std.Printf("PANIC %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
			if l.rollbar {
				rollbar.RequestError(rollbar.CRIT, r, fmt.Errorf("panic: %v", rec))
			}
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}
