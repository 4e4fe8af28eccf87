package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/spliceproxy/spliceproxy/internal/config"
	"github.com/spliceproxy/spliceproxy/internal/session"
)

const (
	scopeFieldName      = "scope"
	traceIDFieldName    = "trace_id"
	remoteInfoFieldName = "remote_info"
)

// New builds the root logger from the logging config: a human-readable
// console writer on stdout, plus a size-rotated file sink when a log
// file is configured.
func New(opts config.LoggingOptions, level zerolog.Level) zerolog.Logger {
	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
		// FormatPrepare intercepts fields just before printing to wrap
		// the scope in brackets and keep absent fields from rendering
		// as "<nil>".
		FormatPrepare: func(m map[string]any) error {
			if v, ok := m[scopeFieldName].(string); ok && v != "" {
				m[scopeFieldName] = fmt.Sprintf("[%s]", v)
			} else {
				m[scopeFieldName] = "[app]"
			}

			for _, f := range []string{traceIDFieldName, remoteInfoFieldName} {
				if v, ok := m[f].(string); ok && v != "" {
					m[f] = v
				} else {
					m[f] = ""
				}
			}

			return nil
		},
		// These are already rendered through PartsOrder; excluding them
		// prevents duplicate key=value output.
		FieldsExclude: []string{
			traceIDFieldName,
			scopeFieldName,
			remoteInfoFieldName,
		},
		PartsOrder: []string{
			zerolog.LevelFieldName,
			zerolog.TimestampFieldName,
			traceIDFieldName,
			scopeFieldName,
			remoteInfoFieldName,
			zerolog.MessageFieldName,
		},
	}

	writers := []io.Writer{consoleWriter}
	if opts.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxFiles,
		})
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		Hook(ctxHook{})

	return logger.With().Timestamp().Logger()
}

// WithScope creates a component sub-logger tagged with the component name.
func WithScope(logger zerolog.Logger, scope string) zerolog.Logger {
	return logger.With().Str(scopeFieldName, scope).Logger()
}

// WithLocalScope attaches the context (for the hook) and a per-call scope.
func WithLocalScope(
	ctx context.Context,
	logger zerolog.Logger,
	localScope string,
) zerolog.Logger {
	return logger.With().Ctx(ctx).Str(scopeFieldName, localScope).Logger()
}

// ctxHook extracts request-scoped values from the event context and adds
// them to every log line automatically. Triggered only when .Ctx(ctx) is
// part of the chain.
type ctxHook struct{}

func (h ctxHook) Run(e *zerolog.Event, _ zerolog.Level, _ string) {
	ctx := e.GetCtx()
	if ctx == nil {
		return
	}

	if traceID, ok := session.TraceIDFrom(ctx); ok {
		e.Str(traceIDFieldName, traceID)
	}

	if domain, ok := session.RemoteInfoFrom(ctx); ok {
		e.Str(remoteInfoFieldName, domain)
	}
}

type joinableError interface {
	Unwrap() []error
}

// ErrorUnwrapped logs each error of a joined error separately.
// A plain error is logged as-is.
func ErrorUnwrapped(logger *zerolog.Logger, msg string, err error) {
	logUnwrapped(logger, zerolog.ErrorLevel, msg, err)
}

func WarnUnwrapped(logger *zerolog.Logger, msg string, err error) {
	logUnwrapped(logger, zerolog.WarnLevel, msg, err)
}

func logUnwrapped(logger *zerolog.Logger, level zerolog.Level, msg string, err error) {
	var joinedErrs joinableError

	if errors.As(err, &joinedErrs) {
		for _, e := range joinedErrs.Unwrap() {
			logger.WithLevel(level).Err(e).Msg(msg)
		}

		return
	}

	logger.WithLevel(level).Err(err).Msg(msg)
}
