// Package logsvc implements core.Logger.
package logsvc

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/hansini-nalla/pes-sub000/core"
	"github.com/hansini-nalla/pes-sub000/core/actor"
)

// ZerologLogger writes structured entries with zerolog.
type ZerologLogger struct {
	log zerolog.Logger
}

var _ core.Logger = (*ZerologLogger)(nil)

// NewZerologLogger writes to w, human-readable when pretty, JSON otherwise.
func NewZerologLogger(w io.Writer, level string, pretty bool, appName string) *ZerologLogger {
	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return &ZerologLogger{
		log: zerolog.New(w).Level(lvl).With().Timestamp().Str("app", appName).Logger(),
	}
}

// NewConsoleLogger builds the logger of conf writing to stdout.
func NewConsoleLogger(conf *core.Config) *ZerologLogger {
	return NewZerologLogger(os.Stdout, conf.Logging.Level, conf.Logging.Pretty, conf.AppName)
}

// NewNopLogger discards everything.
func NewNopLogger() *ZerologLogger {
	return &ZerologLogger{log: zerolog.Nop()}
}

// expected fmt: msg | error, map[string]interface{}, actor.Actor, anything else
func (l ZerologLogger) write(e *zerolog.Event, msg string, args []interface{}) {
	for _, arg := range args {
		switch a := arg.(type) {
		case error:
			e = e.Err(a)
		case map[string]interface{}:
			e = e.Fields(a)
		case actor.Actor:
			e = e.Str("actor", a.ID)
		default:
			e = e.Interface("extra", a)
		}
	}
	e.Msg(msg)
}

func (l ZerologLogger) Debug(msg string, args ...interface{}) { l.write(l.log.Debug(), msg, args) }
func (l ZerologLogger) Info(msg string, args ...interface{})  { l.write(l.log.Info(), msg, args) }
func (l ZerologLogger) Warn(msg string, args ...interface{})  { l.write(l.log.Warn(), msg, args) }
func (l ZerologLogger) Error(msg string, args ...interface{}) { l.write(l.log.Error(), msg, args) }

func (l ZerologLogger) Fatal(msg string, args ...interface{}) {
	l.write(l.log.WithLevel(zerolog.FatalLevel), msg, args)
	os.Exit(1)
}
