package logsvc

import (
	"github.com/rollbar/rollbar-go"
	"github.com/rollbar/rollbar-go/errors"

	"github.com/hansini-nalla/pes-sub000/core"
	"github.com/hansini-nalla/pes-sub000/core/actor"
)

// RollbarLogger writes every entry to a console logger and reports warnings and above to Rollbar.
// Debug and info entries only reach Rollbar when verbose.
type RollbarLogger struct {
	console core.Logger
	verbose bool
}

var _ core.Logger = (*RollbarLogger)(nil)

func NewRollbarLogger(console core.Logger, conf *core.Config) *RollbarLogger {
	rollbar.SetToken(conf.RollbarToken)
	rollbar.SetEnvironment(conf.Env)
	rollbar.SetServerHost(conf.Server.Host)
	rollbar.SetCodeVersion(conf.Build)
	rollbar.SetStackTracer(errors.StackTracer)
	rollbar.SetEnabled(conf.RollbarToken != "")
	return &RollbarLogger{console: console, verbose: conf.Logging.Level == "debug"}
}

func (l *RollbarLogger) Enable(enabled bool) {
	rollbar.SetEnabled(enabled)
}

// Close waits for the queued reports to be sent.
func (l *RollbarLogger) Close() {
	rollbar.Close()
}

// report sends the entry to Rollbar.
// expected args: error, map[string]interface{}, actor.Actor (the first one becomes the Rollbar person)
func (l *RollbarLogger) report(send func(...interface{}), msg string, args []interface{}) {
	interfaces := make([]interface{}, 0, len(args)+1)
	interfaces = append(interfaces, msg)
	var person *actor.Actor
	for _, arg := range args {
		a, ok := arg.(actor.Actor)
		switch {
		case !ok:
			interfaces = append(interfaces, arg)
		case person == nil:
			person = &a
		}
	}
	if person != nil {
		rollbar.SetPerson(person.ID, person.Name, person.Email)
	} else {
		rollbar.ClearPerson()
	}
	send(interfaces...)
}

func (l *RollbarLogger) Debug(msg string, args ...interface{}) {
	if l.verbose {
		l.report(rollbar.Debug, msg, args)
	}
	l.console.Debug(msg, args...)
}

func (l *RollbarLogger) Info(msg string, args ...interface{}) {
	if l.verbose {
		l.report(rollbar.Info, msg, args)
	}
	l.console.Info(msg, args...)
}

func (l *RollbarLogger) Warn(msg string, args ...interface{}) {
	l.report(rollbar.Warning, msg, args)
	l.console.Warn(msg, args...)
}

func (l *RollbarLogger) Error(msg string, args ...interface{}) {
	l.report(rollbar.Error, msg, args)
	l.console.Error(msg, args...)
}

func (l *RollbarLogger) Fatal(msg string, args ...interface{}) {
	l.report(rollbar.Critical, msg, args)
	rollbar.Close()
	l.console.Fatal(msg, args...)
}
