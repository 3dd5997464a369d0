package logging

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the structured logger handed to every component.
type Logger interface {
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})
	Fatal(args ...interface{})
	Fatalf(template string, args ...interface{})
	Fatalw(msg string, keysAndValues ...interface{})

	// Sublogger returns a logger named "<name>.<subname>" sharing this logger's appenders.
	Sublogger(subname string) Logger
	AddAppender(appender Appender)
	SetLevel(level Level)
	GetLevel() Level
	Sync() error
}

type impl struct {
	name  string
	level AtomicLevel
	inUTC bool

	appenders []Appender
}

// appenderErrors receives appender failures, which have nowhere else to go.
var appenderErrors io.Writer = os.Stderr

func (imp *impl) AddAppender(appender Appender) {
	imp.appenders = append(imp.appenders, appender)
}

func (imp *impl) SetLevel(level Level) { imp.level.Set(level) }

func (imp *impl) GetLevel() Level { return imp.level.Get() }

func (imp *impl) Sublogger(subname string) Logger {
	name := subname
	if imp.name != "" {
		name = imp.name + "." + subname
	}
	return &impl{name, NewAtomicLevelAt(imp.level.Get()), imp.inUTC, imp.appenders}
}

func (imp *impl) Sync() error {
	var err error
	for _, appender := range imp.appenders {
		err = multierr.Append(err, appender.Sync())
	}
	return err
}

// entry must be called directly from the exported logging method so the caller lookup lands on
// the line that logged.
func (imp *impl) entry(level Level, msg string, fields []zapcore.Field) {
	e := zapcore.Entry{
		Level:      level.AsZap(),
		Time:       time.Now(),
		LoggerName: imp.name,
		Message:    msg,
		Caller:     caller(3),
	}
	if imp.inUTC {
		e.Time = e.Time.UTC()
	}
	for _, appender := range imp.appenders {
		if err := appender.Write(e, fields); err != nil {
			//nolint:errcheck
			fmt.Fprintln(appenderErrors, err)
		}
	}
}

// fieldsOf pairs up alternating keys and values. A trailing key without a value is kept with an
// error value so the mistake shows in the output.
func fieldsOf(keysAndValues []interface{}) []zapcore.Field {
	fields := make([]zapcore.Field, 0, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key := fmt.Sprint(keysAndValues[i])
		if i+1 == len(keysAndValues) {
			fields = append(fields, zap.Any(key, errUnpairedKey))
			break
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}

var errUnpairedKey = fmt.Errorf("unpaired log key")

func (imp *impl) Debug(args ...interface{}) {
	if imp.level.Get() <= DEBUG {
		imp.entry(DEBUG, fmt.Sprint(args...), nil)
	}
}

func (imp *impl) Debugf(template string, args ...interface{}) {
	if imp.level.Get() <= DEBUG {
		imp.entry(DEBUG, fmt.Sprintf(template, args...), nil)
	}
}

func (imp *impl) Debugw(msg string, keysAndValues ...interface{}) {
	if imp.level.Get() <= DEBUG {
		imp.entry(DEBUG, msg, fieldsOf(keysAndValues))
	}
}

func (imp *impl) Info(args ...interface{}) {
	if imp.level.Get() <= INFO {
		imp.entry(INFO, fmt.Sprint(args...), nil)
	}
}

func (imp *impl) Infof(template string, args ...interface{}) {
	if imp.level.Get() <= INFO {
		imp.entry(INFO, fmt.Sprintf(template, args...), nil)
	}
}

func (imp *impl) Infow(msg string, keysAndValues ...interface{}) {
	if imp.level.Get() <= INFO {
		imp.entry(INFO, msg, fieldsOf(keysAndValues))
	}
}

func (imp *impl) Warn(args ...interface{}) {
	if imp.level.Get() <= WARN {
		imp.entry(WARN, fmt.Sprint(args...), nil)
	}
}

func (imp *impl) Warnf(template string, args ...interface{}) {
	if imp.level.Get() <= WARN {
		imp.entry(WARN, fmt.Sprintf(template, args...), nil)
	}
}

func (imp *impl) Warnw(msg string, keysAndValues ...interface{}) {
	if imp.level.Get() <= WARN {
		imp.entry(WARN, msg, fieldsOf(keysAndValues))
	}
}

func (imp *impl) Error(args ...interface{}) {
	if imp.level.Get() <= ERROR {
		imp.entry(ERROR, fmt.Sprint(args...), nil)
	}
}

func (imp *impl) Errorf(template string, args ...interface{}) {
	if imp.level.Get() <= ERROR {
		imp.entry(ERROR, fmt.Sprintf(template, args...), nil)
	}
}

func (imp *impl) Errorw(msg string, keysAndValues ...interface{}) {
	if imp.level.Get() <= ERROR {
		imp.entry(ERROR, msg, fieldsOf(keysAndValues))
	}
}

// Fatal logs at ERROR regardless of level, then exits.
func (imp *impl) Fatal(args ...interface{}) {
	imp.entry(ERROR, fmt.Sprint(args...), nil)
	os.Exit(1)
}

// Fatalf logs at ERROR regardless of level, then exits.
func (imp *impl) Fatalf(template string, args ...interface{}) {
	imp.entry(ERROR, fmt.Sprintf(template, args...), nil)
	os.Exit(1)
}

// Fatalw logs at ERROR regardless of level, then exits.
func (imp *impl) Fatalw(msg string, keysAndValues ...interface{}) {
	imp.entry(ERROR, msg, fieldsOf(keysAndValues))
	os.Exit(1)
}

// caller describes the frame skip levels above its own caller.
func caller(skip int) zapcore.EntryCaller {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return zapcore.EntryCaller{}
	}
	c := zapcore.EntryCaller{Defined: true, PC: pc, File: file, Line: line}
	if fn := runtime.FuncForPC(pc); fn != nil {
		c.Function = fn.Name()
	}
	return c
}
