// Package zaplog implements support for using go.uber.org/zap with
// github.com/joeycumines/logiface.
package zaplog

import (
	"encoding/base64"
	"sync"
	"time"

	"github.com/joeycumines/logiface"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type (
	// Event buffers one log event's level, message, and fields until Write
	// hands them to zap.
	Event struct {
		lvl    logiface.Level
		msg    string
		fields []zap.Field
		//lint:ignore U1000 embedded for it's methods
		unimplementedEvent
	}

	Logger struct {
		Zap *zap.Logger
	}

	// LoggerFactory is provided as a convenience, embedding
	// logiface.LoggerFactory[logiface.Event], and aliasing the option
	// functions implemented within this package.
	LoggerFactory struct {
		//lint:ignore U1000 embedded for it's methods
		baseLoggerFactory
	}

	//lint:ignore U1000 used to embed without exporting
	unimplementedEvent = logiface.UnimplementedEvent

	//lint:ignore U1000 used to embed without exporting
	baseLoggerFactory = logiface.LoggerFactory[logiface.Event]
)

var (
	// L is a LoggerFactory, and may be used to configure a
	// logiface.Logger[logiface.Event], using the implementations provided by
	// this package.
	L = LoggerFactory{}

	eventPool = sync.Pool{New: func() any {
		return &Event{fields: make([]zap.Field, 0, 8)}
	}}
)

// WithZap configures a logiface logger to use a zap logger.
// Will panic if the logger is nil.
//
// The adapter buffers events as logiface.Event, so the resulting logger
// satisfies consumers declared against the interface event type.
//
// See also LoggerFactory.WithZap and L (an alias for LoggerFactory{}).
func WithZap(logger *zap.Logger) logiface.Option[logiface.Event] {
	if logger == nil {
		panic(`nil logger`)
	}
	l := Logger{Zap: logger}
	return L.WithOptions(
		L.WithWriter(&l),
		L.WithEventFactory(&l),
		L.WithEventReleaser(&l),
	)
}

// WithZap is an alias of the package function of the same name.
func (LoggerFactory) WithZap(logger *zap.Logger) logiface.Option[logiface.Event] {
	return WithZap(logger)
}

// New returns a logiface logger backed by logger. Level filtering defers to
// the zap core, so the logiface side is left wide open unless options narrow
// it.
func New(logger *zap.Logger, options ...logiface.Option[logiface.Event]) *logiface.Logger[logiface.Event] {
	return logiface.New(append([]logiface.Option[logiface.Event]{
		WithZap(logger),
		logiface.WithLevel[logiface.Event](logiface.LevelTrace),
	}, options...)...)
}

func (x *Event) Level() logiface.Level {
	if x != nil {
		return x.lvl
	}
	return logiface.LevelDisabled
}

func (x *Event) AddField(key string, val any) {
	x.fields = append(x.fields, zap.Any(key, val))
}

func (x *Event) AddMessage(msg string) bool {
	x.msg = msg
	return true
}

func (x *Event) AddError(err error) bool {
	x.fields = append(x.fields, zap.Error(err))
	return true
}

func (x *Event) AddString(key string, val string) bool {
	x.fields = append(x.fields, zap.String(key, val))
	return true
}

func (x *Event) AddInt(key string, val int) bool {
	x.fields = append(x.fields, zap.Int(key, val))
	return true
}

func (x *Event) AddFloat32(key string, val float32) bool {
	x.fields = append(x.fields, zap.Float32(key, val))
	return true
}

func (x *Event) AddTime(key string, val time.Time) bool {
	x.fields = append(x.fields, zap.Time(key, val))
	return true
}

func (x *Event) AddDuration(key string, val time.Duration) bool {
	x.fields = append(x.fields, zap.Duration(key, val))
	return true
}

func (x *Event) AddBase64Bytes(key string, val []byte, enc *base64.Encoding) bool {
	x.fields = append(x.fields, zap.String(key, enc.EncodeToString(val)))
	return true
}

func (x *Event) AddBool(key string, val bool) bool {
	x.fields = append(x.fields, zap.Bool(key, val))
	return true
}

func (x *Event) AddFloat64(key string, val float64) bool {
	x.fields = append(x.fields, zap.Float64(key, val))
	return true
}

func (x *Event) AddInt64(key string, val int64) bool {
	x.fields = append(x.fields, zap.Int64(key, val))
	return true
}

func (x *Event) AddUint64(key string, val uint64) bool {
	x.fields = append(x.fields, zap.Uint64(key, val))
	return true
}

func (x *Logger) NewEvent(level logiface.Level) logiface.Event {
	event := eventPool.Get().(*Event)
	event.lvl = level
	return event
}

func (x *Logger) ReleaseEvent(event logiface.Event) {
	if e, ok := event.(*Event); ok {
		e.lvl = logiface.LevelDisabled
		e.msg = ``
		e.fields = e.fields[:0]
		eventPool.Put(e)
	}
}

func (x *Logger) Write(event logiface.Event) error {
	e, ok := event.(*Event)
	if !ok {
		return logiface.ErrDisabled
	}

	zapLevel, ok := toZapLevel(e.lvl)
	if !ok {
		return logiface.ErrDisabled
	}

	// this lets other writers (e.g. in a logiface.WriterSlice) attempt to
	// handle the event
	ce := x.Zap.Check(zapLevel, e.msg)
	if ce == nil {
		return logiface.ErrDisabled
	}

	ce.Write(e.fields...)
	return nil
}

// toZapLevel maps logiface.Level to zapcore.Level.
//
// Alert and Emergency deliberately map to zapcore.ErrorLevel rather than
// Fatal or Panic: zap exits or panics when writing those, which a library
// logger must never do.
func toZapLevel(level logiface.Level) (zapcore.Level, bool) {
	switch level {
	case logiface.LevelTrace, logiface.LevelDebug:
		return zapcore.DebugLevel, true

	case logiface.LevelInformational:
		return zapcore.InfoLevel, true

	case logiface.LevelNotice, logiface.LevelWarning:
		return zapcore.WarnLevel, true

	case logiface.LevelError, logiface.LevelCritical,
		logiface.LevelAlert, logiface.LevelEmergency:
		return zapcore.ErrorLevel, true

	default:
		return zapcore.InvalidLevel, false
	}
}
