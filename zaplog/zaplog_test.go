package zaplog

import (
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/joeycumines/logiface"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithZapNilPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("WithZap(nil) did not panic")
		}
	}()
	WithZap(nil)
}

func TestNewWritesThroughZap(t *testing.T) {
	core, obs := observer.New(zapcore.DebugLevel)
	log := New(zap.New(core))

	log.Info().
		Str("k", "v").
		Int("n", 3).
		Log("hello")

	entries := obs.All()
	if len(entries) != 1 {
		t.Fatalf("observed %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Message != "hello" {
		t.Errorf("message = %q", e.Message)
	}
	if e.Level != zapcore.InfoLevel {
		t.Errorf("level = %v, want info", e.Level)
	}
	ctx := e.ContextMap()
	if ctx["k"] != "v" {
		t.Errorf("field k = %v", ctx["k"])
	}
	if ctx["n"] != int64(3) {
		t.Errorf("field n = %v (%T)", ctx["n"], ctx["n"])
	}
}

// TestZapCoreFiltersLevels verifies level filtering defers to the zap core:
// the logiface side is wide open, so a restrictive core decides.
func TestZapCoreFiltersLevels(t *testing.T) {
	core, obs := observer.New(zapcore.ErrorLevel)
	log := New(zap.New(core))

	log.Debug().Log("dropped")
	log.Info().Log("dropped too")
	if got := obs.Len(); got != 0 {
		t.Fatalf("observed %d entries below the core level", got)
	}

	log.Err().Log("kept")
	if got := obs.Len(); got != 1 {
		t.Fatalf("observed %d entries, want 1", got)
	}
	if obs.All()[0].Message != "kept" {
		t.Errorf("message = %q", obs.All()[0].Message)
	}
}

// TestNewAppliesOptions verifies extra options narrow the logiface level
// before zap is consulted.
func TestNewAppliesOptions(t *testing.T) {
	core, obs := observer.New(zapcore.DebugLevel)
	log := New(zap.New(core), logiface.WithLevel[logiface.Event](logiface.LevelError))

	log.Info().Log("dropped")
	log.Err().Log("kept")

	if got := obs.Len(); got != 1 {
		t.Fatalf("observed %d entries, want 1", got)
	}
}

func TestToZapLevel(t *testing.T) {
	cases := []struct {
		in   logiface.Level
		want zapcore.Level
		ok   bool
	}{
		{logiface.LevelTrace, zapcore.DebugLevel, true},
		{logiface.LevelDebug, zapcore.DebugLevel, true},
		{logiface.LevelInformational, zapcore.InfoLevel, true},
		{logiface.LevelNotice, zapcore.WarnLevel, true},
		{logiface.LevelWarning, zapcore.WarnLevel, true},
		{logiface.LevelError, zapcore.ErrorLevel, true},
		{logiface.LevelCritical, zapcore.ErrorLevel, true},
		{logiface.LevelAlert, zapcore.ErrorLevel, true},
		{logiface.LevelEmergency, zapcore.ErrorLevel, true},
		{logiface.LevelDisabled, zapcore.InvalidLevel, false},
	}
	for _, c := range cases {
		got, ok := toZapLevel(c.in)
		if got != c.want || ok != c.ok {
			t.Errorf("toZapLevel(%v) = (%v, %t), want (%v, %t)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestReleaseEventResets(t *testing.T) {
	l := &Logger{Zap: zap.NewNop()}
	ev := &Event{
		lvl:    logiface.LevelInformational,
		msg:    "pending",
		fields: []zap.Field{zap.String("k", "v")},
	}

	l.ReleaseEvent(ev)

	if ev.lvl != logiface.LevelDisabled {
		t.Errorf("lvl = %v after release", ev.lvl)
	}
	if ev.msg != "" {
		t.Errorf("msg = %q after release", ev.msg)
	}
	if len(ev.fields) != 0 {
		t.Errorf("fields = %d after release", len(ev.fields))
	}
}

type foreignEvent struct {
	logiface.UnimplementedEvent
}

func (foreignEvent) Level() logiface.Level { return logiface.LevelInformational }

func (foreignEvent) AddField(string, any) {}

func TestWriteRejectsForeignEvent(t *testing.T) {
	l := &Logger{Zap: zap.NewNop()}
	if err := l.Write(foreignEvent{}); !errors.Is(err, logiface.ErrDisabled) {
		t.Errorf("Write(foreign) = %v, want ErrDisabled", err)
	}
}

func TestNilEventLevel(t *testing.T) {
	var ev *Event
	if got := ev.Level(); got != logiface.LevelDisabled {
		t.Errorf("nil event level = %v, want disabled", got)
	}
}

func TestEventFieldKinds(t *testing.T) {
	ev := &Event{}
	ev.AddField("any", struct{}{})
	ev.AddError(errors.New("e"))
	ev.AddString("s", "v")
	ev.AddInt("i", 1)
	ev.AddFloat32("f32", 1.5)
	ev.AddTime("t", time.Unix(0, 0))
	ev.AddDuration("d", time.Second)
	ev.AddBase64Bytes("b64", []byte("hi"), base64.StdEncoding)
	ev.AddBool("b", true)
	ev.AddFloat64("f64", 2.5)
	ev.AddInt64("i64", 64)
	ev.AddUint64("u64", 64)

	if len(ev.fields) != 12 {
		t.Fatalf("fields = %d, want 12", len(ev.fields))
	}
	if ev.fields[7].Key != "b64" || ev.fields[7].String != "aGk=" {
		t.Errorf("base64 field = %+v", ev.fields[7])
	}
	if !ev.AddMessage("m") || ev.msg != "m" {
		t.Errorf("AddMessage not recorded")
	}
}

func TestEventPoolRoundTrip(t *testing.T) {
	l := &Logger{Zap: zap.NewNop()}
	ev := l.NewEvent(logiface.LevelWarning)
	if got := ev.Level(); got != logiface.LevelWarning {
		t.Errorf("pooled event level = %v, want warning", got)
	}
	l.ReleaseEvent(ev)

	ev2 := l.NewEvent(logiface.LevelDebug)
	if got := ev2.Level(); got != logiface.LevelDebug {
		t.Errorf("reused event level = %v, want debug", got)
	}
	l.ReleaseEvent(ev2)
}
