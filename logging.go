// Loop-level logging glue. The loop logs through logiface so applications
// can route diagnostics into whatever backend they already run (see the
// zaplog subpackage for zap); a nil logger disables everything except the
// critical fallbacks below.

package taskloop

import (
	"log"

	"github.com/joeycumines/logiface"
)

// Logger returns the logger configured via WithLogger, or nil. It is safe to
// call builder methods on the nil result; they no-op.
func (l *Loop) Logger() *logiface.Logger[logiface.Event] {
	return l.logger
}

// logCritical reports failures that must not be lost even when no logger is
// configured.
func (l *Loop) logCritical(msg string, err error) {
	if b := l.logger.Crit(); b != nil {
		b.Err(err).Int64("loop", int64(l.id)).Log(msg)
		return
	}
	log.Printf("CRITICAL: taskloop: %s: %v", msg, err)
}

// logPanic reports a recovered panic value.
func (l *Loop) logPanic(msg string, r any) {
	if b := l.logger.Err(); b != nil {
		b.Field("panic", r).Int64("loop", int64(l.id)).Log(msg)
		return
	}
	log.Printf("taskloop: %s: %v", msg, r)
}
