package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// ZapLogger adapts a zap.Logger to Logger. The component prefix of a message
// ("[db] ...") is split off into a "component" field.
type ZapLogger struct {
	s *zap.SugaredLogger
}

// NewZapLogger wraps l. Fatalf logs at error level with fatal=true and does
// not exit, matching the Logger contract.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	return &ZapLogger{s: l.WithOptions(zap.AddCallerSkip(1)).Sugar()}
}

func (z *ZapLogger) Errorf(format string, args ...any) { z.log(z.s.Errorw, format, args) }
func (z *ZapLogger) Warnf(format string, args ...any)  { z.log(z.s.Warnw, format, args) }
func (z *ZapLogger) Infof(format string, args ...any)  { z.log(z.s.Infow, format, args) }
func (z *ZapLogger) Debugf(format string, args ...any) { z.log(z.s.Debugw, format, args) }

func (z *ZapLogger) Fatalf(format string, args ...any) {
	msg, component := splitComponent(fmt.Sprintf(format, args...))
	z.s.Errorw(msg, "component", component, "fatal", true)
}

func (z *ZapLogger) log(fn func(string, ...any), format string, args []any) {
	msg, component := splitComponent(fmt.Sprintf(format, args...))
	if component == "" {
		fn(msg)
		return
	}
	fn(msg, "component", component)
}

// splitComponent turns "[db] text" into ("text", "db").
func splitComponent(msg string) (string, string) {
	if len(msg) < 3 || msg[0] != '[' {
		return msg, ""
	}
	for i := 1; i < len(msg); i++ {
		if msg[i] == ']' {
			rest := msg[i+1:]
			if len(rest) > 0 && rest[0] == ' ' {
				rest = rest[1:]
			}
			return rest, msg[1:i]
		}
	}
	return msg, ""
}
