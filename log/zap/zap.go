// Package zap adapts a zap.Logger to the casdict Logger interface.
package zap

import (
	casdict "github.com/unkn0wn-root/casdict"
	"go.uber.org/zap"
)

var _ casdict.Logger = ZapLogger{}

type ZapLogger struct{ L *zap.Logger }

func (z ZapLogger) Debug(msg string, f casdict.Fields) { z.L.Debug(msg, zf(f)...) }
func (z ZapLogger) Info(msg string, f casdict.Fields)  { z.L.Info(msg, zf(f)...) }
func (z ZapLogger) Warn(msg string, f casdict.Fields)  { z.L.Warn(msg, zf(f)...) }
func (z ZapLogger) Error(msg string, f casdict.Fields) { z.L.Error(msg, zf(f)...) }

func zf(f casdict.Fields) []zap.Field {
	if len(f) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, len(f))
	for k, v := range f {
		out = append(out, zap.Any(k, v))
	}
	return out
}
