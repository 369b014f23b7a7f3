package guest

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

// consoleCore is a zapcore.Core that writes entries to the host console.
type consoleCore struct {
	zapcore.LevelEnabler
	enc    zapcore.Encoder
	bridge *Bridge
}

// NewConsoleCore returns a core that forwards log entries through b to the
// host console. Do not pass a logger built on it back into the same
// bridge with WithLogger: every write is itself a boundary call.
func NewConsoleCore(b *Bridge, enab zapcore.LevelEnabler) zapcore.Core {
	cfg := zapcore.EncoderConfig{
		MessageKey:     "msg",
		NameKey:        "logger",
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeName:     zapcore.FullNameEncoder,
	}
	return &consoleCore{
		LevelEnabler: enab,
		enc:          zapcore.NewConsoleEncoder(cfg),
		bridge:       b,
	}
}

func (c *consoleCore) With(fields []zapcore.Field) zapcore.Core {
	clone := &consoleCore{
		LevelEnabler: c.LevelEnabler,
		enc:          c.enc.Clone(),
		bridge:       c.bridge,
	}
	for i := range fields {
		fields[i].AddTo(clone.enc)
	}
	return clone
}

func (c *consoleCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c *consoleCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	buf, err := c.enc.EncodeEntry(ent, fields)
	if err != nil {
		return err
	}
	msg := strings.TrimSuffix(buf.String(), "\n")
	buf.Free()

	c.bridge.Console(consoleLevel(ent.Level), msg)
	return nil
}

func (c *consoleCore) Sync() error {
	return nil
}

func consoleLevel(l zapcore.Level) string {
	switch {
	case l <= zapcore.DebugLevel:
		return "debug"
	case l == zapcore.InfoLevel:
		return "info"
	case l == zapcore.WarnLevel:
		return "warn"
	default:
		return "error"
	}
}
