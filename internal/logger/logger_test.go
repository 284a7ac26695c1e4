package logger

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	c := qt.New(t)

	c.Check(ParseLevel("debug"), qt.Equals, zapcore.DebugLevel)
	c.Check(ParseLevel("warn"), qt.Equals, zapcore.WarnLevel)
	c.Check(ParseLevel("error"), qt.Equals, zapcore.ErrorLevel)
	c.Check(ParseLevel("verbose"), qt.Equals, zapcore.InfoLevel)
}

func TestInitHonorsLevel(t *testing.T) {
	c := qt.New(t)

	l := Init("warn")
	c.Check(l.Core().Enabled(zapcore.InfoLevel), qt.IsFalse)
	c.Check(l.Core().Enabled(zapcore.WarnLevel), qt.IsTrue)
}
