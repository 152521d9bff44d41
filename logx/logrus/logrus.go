package logrus

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/stockcore/logx"
)

var _ logx.Logger = Logger{}

type Logger struct{ E *logrus.Entry }

// New returns a JSON logrus logger writing to stderr at the given level.
// An unknown level falls back to info.
func New(level string) Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.JSONFormatter{})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return Logger{E: logrus.NewEntry(l)}
}

func (l Logger) Debug(msg string, f logx.Fields) { l.E.WithFields(logrus.Fields(f)).Debug(msg) }
func (l Logger) Info(msg string, f logx.Fields)  { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l Logger) Warn(msg string, f logx.Fields)  { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l Logger) Error(msg string, f logx.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}
