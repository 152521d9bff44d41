// Package logx is the small leveled logging contract shared by every stockcore
// component. Adapters for zap, logrus and slog live in subpackages.
package logx

// Fields is a minimal structured field map for logs.
type Fields map[string]any

// Logger is a tiny leveled logger. Provide an adapter around your logging stack.
// Components treat a nil Logger as Nop.
type Logger interface {
	Debug(msg string, f Fields)
	Info(msg string, f Fields)
	Warn(msg string, f Fields)
	Error(msg string, f Fields)
}

type Nop struct{}

func (Nop) Debug(string, Fields) {}
func (Nop) Info(string, Fields)  {}
func (Nop) Warn(string, Fields)  {}
func (Nop) Error(string, Fields) {}

// OrNop returns l, or Nop when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop{}
	}
	return l
}

// With returns a copy of f with extra merged in. f is not mutated.
func (f Fields) With(extra Fields) Fields {
	out := make(Fields, len(f)+len(extra))
	for k, v := range f {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
