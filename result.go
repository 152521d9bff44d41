package stockcore

// Result is what every action returns. Failures never escape as panics or
// bare errors past the action boundary.
type Result[T any] struct {
	OK    bool   `json:"ok"`
	Data  T      `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
	Kind  Kind   `json:"kind,omitempty"`

	// Err is the underlying error, kept for logging and errors.Is checks.
	Err error `json:"-"`
}

func Success[T any](v T) Result[T] {
	return Result[T]{OK: true, Data: v}
}

// Failure classifies err and builds a failed Result.
func Failure[T any](err error) Result[T] {
	k := Classify(err)
	return Result[T]{Error: message(k, err), Kind: k, Err: err}
}
