package actions

// Result is the uniform envelope returned by every assistant action.
// Exactly one of Data and Error is set.
type Result[T any] struct {
	Success bool   `json:"success"`
	Data    *T     `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK wraps data in a successful result.
func OK[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: &data}
}

// Fail returns a failed result carrying a human-readable message.
func Fail[T any](msg string) Result[T] {
	return Result[T]{Success: false, Error: msg}
}
