package api

// Status classifies façade outcomes for the transport layer.
type Status int

const (
	StatusOK Status = iota
	StatusNotFound
	StatusBadRequest
	StatusConflict
	StatusInternal
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNotFound:
		return "not found"
	case StatusBadRequest:
		return "bad request"
	case StatusConflict:
		return "conflict"
	case StatusInternal:
		return "internal error"
	}
	return "unknown"
}

// Result is the uniform envelope every façade operation returns: either data
// with StatusOK, or a status and message with no data.
type Result[T any] struct {
	Data    T
	Status  Status
	Message string
}

// OK wraps data in a successful result.
func OK[T any](data T) Result[T] {
	return Result[T]{Data: data, Status: StatusOK}
}

// Fail builds an error result.
func Fail[T any](status Status, message string) Result[T] {
	return Result[T]{Status: status, Message: message}
}

// IsError reports whether the result represents a failure.
func (r Result[T]) IsError() bool {
	return r.Status != StatusOK
}

// failAs converts an error result to an error result of another type.
func failAs[T, U any](r Result[T]) Result[U] {
	return Result[U]{Status: r.Status, Message: r.Message}
}
