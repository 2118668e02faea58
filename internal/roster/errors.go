package roster

import "errors"

var (
	ErrRetryBudgetExhausted = errors.New("retry budget exhausted")
	ErrInvalidPolicy        = errors.New("invalid scrape policy")
	ErrSinkFailed           = errors.New("member sink failed")
	ErrInvalidFrame         = errors.New("gateway frame is not valid JSON")
)

// transientError marks failures of the connection (dial, send, receive,
// decode) that a fresh attempt may recover from.
type transientError struct {
	op  string
	err error
}

func (e *transientError) Error() string {
	return e.op + ": " + e.err.Error()
}

func (e *transientError) Unwrap() error {
	return e.err
}

func transient(op string, err error) error {
	return &transientError{op: op, err: err}
}

func isTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
