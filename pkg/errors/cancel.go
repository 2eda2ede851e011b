// pkg/errors/cancel.go
package errors

// Cancel error codes
const (
	// CancelErrTriggered indicates a cancel token fired
	CancelErrTriggered = "CANCEL_TRIGGERED"
	// CancelErrDeadline indicates a wait deadline elapsed first
	CancelErrDeadline = "CANCEL_DEADLINE"
)

// Cancel domain name
const CancelDomain = "cancel"

// Cancel operations
const (
	OpWait      = "Wait"
	OpWaitFirst = "WaitFirst"
)

// TokenField is the Fields key naming the token that fired.
const TokenField = "token"

// NewCancelledError reports that the named token fired.
func NewCancelledError(token string) error {
	return &Error{
		Domain:   CancelDomain,
		Code:     CancelErrTriggered,
		Message:  Sprintf("cancellation requested by %s token", token),
		Original: ErrCancelled,
		Fields:   map[string]interface{}{TokenField: token},
	}
}

// NewDeadlineError reports that a wait on the named token timed out.
func NewDeadlineError(token string, timeout interface{}) error {
	return &Error{
		Domain:    CancelDomain,
		Code:      CancelErrDeadline,
		Operation: OpWaitFirst,
		Message:   Sprintf("timed out after %v waiting on %s token", timeout, token),
		Original:  ErrTimeout,
		Fields:    map[string]interface{}{TokenField: token},
	}
}

// IsCancelled reports whether err carries the cancellation signal.
func IsCancelled(err error) bool {
	return Is(err, ErrCancelled)
}

// IsTimeout reports whether err is a deadline error.
func IsTimeout(err error) bool {
	return Is(err, ErrTimeout)
}
