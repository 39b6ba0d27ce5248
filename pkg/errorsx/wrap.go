package errorsx

import (
	"errors"
	"fmt"
)

// Error carries the reason an action failed alongside the cause.
type Error struct {
	Reason ReasonCode
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return string(e.Reason) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// Wrap tags err with reason. The innermost reason wins: an error that already
// carries one is returned unchanged.
func Wrap(err error, reason ReasonCode) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	return &Error{Reason: reason, Err: err}
}

func Errorf(reason ReasonCode, format string, args ...any) error {
	return &Error{Reason: reason, Err: fmt.Errorf(format, args...)}
}

// Reason returns the reason carried anywhere in err's chain.
func Reason(err error) ReasonCode {
	var re *Error
	if errors.As(err, &re) {
		return re.Reason
	}
	return ReasonUnknown
}

func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}

// UserFacing returns the reason of err and the fixed text shown to the user
// for it. The text is empty for reasons without one.
func UserFacing(err error) (ReasonCode, string) {
	reason := Reason(err)
	return reason, UserMessage(reason)
}
