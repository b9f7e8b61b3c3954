package main

import "errors"

var (
	ErrUnknownProvider = errors.New("unknown ai provider")
	ErrEmptyReply      = errors.New("ai provider returned no text")
	ErrDecodeFailed    = errors.New("usage store: decode failed")
)

// UserError pairs an internal error with the text that is safe to show in chat.
type UserError struct {
	Err     error
	UserMsg string
}

func (e *UserError) Error() string {
	return e.Err.Error()
}

func (e *UserError) Unwrap() error {
	return e.Err
}

func NewUserError(internalErr error, userMsg string) *UserError {
	return &UserError{
		Err:     internalErr,
		UserMsg: userMsg,
	}
}

func getUserMessage(err error) string {
	var userErr *UserError
	if errors.As(err, &userErr) {
		return userErr.UserMsg
	}
	return err.Error()
}
