package model

import "errors"

var (
	ErrNotConnected   = errors.New("broker is not connected")
	ErrConnectTimeout = errors.New("broker connect timed out")
	ErrConnectFailed  = errors.New("broker connect failed")
	ErrPublishFailed  = errors.New("broker publish failed")
	ErrEmptyContent   = errors.New("message content must not be empty")
	ErrDecode         = errors.New("inbound payload is not valid UTF-8")
)

var known = []error{
	ErrNotConnected,
	ErrConnectTimeout,
	ErrConnectFailed,
	ErrPublishFailed,
	ErrEmptyContent,
	ErrDecode,
}

// Describe maps err onto the caller-facing taxonomy text.
// Anything outside the taxonomy collapses to a generic message so internals never leak.
func Describe(err error) string {
	for _, k := range known {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return "internal error"
}
