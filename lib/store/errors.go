package store

import "strings"

// ParseError restores a store error from its Error() text, as it is sent over the wire.
// Texts that are not store errors become internal errors.
func ParseError(text string) *Error {
	const prefix = "StoreError (code "
	if rest, ok := strings.CutPrefix(text, prefix); ok {
		if name, msg, ok := strings.Cut(rest, "): "); ok {
			if code, ok := ParseRetCode(name); ok {
				return NewError(code, msg)
			}
		}
	}
	return NewError(RetCInternalError, text)
}

// IsCode reports whether err is a store error with the given code
func IsCode(err error, code RetCode) bool {
	return err != nil && CodeOf(err) == code
}
