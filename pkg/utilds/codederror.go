// Copyright 2025, Command Line Inc.
// SPDX-License-Identifier: Apache-2.0

package utilds

import (
	"errors"
	"fmt"
)

// CodedError tags an error with a string code so callers can branch on the category without
// matching messages.  The code survives wrapping with %w.
type CodedError struct {
	Code string
	Err  error
}

func (e CodedError) Error() string {
	if e.Err == nil {
		return e.Code
	}
	return e.Err.Error()
}

func (e CodedError) Unwrap() error {
	return e.Err
}

func MakeCodedError(code string, err error) CodedError {
	return CodedError{Code: code, Err: err}
}

// GetErrorCode returns the code of the first CodedError in err's chain, or "".
func GetErrorCode(err error) string {
	var coded CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}
	return ""
}

func HasErrorCode(err error, code string) bool {
	return err != nil && GetErrorCode(err) == code
}

func Errorf(code string, format string, args ...any) error {
	return MakeCodedError(code, fmt.Errorf(format, args...))
}
