// Copyright 2021-present The Atlas Authors. All rights reserved.
// This source code is licensed under the Apache 2.0 license found
// in the LICENSE file in the root directory of this source tree.

package schema

import (
	"errors"
)

// A NotExistError wraps another error to retain its original text
// but makes it possible for callers to catch it. It is returned by
// procedures that introspect a table or an index that does not exist.
type NotExistError struct {
	Err error
}

func (e *NotExistError) Error() string { return e.Err.Error() }

// Unwrap returns the wrapped error.
func (e *NotExistError) Unwrap() error { return e.Err }

// IsNotExistError reports an error is a NotExistError.
func IsNotExistError(err error) bool {
	if err == nil {
		return false
	}
	var e *NotExistError
	return errors.As(err, &e)
}
