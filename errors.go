// Copyright 2016 The Sandpass Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"net/http"

	"zombiezen.com/go/kdbxdump/pkg/kdbx"
	"zombiezen.com/go/kdbxdump/pkg/kdbxcrypt"
)

func userErrorMessage(e error) string {
	var ue interface {
		UserError() string
	}
	if !errors.As(e, &ue) {
		return ""
	}
	return ue.UserError()
}

func errorStatusCode(e error) int {
	var sc interface {
		StatusCode() int
	}
	if !errors.As(e, &sc) {
		return http.StatusInternalServerError
	}
	return sc.StatusCode()
}

type userError struct {
	msg  string
	code int
	err  error
}

func (ue userError) Error() string {
	return ue.err.Error()
}

func (ue userError) Unwrap() error {
	return ue.err
}

func (ue userError) UserError() string {
	return ue.msg
}

func (ue userError) StatusCode() int {
	if ue.code == 0 {
		return http.StatusBadRequest
	}
	return ue.code
}

func (e tooLargeError) UserError() string {
	return "database too large"
}

func (e tooLargeError) StatusCode() int {
	return http.StatusRequestEntityTooLarge
}

// decodeError classifies an error from kdbx.Open or kdbx.ReadHeader for
// an HTTP client.  Messages name the failing stage but never carry key
// material or plaintext.
func decodeError(err error) error {
	switch {
	case errors.Is(err, kdbx.ErrWrongPassword):
		return userError{msg: "wrong password or corrupt database", code: http.StatusForbidden, err: err}
	case errors.Is(err, kdbxcrypt.ErrKeyFile):
		return userError{msg: "unusable key file", err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, kdbx.ErrTruncated),
		errors.Is(err, kdbx.ErrFormat),
		errors.Is(err, kdbx.ErrIntegrity),
		errors.Is(err, kdbx.ErrUnsupportedVersion):
		return userError{msg: err.Error(), code: http.StatusUnprocessableEntity, err: err}
	default:
		return err
	}
}
