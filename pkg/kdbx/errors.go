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

package kdbx

import (
	"errors"
	"fmt"
	"strings"
)

// Errors.  Every error returned by Open matches exactly one of these
// with errors.Is, except for context cancellation.
var (
	ErrTruncated          = errors.New("kdbx: truncated input")
	ErrFormat             = errors.New("kdbx: malformed database")
	ErrWrongPassword      = errors.New("kdbx: password does not match or database is corrupt")
	ErrIntegrity          = errors.New("kdbx: block hash mismatch")
	ErrUnsupportedVersion = errors.New("kdbx: unsupported version")
)

// A StageError records the pipeline stage at which decoding failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return "kdbx: " + e.Stage.String() + ": " + strings.TrimPrefix(e.Err.Error(), "kdbx: ")
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// A BlockError is a failure tied to one block of the hashed block stream.
type BlockError struct {
	Index uint32
	Err   error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("kdbx: block %d: %s", e.Index, strings.TrimPrefix(e.Err.Error(), "kdbx: "))
}

func (e *BlockError) Unwrap() error {
	return e.Err
}

// A MissingFieldError reports a required header field that is absent.
type MissingFieldError struct {
	Field FieldID
}

func (e *MissingFieldError) Error() string {
	return "kdbx: missing required header field " + e.Field.String()
}

// Is reports MissingFieldError as a format error.
func (e *MissingFieldError) Is(target error) bool {
	return target == ErrFormat
}

// A FieldSizeError reports a header field with an unexpected length.
type FieldSizeError struct {
	Name string
	Size int
	Want []int
}

func (e *FieldSizeError) Error() string {
	want := make([]string, len(e.Want))
	for i, w := range e.Want {
		want[i] = fmt.Sprint(w)
	}
	return fmt.Sprintf("kdbx: %s field size is %d, should be %s", e.Name, e.Size, strings.Join(want, " or "))
}

// Is reports FieldSizeError as a format error.
func (e *FieldSizeError) Is(target error) bool {
	return target == ErrFormat
}

// A ProtectedValueError reports a protected value that could not be
// decrypted.  Index counts protected values in document order, from zero.
type ProtectedValueError struct {
	Index int
	Err   error
}

func (e *ProtectedValueError) Error() string {
	return fmt.Sprintf("kdbx: protected value %d: %v", e.Index, e.Err)
}

// Is reports ProtectedValueError as a format error.
func (e *ProtectedValueError) Is(target error) bool {
	return target == ErrFormat
}

func (e *ProtectedValueError) Unwrap() error {
	return e.Err
}
