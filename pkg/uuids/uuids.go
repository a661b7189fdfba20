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

// Package uuids handles the 128-bit identifiers that KDBX headers and
// documents use to name ciphers, entries and groups.
package uuids // import "zombiezen.com/go/kdbxdump/pkg/uuids"

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
)

// A UUID is a universally unique identifier: a 128-bit value.
type UUID [16]byte

// FromBytes converts a raw 16-byte field value into a UUID.
func FromBytes(b []byte) (UUID, error) {
	var u UUID
	if len(b) != len(u) {
		return UUID{}, parseError{hex.EncodeToString(b), errSize}
	}
	copy(u[:], b)
	return u, nil
}

// ParseBase64 decodes the base64 form used for UUID elements inside
// KDBX XML documents.
func ParseBase64(s string) (UUID, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return UUID{}, parseError{s, err}
	}
	u, err := FromBytes(b)
	if err != nil {
		return UUID{}, parseError{s, errSize}
	}
	return u, nil
}

var errSize = errors.New("wrong size")

type parseError struct {
	s   string
	err error
}

func (e parseError) Error() string {
	return "uuid: failed to parse " + strconv.Quote(e.s) + ": " + e.err.Error()
}

// AppendHex appends the dash-separated hex representation of u to b
// and returns the extended buffer.
func (u UUID) AppendHex(b []byte) []byte {
	b = appendHex(b, u[:4])
	b = append(b, '-')
	b = appendHex(b, u[4:6])
	b = append(b, '-')
	b = appendHex(b, u[6:8])
	b = append(b, '-')
	b = appendHex(b, u[8:10])
	b = append(b, '-')
	b = appendHex(b, u[10:])
	return b
}

func appendHex(b, src []byte) []byte {
	i := len(b)
	n := hex.EncodedLen(len(src))
	for j := 0; j < n; j++ {
		b = append(b, 0)
	}
	hex.Encode(b[i:], src)
	return b
}

// String returns the dash-separated hex representation of u as a string.
func (u UUID) String() string {
	b := make([]byte, 0, 36)
	b = u.AppendHex(b)
	return string(b)
}
