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
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"unicode/utf8"
)

// Marker attribute for values encrypted with the inner stream.
const (
	protectedAttr  = "Protected"
	protectedValue = "True"
)

var errNotUTF8 = errors.New("decrypted value is not valid UTF-8")

// DecryptProtected replaces the text of every protected node in t with
// its plaintext.  All values share s's keystream, so s must be fresh and
// the nodes are visited strictly in document order.  On error, some
// nodes may already have been replaced.
func DecryptProtected(t Tree, s cipher.Stream) error {
	for i, n := range t.MarkedNodes(protectedAttr, protectedValue) {
		text := n.Text()
		if text == "" {
			// Empty values consume no keystream.
			continue
		}
		b, err := base64.StdEncoding.DecodeString(text)
		if err != nil {
			return &ProtectedValueError{Index: i, Err: err}
		}
		s.XORKeyStream(b, b)
		if !utf8.Valid(b) {
			zero(b)
			return &ProtectedValueError{Index: i, Err: errNotUTF8}
		}
		n.SetText(string(b))
		zero(b)
	}
	return nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
