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
	"encoding/binary"
	"fmt"
)

// reader reads little-endian values from an in-memory buffer.  After the
// first error, every read returns a zero value and err stays set.
type reader struct {
	b   []byte
	off int
	err error
}

// read returns the next n bytes.  The result aliases the buffer.
func (r *reader) read(what string, n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || n > len(r.b)-r.off {
		r.err = fmt.Errorf("%w: %s needs %d bytes at offset %d, %d left", ErrTruncated, what, n, r.off, len(r.b)-r.off)
		return nil
	}
	p := r.b[r.off : r.off+n : r.off+n]
	r.off += n
	return p
}

func (r *reader) readUint8(what string) uint8 {
	p := r.read(what, 1)
	if p == nil {
		return 0
	}
	return p[0]
}

func (r *reader) readUint16(what string) uint16 {
	p := r.read(what, 2)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(p)
}

func (r *reader) readUint32(what string) uint32 {
	p := r.read(what, 4)
	if p == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(p)
}

// remaining returns the number of unread bytes.
func (r *reader) remaining() int {
	return len(r.b) - r.off
}

// readUintField decodes a little-endian integer field that may be stored
// in 4 or 8 bytes.
func readUintField(name string, b []byte) (uint64, error) {
	switch len(b) {
	case 4:
		return uint64(binary.LittleEndian.Uint32(b)), nil
	case 8:
		return binary.LittleEndian.Uint64(b), nil
	default:
		return 0, &FieldSizeError{Name: name, Size: len(b), Want: []int{4, 8}}
	}
}

func verifyFieldSize(name string, val []byte, want ...int) error {
	for _, w := range want {
		if len(val) == w {
			return nil
		}
	}
	return &FieldSizeError{Name: name, Size: len(val), Want: want}
}
