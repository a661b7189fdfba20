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

// Package fakerand provides a deterministic PRNG, suitable for testing.
package fakerand // import "zombiezen.com/go/kdbxdump/pkg/fakerand"

import (
	"crypto/sha256"
	"encoding/binary"
	"io"
	"sync"
)

// New returns a new reader that returns the same sequence of bytes every
// time for the same seed.  The reader can be used from multiple goroutines.
//
// The stream is SHA-256(seed || counter) for counter = 0, 1, 2, ...
func New(seed string) io.Reader {
	return &reader{seed: seed}
}

// Bytes returns the first n bytes of the stream for seed.
func Bytes(seed string, n int) []byte {
	b := make([]byte, n)
	New(seed).Read(b)
	return b
}

type reader struct {
	seed string

	mu    sync.Mutex
	n     uint64
	block [sha256.Size]byte
	used  int
	init  bool
}

func (r *reader) Read(p []byte) (n int, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for n < len(p) {
		if !r.init || r.used == len(r.block) {
			r.next()
		}
		nn := copy(p[n:], r.block[r.used:])
		r.used += nn
		n += nn
	}
	return n, nil
}

func (r *reader) next() {
	var ctr [8]byte
	binary.LittleEndian.PutUint64(ctr[:], r.n)
	h := sha256.New()
	io.WriteString(h, r.seed)
	h.Write(ctr[:])
	h.Sum(r.block[:0])
	r.n++
	r.used = 0
	r.init = true
}
