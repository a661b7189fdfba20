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
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// readBlocks verifies the hashed block stream in plain and returns the
// concatenated block payloads.  verified is called after each good block.
//
// The stream ends at a block with an all-zero hash or no data, or when
// plain runs out exactly at a block boundary.
func readBlocks(plain []byte, verified func(index uint32, size int)) ([]byte, error) {
	r := &reader{b: plain}
	out := make([]byte, 0, len(plain))
	for next := uint32(0); r.remaining() > 0; next++ {
		index := r.readUint32("block index")
		hash := r.read("block hash", sha256.Size)
		size := r.readUint32("block size")
		data := r.read("block data", int(size))
		if r.err != nil {
			return nil, &BlockError{Index: next, Err: r.err}
		}
		if size == 0 || isZero(hash) {
			return out, nil
		}
		if index != next {
			return nil, &BlockError{Index: index, Err: fmt.Errorf("%w: out of sequence, expected block %d", ErrFormat, next)}
		}
		sum := sha256.Sum256(data)
		if subtle.ConstantTimeCompare(sum[:], hash) != 1 {
			return nil, &BlockError{Index: index, Err: ErrIntegrity}
		}
		if verified != nil {
			verified(index, len(data))
		}
		out = append(out, data...)
	}
	return out, nil
}

// decompress inflates a gzip stream, failing if the result would be
// larger than limit bytes.
func decompress(data []byte, limit int64) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: gzip: %v", ErrFormat, err)
	}
	defer zr.Close()
	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(io.LimitReader(zr, limit+1)); err != nil {
		return nil, fmt.Errorf("%w: gzip: %v", ErrFormat, err)
	}
	if int64(buf.Len()) > limit {
		return nil, fmt.Errorf("%w: document larger than %d bytes", ErrFormat, limit)
	}
	return buf.Bytes(), nil
}

func isZero(b []byte) bool {
	for _, x := range b {
		if x != 0 {
			return false
		}
	}
	return true
}
