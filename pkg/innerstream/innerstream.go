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

// Package innerstream provides the stream ciphers that protect individual
// values inside a KDBX document.
//
// Every protected value in a document is encrypted with the same keystream,
// in document order.  A Stream must therefore be created once per document
// and advanced across all values; a fresh Stream per value yields garbage
// for every value but the first.
package innerstream // import "zombiezen.com/go/kdbxdump/pkg/innerstream"

import (
	"crypto/cipher"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20"
	"golang.org/x/crypto/salsa20/salsa"
)

// ID identifies an inner stream algorithm, as stored in the
// InnerRandomStreamID header field.
type ID uint32

// Inner stream algorithms
const (
	None           ID = 0
	ArcFourVariant ID = 1
	Salsa20        ID = 2
	ChaCha20       ID = 3
)

func (id ID) String() string {
	switch id {
	case None:
		return "None"
	case ArcFourVariant:
		return "ArcFourVariant"
	case Salsa20:
		return "Salsa20"
	case ChaCha20:
		return "ChaCha20"
	default:
		return fmt.Sprintf("ID(%d)", uint32(id))
	}
}

// ErrUnsupported is returned by New for algorithms this package does not implement.
var ErrUnsupported = errors.New("innerstream: unsupported algorithm")

// salsaNonce is the fixed Salsa20 nonce used by KeePass.
var salsaNonce = [8]byte{0xe8, 0x30, 0x09, 0x4b, 0x97, 0x20, 0x5d, 0x2a}

// New returns a stream for the given algorithm keyed from the raw
// InnerRandomStreamKey header value.
func New(id ID, key []byte) (cipher.Stream, error) {
	switch id {
	case None:
		return nullStream{}, nil
	case Salsa20:
		k := sha256.Sum256(key)
		s := NewSalsa20(&k)
		zero(k[:])
		return s, nil
	case ChaCha20:
		h := sha512.Sum512(key)
		defer zero(h[:])
		c, err := chacha20.NewUnauthenticatedCipher(h[:chacha20.KeySize], h[chacha20.KeySize:chacha20.KeySize+chacha20.NonceSize])
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("%w %v", ErrUnsupported, id)
	}
}

// A SalsaStream is a Salsa20 keystream with the KeePass nonce that keeps
// its position between calls to XORKeyStream.
type SalsaStream struct {
	key     [32]byte
	counter [16]byte // nonce || little-endian block counter
	block   [salsaBlockSize]byte
	used    int // bytes of block already consumed
}

const salsaBlockSize = 64

// NewSalsa20 returns a stream positioned at the start of the keystream.
func NewSalsa20(key *[32]byte) *SalsaStream {
	s := &SalsaStream{key: *key, used: salsaBlockSize}
	copy(s.counter[:8], salsaNonce[:])
	return s
}

// XORKeyStream XORs each byte in src with the next keystream byte and
// writes the result to dst.  dst and src must overlap entirely or not at all.
func (s *SalsaStream) XORKeyStream(dst, src []byte) {
	if len(dst) < len(src) {
		panic("innerstream: output smaller than input")
	}
	for i := range src {
		if s.used == salsaBlockSize {
			s.refill()
		}
		dst[i] = src[i] ^ s.block[s.used]
		s.used++
	}
}

func (s *SalsaStream) refill() {
	var in [salsaBlockSize]byte
	salsa.XORKeyStream(s.block[:], in[:], &s.counter, &s.key)
	n := binary.LittleEndian.Uint64(s.counter[8:])
	binary.LittleEndian.PutUint64(s.counter[8:], n+1)
	s.used = 0
}

type nullStream struct{}

func (nullStream) XORKeyStream(dst, src []byte) {
	copy(dst, src)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
