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

// Package kdbxcrypt derives keys and builds body ciphers for the
// KeePass 2.x (KDBX 3) encryption scheme.
package kdbxcrypt // import "zombiezen.com/go/kdbxdump/pkg/kdbxcrypt"

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/twofish"
	"zombiezen.com/go/kdbxdump/pkg/uuids"
)

// Errors
var (
	ErrUnknownCipher = errors.New("kdbxcrypt: unknown cipher")
	ErrIVSize        = errors.New("kdbxcrypt: IV size does not match block size")
	ErrKeyFileHash   = errors.New("kdbxcrypt: key file hash must be 32 bytes")
)

// KeySize is the size in bytes of a derived key.
const KeySize = sha256.Size

// BlockSize is the block size in bytes of every supported body cipher.
const BlockSize = 16

// A Key is the set of parameters used to build the body cipher key.
type Key struct {
	Password        []byte // optional
	KeyFileHash     []byte // must be nil or length 32
	MasterSeed      []byte
	TransformSeed   []byte // AES key: 16, 24, or 32 bytes
	TransformRounds uint64
}

// Derive runs the key transformation and returns the final key:
//
//	sha256(MasterSeed || sha256(AES-ECB^rounds(TransformSeed, composite)))
//
// It takes time proportional to TransformRounds.
func (k *Key) Derive() ([KeySize]byte, error) {
	if len(k.KeyFileHash) != 0 && len(k.KeyFileHash) != sha256.Size {
		return [KeySize]byte{}, ErrKeyFileHash
	}
	tk, err := k.transform()
	if err != nil {
		return [KeySize]byte{}, err
	}
	defer zero(tk[:])
	h := sha256.New()
	h.Write(k.MasterSeed)
	h.Write(tk[:])
	var out [KeySize]byte
	h.Sum(out[:0])
	return out, nil
}

// transform returns the hash of the composite key after the encryption rounds.
func (k *Key) transform() ([sha256.Size]byte, error) {
	// One cipher per half so the halves never share state.
	c1, err := aes.NewCipher(k.TransformSeed)
	if err != nil {
		return [sha256.Size]byte{}, fmt.Errorf("kdbxcrypt: transform seed: %v", err)
	}
	c2, _ := aes.NewCipher(k.TransformSeed)

	base := k.compositeHash()
	defer zero(base[:])
	var tk [sha256.Size]byte
	var wg sync.WaitGroup
	wg.Add(2)
	go transformKeyBlock(&wg, tk[:aes.BlockSize], base[:aes.BlockSize], c1, k.TransformRounds)
	go transformKeyBlock(&wg, tk[aes.BlockSize:], base[aes.BlockSize:], c2, k.TransformRounds)
	wg.Wait()
	sum := sha256.Sum256(tk[:])
	zero(tk[:])
	return sum, nil
}

// compositeHash returns the key's hash prior to encryption rounds.
func (k *Key) compositeHash() [sha256.Size]byte {
	p := sha256.Sum256(k.Password)
	defer zero(p[:])
	h := sha256.New()
	if len(k.KeyFileHash) == 0 || len(k.Password) > 0 {
		h.Write(p[:])
	}
	h.Write(k.KeyFileHash)
	var a [sha256.Size]byte
	h.Sum(a[:0])
	return a
}

// transformKeyBlock applies rounds of encryption with c to src and stores the result in dst.
// Each round consumes the previous round's output.
func transformKeyBlock(wg *sync.WaitGroup, dst, src []byte, c cipher.Block, rounds uint64) {
	dst = dst[:aes.BlockSize]
	copy(dst, src)
	for i := uint64(0); i < rounds; i++ {
		c.Encrypt(dst, dst)
	}
	wg.Done()
}

// Cipher is a body cipher algorithm.
type Cipher int

// Available ciphers
const (
	AESCipher Cipher = iota
	TwofishCipher
)

// Cipher UUIDs as stored in the CipherID header field.
var (
	AESCipherID     = uuids.UUID{0x31, 0xc1, 0xf2, 0xe6, 0xbf, 0x71, 0x43, 0x50, 0xbe, 0x58, 0x05, 0x21, 0x6a, 0xfc, 0x5a, 0xff}
	TwofishCipherID = uuids.UUID{0xad, 0x68, 0xf2, 0x9f, 0x57, 0x6f, 0x4b, 0xb9, 0xa3, 0x6a, 0xd4, 0x7a, 0xf9, 0x65, 0x34, 0x6c}
)

// CipherByID returns the cipher identified by a CipherID header value.
func CipherByID(id uuids.UUID) (Cipher, error) {
	switch id {
	case AESCipherID:
		return AESCipher, nil
	case TwofishCipherID:
		return TwofishCipher, nil
	default:
		return 0, fmt.Errorf("%w %v", ErrUnknownCipher, id)
	}
}

// ID returns the UUID written to the CipherID header field.
func (c Cipher) ID() uuids.UUID {
	switch c {
	case AESCipher:
		return AESCipherID
	case TwofishCipher:
		return TwofishCipherID
	default:
		return uuids.UUID{}
	}
}

func (c Cipher) String() string {
	switch c {
	case AESCipher:
		return "AES-256"
	case TwofishCipher:
		return "Twofish"
	default:
		return fmt.Sprintf("Cipher(%d)", int(c))
	}
}

func (c Cipher) block(key []byte) (cipher.Block, error) {
	switch c {
	case AESCipher:
		return aes.NewCipher(key)
	case TwofishCipher:
		return twofish.NewCipher(key)
	default:
		return nil, ErrUnknownCipher
	}
}

// NewDecrypter returns a CBC decrypter for the body.  The returned mode
// carries chaining state across calls to CryptBlocks.
func NewDecrypter(c Cipher, key, iv []byte) (cipher.BlockMode, error) {
	b, err := c.block(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != b.BlockSize() {
		return nil, ErrIVSize
	}
	return cipher.NewCBCDecrypter(b, iv), nil
}

// NewEncrypter returns a CBC encrypter for the body.
func NewEncrypter(c Cipher, key, iv []byte) (cipher.BlockMode, error) {
	b, err := c.block(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != b.BlockSize() {
		return nil, ErrIVSize
	}
	return cipher.NewCBCEncrypter(b, iv), nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
