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
	"crypto/cipher"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"testing"

	"github.com/klauspost/compress/gzip"
	"zombiezen.com/go/kdbxdump/pkg/cipherio"
	"zombiezen.com/go/kdbxdump/pkg/fakerand"
	"zombiezen.com/go/kdbxdump/pkg/innerstream"
	"zombiezen.com/go/kdbxdump/pkg/kdbxcrypt"
	"zombiezen.com/go/kdbxdump/pkg/padding"
)

// encodeOptions controls the reference encoder used by the tests.
// The zero value writes an AES, gzip, Salsa20 database with one block.
type encodeOptions struct {
	password string
	keyFile  []byte // key file hash
	rounds   uint64
	cipher   kdbxcrypt.Cipher
	noGzip   bool
	innerID  innerstream.ID // zero means Salsa20 unless useNone is set
	useNone  bool

	// blockSize splits the payload into blocks of at most this many
	// bytes.  Zero means one block.
	blockSize int

	// If corrupt is set, a payload byte of block corruptBlock is flipped
	// after the block's hash is computed.
	corrupt      bool
	corruptBlock int

	// header, if not nil, edits the header fields before they are written.
	header func([]HeaderField) []HeaderField
}

const testSeed = "kdbx test"

func u32(x uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, x)
	return b
}

func u64(x uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, x)
	return b
}

// encodeDatabase builds a KDBX 3.1 file around a plaintext XML document.
// Elements marked Protected="True" are encrypted with the inner stream.
func encodeDatabase(t *testing.T, doc string, o encodeOptions) []byte {
	t.Helper()
	rand := fakerand.New(testSeed)
	read := func(n int) []byte {
		b := make([]byte, n)
		rand.Read(b)
		return b
	}
	masterSeed := read(32)
	transformSeed := read(32)
	iv := read(16)
	innerKey := read(32)
	streamStart := read(32)
	innerID := o.innerID
	if innerID == innerstream.None && !o.useNone {
		innerID = innerstream.Salsa20
	}

	// Protect values.
	tree, err := parseDocument([]byte(doc))
	if err != nil {
		t.Fatal("parse plaintext document:", err)
	}
	s, err := innerstream.New(innerID, innerKey)
	if err != nil {
		t.Fatal(err)
	}
	encryptProtected(tree, s)
	xmlDoc := new(bytes.Buffer)
	if _, err := tree.WriteTo(xmlDoc); err != nil {
		t.Fatal(err)
	}

	// Compress.
	payload := xmlDoc.Bytes()
	if !o.noGzip {
		buf := new(bytes.Buffer)
		zw := gzip.NewWriter(buf)
		if _, err := zw.Write(payload); err != nil {
			t.Fatal(err)
		}
		if err := zw.Close(); err != nil {
			t.Fatal(err)
		}
		payload = buf.Bytes()
	}

	// Hashed blocks.
	plain := new(bytes.Buffer)
	plain.Write(streamStart)
	plain.Write(hashedBlocks(payload, o.blockSize, o.corrupt, o.corruptBlock))

	// Encrypt.
	compressionFlags := uint32(1)
	if o.noGzip {
		compressionFlags = 0
	}
	fields := []HeaderField{
		{CipherID, idBytes(o.cipher)},
		{CompressionFlags, u32(compressionFlags)},
		{MasterSeed, masterSeed},
		{TransformSeed, transformSeed},
		{TransformRounds, u64(o.rounds)},
		{EncryptionIV, iv},
		{InnerRandomStreamKey, innerKey},
		{StreamStartBytes, streamStart},
		{InnerRandomStreamID, u32(uint32(innerID))},
		{EndOfHeader, []byte("\r\n\r\n")},
	}
	if o.header != nil {
		fields = o.header(fields)
	}
	k := kdbxcrypt.Key{
		Password:        []byte(o.password),
		KeyFileHash:     o.keyFile,
		MasterSeed:      masterSeed,
		TransformSeed:   transformSeed,
		TransformRounds: o.rounds,
	}
	key, err := k.Derive()
	if err != nil {
		t.Fatal("derive key:", err)
	}
	mode, err := kdbxcrypt.NewEncrypter(o.cipher, key[:], iv)
	if err != nil {
		t.Fatal(err)
	}
	out := new(bytes.Buffer)
	writeHeader(out, Signature2, 0x00030001, fields)
	w := cipherio.NewWriter(out, mode, padding.PKCS7)
	if _, err := w.Write(plain.Bytes()); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return out.Bytes()
}

func idBytes(c kdbxcrypt.Cipher) []byte {
	id := c.ID()
	return id[:]
}

func writeHeader(buf *bytes.Buffer, sig2, version uint32, fields []HeaderField) {
	buf.Write(u32(Signature1))
	buf.Write(u32(sig2))
	buf.Write(u32(version))
	for _, f := range fields {
		buf.WriteByte(byte(f.ID))
		var n [2]byte
		binary.LittleEndian.PutUint16(n[:], uint16(len(f.Value)))
		buf.Write(n[:])
		buf.Write(f.Value)
	}
}

// hashedBlocks splits payload into blocks followed by a terminator.
func hashedBlocks(payload []byte, size int, corrupt bool, corruptIndex int) []byte {
	if size <= 0 {
		size = len(payload)
	}
	buf := new(bytes.Buffer)
	var i uint32
	for len(payload) > 0 {
		n := size
		if n > len(payload) {
			n = len(payload)
		}
		data := append([]byte(nil), payload[:n]...)
		payload = payload[n:]
		sum := sha256.Sum256(data)
		if corrupt && int(i) == corruptIndex {
			data[len(data)/2] ^= 0x01
		}
		writeBlock(buf, i, sum[:], data)
		i++
	}
	writeBlock(buf, i, make([]byte, sha256.Size), nil)
	return buf.Bytes()
}

func writeBlock(buf *bytes.Buffer, index uint32, hash, data []byte) {
	buf.Write(u32(index))
	buf.Write(hash)
	buf.Write(u32(uint32(len(data))))
	buf.Write(data)
}

func encryptProtected(t Tree, s cipher.Stream) {
	for _, n := range t.MarkedNodes(protectedAttr, protectedValue) {
		if n.Text() == "" {
			continue
		}
		b := []byte(n.Text())
		s.XORKeyStream(b, b)
		n.SetText(base64.StdEncoding.EncodeToString(b))
	}
}

// removeField returns a header edit that drops every field with the ID.
func removeField(id FieldID) func([]HeaderField) []HeaderField {
	return func(fields []HeaderField) []HeaderField {
		var out []HeaderField
		for _, f := range fields {
			if f.ID != id {
				out = append(out, f)
			}
		}
		return out
	}
}

// insertField returns a header edit that adds a field before EndOfHeader.
func insertField(id FieldID, val []byte) func([]HeaderField) []HeaderField {
	return func(fields []HeaderField) []HeaderField {
		out := append([]HeaderField(nil), fields[:len(fields)-1]...)
		out = append(out, HeaderField{id, val})
		return append(out, fields[len(fields)-1])
	}
}
