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
	"fmt"

	"zombiezen.com/go/kdbxdump/pkg/innerstream"
	"zombiezen.com/go/kdbxdump/pkg/kdbxcrypt"
	"zombiezen.com/go/kdbxdump/pkg/uuids"
)

// Signatures
const (
	Signature1 uint32 = 0x9aa2d903

	Signature2           uint32 = 0xb54bfb67
	Signature2PreRelease uint32 = 0xb54bfb66
	Signature2KeePass1   uint32 = 0xb54bfb65
)

// MaxMajorVersion is the newest major format version that can be read.
const MaxMajorVersion = 3

// FieldID identifies a header field.
type FieldID uint8

// Header field IDs
const (
	EndOfHeader          FieldID = 0
	Comment              FieldID = 1
	CipherID             FieldID = 2
	CompressionFlags     FieldID = 3
	MasterSeed           FieldID = 4
	TransformSeed        FieldID = 5
	TransformRounds      FieldID = 6
	EncryptionIV         FieldID = 7
	InnerRandomStreamKey FieldID = 8
	StreamStartBytes     FieldID = 9
	InnerRandomStreamID  FieldID = 10
	KdfParameters        FieldID = 11
	PublicCustomData     FieldID = 12
)

var fieldNames = [...]string{
	EndOfHeader:          "EndOfHeader",
	Comment:              "Comment",
	CipherID:             "CipherID",
	CompressionFlags:     "CompressionFlags",
	MasterSeed:           "MasterSeed",
	TransformSeed:        "TransformSeed",
	TransformRounds:      "TransformRounds",
	EncryptionIV:         "EncryptionIV",
	InnerRandomStreamKey: "InnerRandomStreamKey",
	StreamStartBytes:     "StreamStartBytes",
	InnerRandomStreamID:  "InnerRandomStreamID",
	KdfParameters:        "KdfParameters",
	PublicCustomData:     "PublicCustomData",
}

func (id FieldID) String() string {
	if int(id) < len(fieldNames) {
		return fieldNames[id]
	}
	return fmt.Sprintf("FieldID(%d)", uint8(id))
}

// A HeaderField is a single tag-length-value entry of the outer header.
type HeaderField struct {
	ID    FieldID
	Value []byte
}

// A Header is the unencrypted prefix of a KDBX file.
type Header struct {
	Signature1 uint32
	Signature2 uint32
	Version    uint32

	// Fields holds every field in file order, including unknown IDs
	// and the final EndOfHeader.
	Fields []HeaderField

	size int
}

// MajorVersion returns the high 16 bits of the version.
func (h *Header) MajorVersion() uint16 {
	return uint16(h.Version >> 16)
}

// MinorVersion returns the low 16 bits of the version.
func (h *Header) MinorVersion() uint16 {
	return uint16(h.Version)
}

// Size returns the number of bytes the header occupies.  The encrypted
// body starts at this offset.
func (h *Header) Size() int {
	return h.size
}

// Field returns the value of the last field with the given ID.
func (h *Header) Field(id FieldID) (val []byte, ok bool) {
	for i := len(h.Fields) - 1; i >= 0; i-- {
		if h.Fields[i].ID == id {
			return h.Fields[i].Value, true
		}
	}
	return nil, false
}

// ReadHeader parses the header at the start of data.  It does not need
// the password, so it can be used to inspect a database's parameters.
func ReadHeader(data []byte) (*Header, error) {
	r := &reader{b: data}
	h := &Header{
		Signature1: r.readUint32("signature"),
		Signature2: r.readUint32("signature"),
		Version:    r.readUint32("version"),
	}
	if r.err != nil {
		return nil, r.err
	}
	if h.Signature1 != Signature1 {
		return nil, fmt.Errorf("%w: bad signature %#08x", ErrFormat, h.Signature1)
	}
	switch h.Signature2 {
	case Signature2, Signature2PreRelease:
	case Signature2KeePass1:
		return nil, fmt.Errorf("%w: KeePass 1.x database", ErrUnsupportedVersion)
	default:
		return nil, fmt.Errorf("%w: bad signature %#08x", ErrFormat, h.Signature2)
	}
	// KDBX 4 changes the field length to 32 bits, so stop before the field loop.
	if h.MajorVersion() > MaxMajorVersion {
		return nil, fmt.Errorf("%w: format %d.%d", ErrUnsupportedVersion, h.MajorVersion(), h.MinorVersion())
	}
	for {
		id := FieldID(r.readUint8("field id"))
		n := r.readUint16("field length")
		p := r.read(id.String(), int(n))
		if r.err != nil {
			return nil, r.err
		}
		h.Fields = append(h.Fields, HeaderField{ID: id, Value: append([]byte(nil), p...)})
		if id == EndOfHeader {
			break
		}
	}
	h.size = r.off
	return h, nil
}

// keyMaterial holds the validated header values needed to decrypt.
type keyMaterial struct {
	cipher          kdbxcrypt.Cipher
	compressed      bool
	masterSeed      []byte
	transformSeed   []byte
	transformRounds uint64
	iv              []byte
	streamStart     []byte
	innerKey        []byte
	innerID         innerstream.ID
}

// keyMaterial checks that every field needed downstream is present and
// well-formed.  It runs before any key derivation.
func (h *Header) keyMaterial() (*keyMaterial, error) {
	if _, ok := h.Field(KdfParameters); ok {
		return nil, fmt.Errorf("%w: KdfParameters field present", ErrUnsupportedVersion)
	}
	required := []FieldID{MasterSeed, TransformSeed, TransformRounds, EncryptionIV, StreamStartBytes, InnerRandomStreamKey}
	for _, id := range required {
		if _, ok := h.Field(id); !ok {
			return nil, &MissingFieldError{Field: id}
		}
	}
	km := &keyMaterial{
		cipher:        kdbxcrypt.AESCipher,
		compressed:    true,
		innerID:       innerstream.Salsa20,
		masterSeed:    h.mustField(MasterSeed),
		transformSeed: h.mustField(TransformSeed),
		iv:            h.mustField(EncryptionIV),
		streamStart:   h.mustField(StreamStartBytes),
		innerKey:      h.mustField(InnerRandomStreamKey),
	}
	var err error
	if km.transformRounds, err = readUintField(TransformRounds.String(), h.mustField(TransformRounds)); err != nil {
		return nil, err
	}
	if err := verifyFieldSize(TransformSeed.String(), km.transformSeed, 16, 24, 32); err != nil {
		return nil, err
	}
	if err := verifyFieldSize(EncryptionIV.String(), km.iv, kdbxcrypt.BlockSize); err != nil {
		return nil, err
	}
	if err := verifyFieldSize(StreamStartBytes.String(), km.streamStart, streamStartSize); err != nil {
		return nil, err
	}
	if v, ok := h.Field(CipherID); ok {
		id, err := uuids.FromBytes(v)
		if err != nil {
			return nil, &FieldSizeError{Name: CipherID.String(), Size: len(v), Want: []int{len(id)}}
		}
		if km.cipher, err = kdbxcrypt.CipherByID(id); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedVersion, err)
		}
	}
	if v, ok := h.Field(CompressionFlags); ok {
		flags, err := readUintField(CompressionFlags.String(), v)
		if err != nil {
			return nil, err
		}
		switch flags {
		case 0:
			km.compressed = false
		case 1:
			km.compressed = true
		default:
			return nil, fmt.Errorf("%w: compression algorithm %d", ErrUnsupportedVersion, flags)
		}
	}
	if v, ok := h.Field(InnerRandomStreamID); ok {
		id, err := readUintField(InnerRandomStreamID.String(), v)
		if err != nil {
			return nil, err
		}
		switch km.innerID = innerstream.ID(id); km.innerID {
		case innerstream.None, innerstream.Salsa20, innerstream.ChaCha20:
		default:
			return nil, fmt.Errorf("%w: inner stream %v", ErrUnsupportedVersion, km.innerID)
		}
	}
	return km, nil
}

func (h *Header) mustField(id FieldID) []byte {
	v, _ := h.Field(id)
	return v
}

const streamStartSize = 32
