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
	"errors"
	"testing"
)

func TestReadHeader(t *testing.T) {
	buf := new(bytes.Buffer)
	writeHeader(buf, Signature2, 0x00030001, []HeaderField{
		{Comment, []byte("first")},
		{MasterSeed, []byte{1, 2, 3}},
		{200, []byte("unknown")},
		{Comment, []byte("second")},
		{EndOfHeader, []byte("\r\n\r\n")},
	})
	size := buf.Len()
	buf.WriteString("body")

	h, err := ReadHeader(buf.Bytes())
	if err != nil {
		t.Fatal("ReadHeader:", err)
	}
	if h.Size() != size {
		t.Errorf("Size() = %d; want %d", h.Size(), size)
	}
	if h.MajorVersion() != 3 || h.MinorVersion() != 1 {
		t.Errorf("version = %d.%d; want 3.1", h.MajorVersion(), h.MinorVersion())
	}
	if len(h.Fields) != 5 {
		t.Errorf("len(Fields) = %d; want 5", len(h.Fields))
	}
	if v, ok := h.Field(Comment); !ok || string(v) != "second" {
		t.Errorf("Field(Comment) = %q, %t; want \"second\", true", v, ok)
	}
	if v, ok := h.Field(200); !ok || string(v) != "unknown" {
		t.Errorf("Field(200) = %q, %t; want \"unknown\", true", v, ok)
	}
	if _, ok := h.Field(TransformSeed); ok {
		t.Error("Field(TransformSeed) found; want missing")
	}

	// Field values must not alias the input.
	data := buf.Bytes()
	for i := range data {
		data[i] = 0
	}
	if v, _ := h.Field(MasterSeed); !bytes.Equal(v, []byte{1, 2, 3}) {
		t.Errorf("Field(MasterSeed) after clearing input = %v; want [1 2 3]", v)
	}
}

func TestReadHeaderErrors(t *testing.T) {
	eoh := []HeaderField{{EndOfHeader, nil}}
	header := func(sig2, version uint32, fields []HeaderField) []byte {
		buf := new(bytes.Buffer)
		writeHeader(buf, sig2, version, fields)
		return buf.Bytes()
	}
	badSig := header(Signature2, 0x00030001, eoh)
	badSig[0] ^= 0xff
	tests := []struct {
		name   string
		data   []byte
		target error
	}{
		{"Empty", nil, ErrTruncated},
		{"ShortSignature", []byte{0x03, 0xd9, 0xa2}, ErrTruncated},
		{"NoFields", header(Signature2, 0x00030001, nil), ErrTruncated},
		{"BadSignature1", badSig, ErrFormat},
		{"BadSignature2", header(0x12345678, 0x00030001, eoh), ErrFormat},
		{"KeePass1", header(Signature2KeePass1, 0x00030001, eoh), ErrUnsupportedVersion},
		{"Version4", header(Signature2, 0x00040000, eoh), ErrUnsupportedVersion},
		{"FieldPastEnd", header(Signature2, 0x00030001, eoh)[:12+2], ErrTruncated},
	}
	for _, test := range tests {
		h, err := ReadHeader(test.data)
		if !errors.Is(err, test.target) {
			t.Errorf("%s: ReadHeader error = %v; want %v", test.name, err, test.target)
		}
		if h != nil {
			t.Errorf("%s: ReadHeader returned a header", test.name)
		}
	}

	// A length that runs past the buffer.
	b := header(Signature2, 0x00030001, []HeaderField{{MasterSeed, make([]byte, 32)}, {EndOfHeader, nil}})
	if _, err := ReadHeader(b[:12+3+10]); !errors.Is(err, ErrTruncated) {
		t.Errorf("ReadHeader(short field) error = %v; want %v", err, ErrTruncated)
	}
}

func TestReadHeaderPreRelease(t *testing.T) {
	buf := new(bytes.Buffer)
	writeHeader(buf, Signature2PreRelease, 0x00020000, []HeaderField{{EndOfHeader, nil}})
	h, err := ReadHeader(buf.Bytes())
	if err != nil {
		t.Fatal("ReadHeader:", err)
	}
	if h.Signature2 != Signature2PreRelease {
		t.Errorf("Signature2 = %#08x; want %#08x", h.Signature2, Signature2PreRelease)
	}
}

func TestReadUintField(t *testing.T) {
	tests := []struct {
		b    []byte
		want uint64
		err  bool
	}{
		{[]byte{0x60, 0xea, 0, 0}, 60000, false},
		{[]byte{1, 0, 0, 0, 0, 0, 0, 1}, 1<<56 + 1, false},
		{[]byte{1, 2}, 0, true},
		{nil, 0, true},
	}
	for _, test := range tests {
		got, err := readUintField("test", test.b)
		if test.err {
			var ferr *FieldSizeError
			if !errors.As(err, &ferr) || !errors.Is(err, ErrFormat) {
				t.Errorf("readUintField(%v) error = %v; want FieldSizeError", test.b, err)
			}
			continue
		}
		if err != nil || got != test.want {
			t.Errorf("readUintField(%v) = %d, %v; want %d, <nil>", test.b, got, err, test.want)
		}
	}
}

func TestFieldIDString(t *testing.T) {
	tests := []struct {
		id   FieldID
		want string
	}{
		{EndOfHeader, "EndOfHeader"},
		{InnerRandomStreamKey, "InnerRandomStreamKey"},
		{PublicCustomData, "PublicCustomData"},
		{42, "FieldID(42)"},
	}
	for _, test := range tests {
		if got := test.id.String(); got != test.want {
			t.Errorf("FieldID(%d).String() = %q; want %q", uint8(test.id), got, test.want)
		}
	}
}
