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

package kdbxcrypt

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/beevik/etree"
)

// maxXMLKeyFileSize bounds how much of a file that looks like an XML key
// file is buffered before parsing.
const maxXMLKeyFileSize = 1 << 20

// ErrKeyFile is returned for a file that declares itself an XML key file
// but cannot be used as one.
var ErrKeyFile = errors.New("kdbxcrypt: malformed XML key file")

// errNotXMLKeyFile means the input is not an XML key file at all, so it
// is hashed like any other file.
var errNotXMLKeyFile = errors.New("kdbxcrypt: not an XML key file")

// ReadKeyFile reads a key file and returns its hash for use in a Key.
//
// A 32-byte file is used as-is, a 64-byte hex file is decoded, and an XML
// key file yields its Data element: base64 in version 1.0, hex with a
// truncated SHA-256 check in version 2.0.  Any other file is hashed with
// SHA-256.
func ReadKeyFile(r io.Reader) ([]byte, error) {
	const maxSize = 64
	data, err := io.ReadAll(&io.LimitedReader{R: r, N: maxSize + 1})
	if err != nil {
		return nil, err
	}
	switch len(data) {
	case 32:
		return data, nil
	case 64:
		h := make([]byte, hex.DecodedLen(len(data)))
		if _, err := hex.Decode(h, data); err == nil {
			return h, nil
		}
	}
	if looksLikeXML(data) {
		rest, err := io.ReadAll(&io.LimitedReader{R: r, N: maxXMLKeyFileSize})
		if err != nil {
			return nil, err
		}
		full := append(data, rest...)
		k, err := parseXMLKeyFile(full)
		if err != errNotXMLKeyFile {
			return k, err
		}
		h := sha256.New()
		h.Write(full)
		if len(rest) == maxXMLKeyFileSize {
			if _, err := io.Copy(h, r); err != nil {
				return nil, err
			}
		}
		return h.Sum(nil), nil
	}
	s := sha256.New()
	s.Write(data)
	if _, err := io.Copy(s, r); err != nil {
		return nil, err
	}
	return s.Sum(nil), nil
}

func looksLikeXML(b []byte) bool {
	b = bytes.TrimLeft(b, "\xef\xbb\xbf \t\r\n")
	return bytes.HasPrefix(b, []byte("<?xml")) || bytes.HasPrefix(b, []byte("<KeyFile"))
}

// parseXMLKeyFile returns errNotXMLKeyFile when b is not a KeyFile
// document.  Any problem after that is an ErrKeyFile.
func parseXMLKeyFile(b []byte) ([]byte, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(b); err != nil {
		return nil, errNotXMLKeyFile
	}
	root := doc.Root()
	if root == nil || root.Tag != "KeyFile" {
		return nil, errNotXMLKeyFile
	}
	version := root.FindElement("Meta/Version")
	if version == nil {
		return nil, fmt.Errorf("%w: missing version", ErrKeyFile)
	}
	data := root.FindElement("Key/Data")
	if data == nil {
		return nil, fmt.Errorf("%w: missing key data", ErrKeyFile)
	}
	v := strings.TrimSpace(version.Text())
	var k []byte
	switch major, _, _ := strings.Cut(v, "."); major {
	case "1":
		var err error
		k, err = base64.StdEncoding.DecodeString(strings.TrimSpace(data.Text()))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyFile, err)
		}
	case "2":
		var err error
		k, err = hex.DecodeString(removeSpace(data.Text()))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyFile, err)
		}
		if err := checkKeyDataHash(k, data.SelectAttrValue("Hash", "")); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unsupported version %q", ErrKeyFile, v)
	}
	if len(k) != sha256.Size {
		return nil, fmt.Errorf("%w: key data is %d bytes, want %d", ErrKeyFile, len(k), sha256.Size)
	}
	return k, nil
}

// checkKeyDataHash compares attr, the hex of the first four bytes of the
// key's SHA-256, against k.  An absent attribute is not checked.
func checkKeyDataHash(k []byte, attr string) error {
	attr = removeSpace(attr)
	if attr == "" {
		return nil
	}
	want, err := hex.DecodeString(attr)
	if err != nil {
		return fmt.Errorf("%w: hash: %v", ErrKeyFile, err)
	}
	sum := sha256.Sum256(k)
	if !bytes.Equal(sum[:4], want) {
		return fmt.Errorf("%w: key data does not match its hash", ErrKeyFile)
	}
	return nil
}

func removeSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
