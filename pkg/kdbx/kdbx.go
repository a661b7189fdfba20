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

// Package kdbx reads the KeePass 2.x database format (KDBX 2.x and 3.x).
//
// Opening a database runs a fixed sequence of stages: the header is
// parsed, the key is derived from the password, the first block of the
// body is checked against the header's stream start bytes, the hashed
// blocks are decrypted and verified, the payload is decompressed, and
// finally the protected values in the XML document are decrypted.
// Nothing is returned unless every stage succeeds.
package kdbx // import "zombiezen.com/go/kdbxdump/pkg/kdbx"

import (
	"context"
	"crypto/cipher"
	"crypto/subtle"
	"fmt"
	"io"

	"zombiezen.com/go/kdbxdump/pkg/cipherio"
	"zombiezen.com/go/kdbxdump/pkg/innerstream"
	"zombiezen.com/go/kdbxdump/pkg/kdbxcrypt"
	"zombiezen.com/go/kdbxdump/pkg/padding"
)

// Stage is a step of opening a database.
type Stage int

// Stages, in the order they run.
const (
	StageReadHeader Stage = iota
	StageDeriveKey
	StageValidateStreamStart
	StageDecryptAndVerifyBlocks
	StageDecompress
	StageDecryptProtectedFields
	StageDone
)

var stageNames = [...]string{
	StageReadHeader:             "read header",
	StageDeriveKey:              "derive key",
	StageValidateStreamStart:    "validate stream start",
	StageDecryptAndVerifyBlocks: "decrypt and verify blocks",
	StageDecompress:             "decompress",
	StageDecryptProtectedFields: "decrypt protected fields",
	StageDone:                   "done",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// A Database is a fully decrypted KDBX file.
type Database struct {
	header *Header
	tree   *xmlTree
}

// Header returns the database's outer header.
func (db *Database) Header() *Header {
	return db.header
}

// WriteTo writes the plaintext XML document to w.
func (db *Database) WriteTo(w io.Writer) (int64, error) {
	return db.tree.WriteTo(w)
}

// XML returns the plaintext XML document.  If indent is positive, the
// document is re-indented with that many spaces per level.
func (db *Database) XML(indent int) ([]byte, error) {
	if indent <= 0 {
		return db.tree.doc.WriteToBytes()
	}
	doc := db.tree.doc.Copy()
	doc.Indent(indent)
	return doc.WriteToBytes()
}

// Entries returns the current entries in document order.
func (db *Database) Entries() []*Entry {
	return db.tree.entries()
}

// Open decrypts a database held in memory.  The context is checked
// between stages; a running stage is not interrupted.
//
// Errors other than context errors and key file errors match one of
// ErrTruncated, ErrFormat, ErrWrongPassword, ErrIntegrity or
// ErrUnsupportedVersion.  A key file that cannot be used matches
// kdbxcrypt.ErrKeyFile.  All are wrapped in a *StageError.
func Open(ctx context.Context, data []byte, opts *Options) (*Database, error) {
	d := &decoder{data: data, opts: opts}
	defer d.wipe()
	steps := []struct {
		stage Stage
		run   func() error
	}{
		{StageReadHeader, d.readHeader},
		{StageDeriveKey, d.deriveKey},
		{StageValidateStreamStart, d.validateStreamStart},
		{StageDecryptAndVerifyBlocks, d.decryptBlocks},
		{StageDecompress, d.decompress},
		{StageDecryptProtectedFields, d.decryptProtected},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		opts.stageStart(step.stage)
		if err := step.run(); err != nil {
			return nil, &StageError{Stage: step.stage, Err: err}
		}
	}
	opts.stageStart(StageDone)
	return &Database{header: d.header, tree: d.tree}, nil
}

// decoder holds the state passed from one stage to the next.
type decoder struct {
	data []byte
	opts *Options

	header  *Header
	km      *keyMaterial
	key     [kdbxcrypt.KeySize]byte
	mode    cipher.BlockMode
	payload []byte
	doc     []byte
	tree    *xmlTree
}

func (d *decoder) readHeader() error {
	h, err := ReadHeader(d.data)
	if err != nil {
		return err
	}
	km, err := h.keyMaterial()
	if err != nil {
		return err
	}
	d.header, d.km = h, km
	return nil
}

func (d *decoder) deriveKey() error {
	kf, err := d.opts.getKeyFileHash()
	if err != nil {
		return fmt.Errorf("key file: %w", err)
	}
	k := kdbxcrypt.Key{
		Password:        []byte(d.opts.getPassword()),
		KeyFileHash:     kf,
		MasterSeed:      d.km.masterSeed,
		TransformSeed:   d.km.transformSeed,
		TransformRounds: d.km.transformRounds,
	}
	defer zero(k.Password)
	defer zero(kf)
	d.key, err = k.Derive()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return nil
}

func (d *decoder) validateStreamStart() error {
	body := d.data[d.header.Size():]
	if len(body) < streamStartSize {
		return fmt.Errorf("%w: body is %d bytes, shorter than stream start", ErrTruncated, len(body))
	}
	mode, err := kdbxcrypt.NewDecrypter(d.km.cipher, d.key[:], d.km.iv)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	start := make([]byte, streamStartSize)
	mode.CryptBlocks(start, body[:streamStartSize])
	ok := subtle.ConstantTimeCompare(start, d.km.streamStart) == 1
	zero(start)
	if !ok {
		return ErrWrongPassword
	}
	d.mode = mode
	return nil
}

func (d *decoder) decryptBlocks() error {
	plain, err := cipherio.Decrypt(d.data[d.header.Size()+streamStartSize:], d.mode, padding.PKCS7)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	defer zero(plain)
	d.payload, err = readBlocks(plain, d.opts.blockVerified)
	return err
}

func (d *decoder) decompress() error {
	limit := d.opts.getMaxDocumentSize()
	if !d.km.compressed {
		if int64(len(d.payload)) > limit {
			return fmt.Errorf("%w: document larger than %d bytes", ErrFormat, limit)
		}
		d.doc = d.payload
		return nil
	}
	doc, err := decompress(d.payload, limit)
	if err != nil {
		return err
	}
	zero(d.payload)
	d.doc = doc
	return nil
}

func (d *decoder) decryptProtected() error {
	tree, err := parseDocument(d.doc)
	if err != nil {
		return err
	}
	s, err := innerstream.New(d.km.innerID, d.km.innerKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedVersion, err)
	}
	if err := DecryptProtected(tree, s); err != nil {
		return err
	}
	d.tree = tree
	return nil
}

// wipe clears intermediate plaintext and key material.
func (d *decoder) wipe() {
	zero(d.key[:])
	zero(d.payload)
	zero(d.doc)
}
