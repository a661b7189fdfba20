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
	"io"

	"zombiezen.com/go/kdbxdump/pkg/kdbxcrypt"
)

// Options is the set of parameters for opening a database.
// Nil is treated the same as the zero value.
type Options struct {
	// Password is an optional textual password to decrypt the database.
	Password string

	// KeyFile is an optional key file to decrypt the database.
	KeyFile io.Reader

	// MaxDocumentSize limits the size of the decompressed XML document.
	// Zero means DefaultMaxDocumentSize.
	MaxDocumentSize int64

	// Trace receives progress callbacks.  It may be nil.
	Trace *Trace
}

// DefaultMaxDocumentSize is the decompressed size limit used when
// Options.MaxDocumentSize is zero.
const DefaultMaxDocumentSize = 256 << 20

// Trace is a set of hooks called while a database is being opened.
// Any of the functions may be nil.
type Trace struct {
	// StageStart is called when a pipeline stage begins.
	StageStart func(Stage)

	// BlockVerified is called after a block's hash has been checked.
	BlockVerified func(index uint32, size int)
}

func (opts *Options) getPassword() string {
	if opts == nil {
		return ""
	}
	return opts.Password
}

func (opts *Options) getKeyFileHash() ([]byte, error) {
	if opts == nil || opts.KeyFile == nil {
		return nil, nil
	}
	return kdbxcrypt.ReadKeyFile(opts.KeyFile)
}

func (opts *Options) getMaxDocumentSize() int64 {
	if opts == nil || opts.MaxDocumentSize <= 0 {
		return DefaultMaxDocumentSize
	}
	return opts.MaxDocumentSize
}

func (opts *Options) stageStart(s Stage) {
	if opts == nil || opts.Trace == nil || opts.Trace.StageStart == nil {
		return
	}
	opts.Trace.StageStart(s)
}

func (opts *Options) blockVerified(index uint32, size int) {
	if opts == nil || opts.Trace == nil || opts.Trace.BlockVerified == nil {
		return
	}
	opts.Trace.BlockVerified(index, size)
}
