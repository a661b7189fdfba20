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

package main

import (
	"fmt"
	"io"
	"os"
)

// storage reads or writes a single file.  Databases are always read whole,
// since every stage of decoding needs the complete input.
type storage struct {
	path string
}

// tooLargeError is returned when an input exceeds its size limit.
type tooLargeError struct {
	name  string
	limit int64
}

func (e tooLargeError) Error() string {
	return fmt.Sprintf("%s is larger than %d bytes", e.name, e.limit)
}

// read returns the file's contents, failing if it holds more than max bytes.
func (st *storage) read(max int64) ([]byte, error) {
	f, err := os.Open(st.path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if info, err := f.Stat(); err == nil && info.Mode().IsRegular() && info.Size() > max {
		return nil, tooLargeError{name: st.path, limit: max}
	}
	return readLimited(f, st.path, max)
}

// readLimited reads all of r, failing if it holds more than max bytes.
func readLimited(r io.Reader, name string, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, tooLargeError{name: name, limit: max}
	}
	return data, nil
}

// writer creates or truncates the file.  Closing the returned writer
// syncs it to disk and closes it.
func (st *storage) writer() (io.WriteCloser, error) {
	f, err := os.OpenFile(st.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return nil, err
	}
	return syncWriter{f}, nil
}

type syncWriter struct {
	f *os.File
}

func (w syncWriter) Write(p []byte) (int, error) {
	return w.f.Write(p)
}

func (w syncWriter) Close() error {
	serr := w.f.Sync()
	cerr := w.f.Close()
	if serr != nil {
		return serr
	}
	return cerr
}
