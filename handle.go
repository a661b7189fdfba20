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
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"zombiezen.com/go/kdbxdump/pkg/kdbx"
	"zombiezen.com/go/kdbxdump/third_party/responsestats"
)

// Form field names
const (
	dbFormName       = "db"
	keyFileFormName  = "keyfile"
	passwordFormName = "password"
	queryFormName    = "q"
	indentFormName   = "indent"
)

// formOverhead is the room allowed for form fields besides the database.
const formOverhead = 1 << 20

type appHandler func(http.ResponseWriter, *http.Request) error

func (f appHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	entry := log.WithFields(log.Fields{"method": r.Method, "path": r.URL.Path})
	stats := responsestats.New(w)
	w.Header().Set("Cache-Control", "private, no-store")
	defer func() {
		entry.WithFields(log.Fields{
			"status":  stats.StatusCode(),
			"size":    stats.Size(),
			"elapsed": time.Since(start).Round(time.Millisecond),
		}).Info("request")
	}()

	r.Body = http.MaxBytesReader(w, r.Body, *maxDBSize+formOverhead)
	if err := parseMultipartForm(r); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			err = tooLargeError{name: "request", limit: mbe.Limit}
		} else {
			err = userError{msg: "could not parse form", err: err}
		}
		entry.WithError(err).Warn("client error")
		http.Error(stats, userErrorMessage(err), errorStatusCode(err))
		return
	}
	if r.MultipartForm != nil {
		defer func() {
			if err := r.MultipartForm.RemoveAll(); err != nil {
				entry.WithError(err).Warn("form cleanup")
			}
		}()
	}
	err := f(stats, r)
	if err == nil {
		return
	}
	msg := userErrorMessage(err)
	if msg == "" {
		entry.WithError(err).Error("server error")
		msg = "internal server error; check logs"
	} else {
		entry.WithError(err).Warn("client error")
	}
	if stats.StatusCode() == 0 {
		http.Error(stats, msg, errorStatusCode(err))
	}
}

// parseMultipartForm parses the request form.  Uploads beyond
// formOverhead bytes are spooled to temporary files.
func parseMultipartForm(r *http.Request) error {
	err := r.ParseMultipartForm(formOverhead)
	if err == http.ErrNotMultipart {
		return r.ParseForm()
	}
	return err
}

// readUpload returns the uploaded database file.
func readUpload(r *http.Request) ([]byte, error) {
	f, _, err := r.FormFile(dbFormName)
	if err == http.ErrMissingFile || err == http.ErrNotMultipart {
		return nil, userError{msg: "missing database upload", err: err}
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return readLimited(f, "database", *maxDBSize)
}

// openUpload decrypts the uploaded database with the request's credentials.
func openUpload(r *http.Request) (*kdbx.Database, error) {
	data, err := readUpload(r)
	if err != nil {
		return nil, err
	}
	opts := &kdbx.Options{
		Password: r.FormValue(passwordFormName),
		Trace:    logTrace(log.WithField("path", r.URL.Path)),
	}
	if kf, _, err := r.FormFile(keyFileFormName); err == nil {
		defer kf.Close()
		opts.KeyFile = kf
	} else if err != http.ErrMissingFile && err != http.ErrNotMultipart {
		return nil, err
	}
	db, err := kdbx.Open(r.Context(), data, opts)
	if err != nil {
		return nil, decodeError(err)
	}
	return db, nil
}

func handleDecode(w http.ResponseWriter, r *http.Request) error {
	indent := 0
	if s := r.FormValue(indentFormName); s != "" {
		var err error
		indent, err = strconv.Atoi(s)
		if err == nil && indent < 0 {
			err = fmt.Errorf("negative indent %d", indent)
		}
		if err != nil {
			return userError{msg: "indent must be a non-negative integer", err: err}
		}
	}
	db, err := openUpload(r)
	if err != nil {
		return err
	}
	xml, err := db.XML(indent)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/xml; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(xml)))
	_, err = w.Write(xml)
	return err
}

func handleHeader(w http.ResponseWriter, r *http.Request) error {
	data, err := readUpload(r)
	if err != nil {
		return err
	}
	h, err := kdbx.ReadHeader(data)
	if err != nil {
		return decodeError(err)
	}
	buf := new(bytes.Buffer)
	if err := writeMetadata(buf, h); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, err = buf.WriteTo(w)
	return err
}

func handleSearch(w http.ResponseWriter, r *http.Request) error {
	pq := parseQuery(r.FormValue(queryFormName))
	if pq == nil {
		return userError{msg: "missing search query", err: errors.New("empty query")}
	}
	db, err := openUpload(r)
	if err != nil {
		return err
	}
	buf := new(bytes.Buffer)
	if err := writeResults(buf, search(db.Entries(), pq)); err != nil {
		return err
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, err = buf.WriteTo(w)
	return err
}
