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
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
)

const (
	sampleDBPath   = "pkg/kdbx/testdata/sample.kdbx"
	samplePassword = "swordfish"
)

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type upload struct {
	db     []byte
	fields map[string]string
}

// newUploadRequest builds a multipart POST request like a browser form would.
func newUploadRequest(t *testing.T, path string, u upload) *http.Request {
	t.Helper()
	body := new(bytes.Buffer)
	mw := multipart.NewWriter(body)
	for k, v := range u.fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if u.db != nil {
		fw, err := mw.CreateFormFile(dbFormName, "db.kdbx")
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write(u.db); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("POST", path, body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func readSampleDB(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(sampleDBPath)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func serveRequest(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	newRouter().ServeHTTP(rec, req)
	return rec
}

func TestHandlers(t *testing.T) {
	db := readSampleDB(t)
	tests := []struct {
		name     string
		path     string
		upload   upload
		code     int
		contains []string
		excludes []string
	}{
		{
			name:     "Decode",
			path:     "/decode",
			upload:   upload{db: db, fields: map[string]string{passwordFormName: samplePassword}},
			code:     http.StatusOK,
			contains: []string{"<KeePassFile>", ">hunter2<", "Pa$$w0rd &amp; more"},
		},
		{
			name:     "DecodeIndented",
			path:     "/decode",
			upload:   upload{db: db, fields: map[string]string{passwordFormName: samplePassword, indentFormName: "2"}},
			code:     http.StatusOK,
			contains: []string{"\n  <Meta>"},
		},
		{
			name:   "DecodeBadIndent",
			path:   "/decode",
			upload: upload{db: db, fields: map[string]string{passwordFormName: samplePassword, indentFormName: "-1"}},
			code:   http.StatusBadRequest,
		},
		{
			name:     "WrongPassword",
			path:     "/decode",
			upload:   upload{db: db, fields: map[string]string{passwordFormName: "wrong"}},
			code:     http.StatusForbidden,
			excludes: []string{"hunter2"},
		},
		{
			name:   "MissingUpload",
			path:   "/decode",
			upload: upload{fields: map[string]string{passwordFormName: samplePassword}},
			code:   http.StatusBadRequest,
		},
		{
			name:     "NotADatabase",
			path:     "/decode",
			upload:   upload{db: []byte("this is not a KeePass database"), fields: map[string]string{passwordFormName: samplePassword}},
			code:     http.StatusUnprocessableEntity,
			contains: []string{"read header"},
		},
		{
			name:     "Header",
			path:     "/header",
			upload:   upload{db: db},
			code:     http.StatusOK,
			contains: []string{"Signature 1: 0x9aa2d903", "Version: 3.1", "CipherID", "Header size: 222"},
		},
		{
			name:     "Search",
			path:     "/search",
			upload:   upload{db: db, fields: map[string]string{passwordFormName: samplePassword, queryFormName: "bank"}},
			code:     http.StatusOK,
			contains: []string{"Sample/Banking/Example Bank\t\n"},
			excludes: []string{"Example Mail", "Pa$$w0rd"},
		},
		{
			name:   "SearchMissingQuery",
			path:   "/search",
			upload: upload{db: db, fields: map[string]string{passwordFormName: samplePassword}},
			code:   http.StatusBadRequest,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			rec := serveRequest(newUploadRequest(t, test.path, test.upload))
			if rec.Code != test.code {
				t.Errorf("status = %d; want %d (body: %q)", rec.Code, test.code, rec.Body.String())
			}
			body := rec.Body.String()
			for _, s := range test.contains {
				if !strings.Contains(body, s) {
					t.Errorf("body = %q; want to contain %q", body, s)
				}
			}
			for _, s := range test.excludes {
				if strings.Contains(body, s) {
					t.Errorf("body = %q; must not contain %q", body, s)
				}
			}
			if got := rec.Header().Get("Cache-Control"); got != "private, no-store" {
				t.Errorf("Cache-Control = %q; want \"private, no-store\"", got)
			}
		})
	}
}

func TestUploadTooLarge(t *testing.T) {
	db := readSampleDB(t)
	defer func(old int64) { *maxDBSize = old }(*maxDBSize)
	*maxDBSize = int64(len(db)) - 1

	req := newUploadRequest(t, "/decode", upload{db: db, fields: map[string]string{passwordFormName: samplePassword}})
	rec := serveRequest(req)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("status = %d; want %d", rec.Code, http.StatusRequestEntityTooLarge)
	}
	if got := rec.Header().Get("Cache-Control"); got != "private, no-store" {
		t.Errorf("Cache-Control = %q; want \"private, no-store\"", got)
	}
}

func TestBadFormHasCacheControl(t *testing.T) {
	req := httptest.NewRequest("POST", "/decode", strings.NewReader("--x\r\nnot a part"))
	req.Header.Set("Content-Type", "multipart/form-data; boundary=x")
	rec := serveRequest(req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want %d", rec.Code, http.StatusBadRequest)
	}
	if got := rec.Header().Get("Cache-Control"); got != "private, no-store" {
		t.Errorf("Cache-Control = %q; want \"private, no-store\"", got)
	}
}

func TestNonMultipartRequest(t *testing.T) {
	req := httptest.NewRequest("POST", "/decode", strings.NewReader("password=swordfish"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := serveRequest(req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d; want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rec := serveRequest(httptest.NewRequest("GET", "/decode", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /decode status = %d; want %d", rec.Code, http.StatusMethodNotAllowed)
	}
}
