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
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/text/language"
	textsearch "golang.org/x/text/search"

	"zombiezen.com/go/kdbxdump/pkg/kdbx"
)

// searchFields are the entry fields a query is matched against.
// Protected fields are never searched.
var searchFields = []string{"Title", "UserName", "URL"}

// search returns the entries where every query word appears in at least
// one of searchFields.
func search(entries []*kdbx.Entry, q *parsedQuery) []*kdbx.Entry {
	var results []*kdbx.Entry
	for _, e := range entries {
		if q.matchesEntry(e) {
			results = append(results, e)
		}
	}
	return results
}

// writeResults lists entries one per line as path, then user name.
func writeResults(w io.Writer, results []*kdbx.Entry) error {
	bw := bufio.NewWriter(w)
	for _, e := range results {
		fmt.Fprintf(bw, "%s\t%s\n", e.Path(), e.Get("UserName"))
	}
	return bw.Flush()
}

type parsedQuery struct {
	pats []*textsearch.Pattern
}

// parseQuery splits query into words, each matched loosely (ignoring case
// and diacritics).  It returns nil for a blank query.
func parseQuery(query string) *parsedQuery {
	words := strings.FieldsFunc(query, unicode.IsSpace)
	if len(words) == 0 {
		return nil
	}
	m := textsearch.New(language.Und, textsearch.Loose)
	pq := &parsedQuery{pats: make([]*textsearch.Pattern, len(words))}
	for i := range words {
		pq.pats[i] = m.CompileString(words[i])
	}
	return pq
}

func (pq *parsedQuery) matchesEntry(e *kdbx.Entry) bool {
	if pq == nil || len(pq.pats) == 0 {
		return false
	}
	for _, pat := range pq.pats {
		found := false
		for _, f := range e.Fields {
			if f.Protected || !isSearchField(f.Key) {
				continue
			}
			if start, _ := pat.IndexString(f.Value); start != -1 {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func isSearchField(key string) bool {
	for _, k := range searchFields {
		if k == key {
			return true
		}
	}
	return false
}
