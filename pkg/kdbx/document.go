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
	"io"
	"strings"

	"github.com/beevik/etree"
	"zombiezen.com/go/kdbxdump/pkg/uuids"
)

// A Node is a document element whose text can be read and replaced.
type Node interface {
	Text() string
	SetText(text string)
}

// A Tree is the part of a parsed document that protected value
// decryption needs.
type Tree interface {
	// MarkedNodes returns the elements with the attribute attr equal to
	// value (ignoring case), in document order.
	MarkedNodes(attr, value string) []Node

	// WriteTo serializes the document.
	WriteTo(w io.Writer) (int64, error)
}

// xmlTree is a Tree backed by an etree document.
type xmlTree struct {
	doc *etree.Document
}

func parseDocument(b []byte) (*xmlTree, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(b); err != nil {
		return nil, fmt.Errorf("%w: xml: %v", ErrFormat, err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "KeePassFile" {
		return nil, fmt.Errorf("%w: document root is not KeePassFile", ErrFormat)
	}
	return &xmlTree{doc: doc}, nil
}

func (t *xmlTree) MarkedNodes(attr, value string) []Node {
	var nodes []Node
	var walk func(e *etree.Element)
	walk = func(e *etree.Element) {
		if a := e.SelectAttr(attr); a != nil && strings.EqualFold(a.Value, value) {
			nodes = append(nodes, e)
		}
		for _, c := range e.ChildElements() {
			walk(c)
		}
	}
	walk(t.doc.Root())
	return nodes
}

func (t *xmlTree) WriteTo(w io.Writer) (int64, error) {
	return t.doc.WriteTo(w)
}

// An Entry is a single credential record from the document.
type Entry struct {
	UUID uuids.UUID

	// Group is the path of group names from the top-level group down.
	Group []string

	// Fields holds the entry's strings in document order.
	Fields []Field
}

// A Field is one key/value string of an entry.
type Field struct {
	Key       string
	Value     string
	Protected bool
}

// Get returns the value of the field with the given key or the empty string.
func (e *Entry) Get(key string) string {
	for _, f := range e.Fields {
		if f.Key == key {
			return f.Value
		}
	}
	return ""
}

// Title returns the entry's title.
func (e *Entry) Title() string {
	return e.Get("Title")
}

// Path returns the entry's group path and title joined with slashes.
func (e *Entry) Path() string {
	return strings.Join(append(append([]string(nil), e.Group...), e.Title()), "/")
}

// entries collects the current entries of every group in document order.
// History entries are skipped.
func (t *xmlTree) entries() []*Entry {
	root := t.doc.Root().SelectElement("Root")
	if root == nil {
		return nil
	}
	var list []*Entry
	var walk func(g *etree.Element, path []string)
	walk = func(g *etree.Element, path []string) {
		if name := g.SelectElement("Name"); name != nil {
			path = append(path[:len(path):len(path)], name.Text())
		}
		for _, c := range g.ChildElements() {
			switch c.Tag {
			case "Entry":
				list = append(list, parseEntry(c, path))
			case "Group":
				walk(c, path)
			}
		}
	}
	for _, g := range root.SelectElements("Group") {
		walk(g, nil)
	}
	return list
}

func parseEntry(e *etree.Element, path []string) *Entry {
	ent := &Entry{Group: path}
	if u := e.SelectElement("UUID"); u != nil {
		// A malformed UUID leaves the zero value.
		ent.UUID, _ = uuids.ParseBase64(u.Text())
	}
	for _, s := range e.SelectElements("String") {
		f := Field{}
		if k := s.SelectElement("Key"); k != nil {
			f.Key = k.Text()
		}
		if v := s.SelectElement("Value"); v != nil {
			f.Value = v.Text()
			f.Protected = strings.EqualFold(v.SelectAttrValue("Protected", ""), "True")
		}
		ent.Fields = append(ent.Fields, f)
	}
	return ent
}
