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
	"encoding/hex"
	"fmt"
	"io"

	"zombiezen.com/go/kdbxdump/pkg/kdbx"
)

// writeMetadata writes a human-readable listing of the header: signatures,
// version, and every field's ID, size and raw value in hex.
func writeMetadata(w io.Writer, h *kdbx.Header) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "Signature 1: %#08x\n", h.Signature1)
	fmt.Fprintf(bw, "Signature 2: %#08x\n", h.Signature2)
	fmt.Fprintf(bw, "Version: %d.%d (%#08x)\n", h.MajorVersion(), h.MinorVersion(), h.Version)
	for _, f := range h.Fields {
		fmt.Fprintf(bw, "%-20s id=%-3d size=%-4d %s\n", f.ID, uint8(f.ID), len(f.Value), hex.EncodeToString(f.Value))
	}
	fmt.Fprintf(bw, "Header size: %d\n", h.Size())
	return bw.Flush()
}
