// The position to offset conversions in this file follow the gopls "protocol" mapper.
// Based on the following: https://github.com/golang/tools/blob/67d73b2960c82b2c8db0b9d0694c66a789a1db11/gopls/internal/lsp/protocol/mapper.go

// Copyright 2023 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
// License Revision: https://github.com/golang/tools/blob/67d73b2960c82b2c8db0b9d0694c66a789a1db11/LICENSE

// Package textedit converts LSP positions to byte offsets and applies text edits to file content.
package textedit

import (
	"bytes"
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/uber/codenav/src/codenav/entity"
)

// Content is file content indexed by line for UTF-16 position conversions.
type Content struct {
	data      []byte
	lineStart []int // byte offset of the start of each line; the last entry is EOF iff data ends in \n
	nonASCII  bool
}

// New indexes data. The slice is not copied and must not be modified afterwards.
func New(data []byte) *Content {
	c := &Content{data: data}
	c.lineStart = make([]int, 1, bytes.Count(data, []byte("\n"))+1)
	for offset, b := range data {
		if b == '\n' {
			c.lineStart = append(c.lineStart, offset+1)
		}
		if b >= utf8.RuneSelf {
			c.nonASCII = true
		}
	}
	return c
}

// Bytes returns the indexed content.
func (c *Content) Bytes() []byte { return c.data }

// LineCount returns the number of lines, counting a trailing partial line.
func (c *Content) LineCount() int {
	n := len(c.lineStart)
	if n > 1 && c.lineStart[n-1] == len(c.data) {
		return n - 1
	}
	return n
}

// LineOffset returns the byte offset of the start of line, or len(data) past the last line.
func (c *Content) LineOffset(line int) (int, error) {
	if line < 0 {
		return 0, fmt.Errorf("negative line number %d", line)
	}
	if line == len(c.lineStart) {
		return len(c.data), nil
	}
	if line > len(c.lineStart) {
		return 0, fmt.Errorf("line number %d out of range 0-%d", line, len(c.lineStart))
	}
	return c.lineStart[line], nil
}

// Offset converts a UTF-16 position to a byte offset.
func (c *Content) Offset(p entity.Position) (int, error) {
	if p.Line < 0 || p.Character < 0 {
		return 0, fmt.Errorf("invalid position %d:%d", p.Line, p.Character)
	}
	if p.Line > len(c.lineStart) {
		return 0, fmt.Errorf("line number %d out of range 0-%d", p.Line, len(c.lineStart))
	} else if p.Line == len(c.lineStart) {
		return len(c.data), nil
	}

	offset := c.lineStart[p.Line]
	rest := c.data[offset:]

	col8 := 0
	for col16 := 0; col16 < p.Character; col16++ {
		r, sz := utf8.DecodeRune(rest)
		if sz == 0 || r == '\n' {
			// Positions past the end of a line clamp to the line end.
			break
		}
		if sz == 1 && r == utf8.RuneError {
			return 0, fmt.Errorf("buffer contains invalid UTF-8 text")
		}
		rest = rest[sz:]

		if r >= 0x10000 {
			col16++ // surrogate pair
			if col16 == p.Character {
				break
			}
		}
		col8 += sz
	}
	return offset + col8, nil
}

// Position converts a byte offset to a UTF-16 position.
func (c *Content) Position(offset int) (entity.Position, error) {
	if offset < 0 || offset > len(c.data) {
		return entity.Position{}, fmt.Errorf("invalid offset %d (want 0-%d)", offset, len(c.data))
	}

	line := sort.Search(len(c.lineStart), func(i int) bool {
		return offset < c.lineStart[i]
	}) - 1
	start := c.lineStart[line]

	col := offset - start
	if c.nonASCII {
		col = UTF16Len(c.data[start:offset])
	}
	return entity.Position{Line: line, Character: col}, nil
}

// Slice returns the content covered by r.
func (c *Content) Slice(r entity.Range) ([]byte, error) {
	start, err := c.Offset(r.Start)
	if err != nil {
		return nil, err
	}
	end, err := c.Offset(r.End)
	if err != nil {
		return nil, err
	}
	if end < start {
		return nil, fmt.Errorf("range end %d:%d precedes start %d:%d", r.End.Line, r.End.Character, r.Start.Line, r.Start.Character)
	}
	return c.data[start:end], nil
}

// UTF16Len returns the number of codes in the UTF-16 transcoding of s.
func UTF16Len(s []byte) int {
	var n int
	for len(s) > 0 {
		n++
		if s[0] < utf8.RuneSelf {
			s = s[1:]
			continue
		}
		r, size := utf8.DecodeRune(s)
		if r >= 0x10000 {
			n++
		}
		s = s[size:]
	}
	return n
}
