package table

// readers.go wraps upload streams before CSV parsing:
//
//   - bomReader drops a leading UTF-8 BOM written by Excel on Windows
//   - sanitizer replaces invalid UTF-8 bytes with '?' without buffering the file
//   - countingReader records how many bytes were consumed
//
// wrapInput applies them in that order.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// bomReader skips a UTF-8 BOM at the start of the stream.
type bomReader struct {
	r       *bufio.Reader
	checked bool
}

func newBOMReader(r io.Reader) *bomReader {
	return &bomReader{r: bufio.NewReader(r)}
}

func (b *bomReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		head, err := b.r.Peek(len(utf8BOM))
		if err == nil && bytes.Equal(head, utf8BOM) {
			// Discard cannot fail after a successful Peek of the same length.
			_, _ = b.r.Discard(len(utf8BOM))
		}
	}
	return b.r.Read(p)
}

// sanitizer replaces invalid UTF-8 bytes with '?' in place. A multi-byte
// sequence split across reads is held back until the next read completes it.
type sanitizer struct {
	r       io.Reader
	pending []byte
}

func newSanitizer(r io.Reader) *sanitizer {
	return &sanitizer{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (s *sanitizer) Read(p []byte) (int, error) {
	if len(p) < utf8.UTFMax {
		// Too small to guarantee progress with a held-back sequence.
		return s.r.Read(p)
	}

	off := copy(p, s.pending)
	s.pending = s.pending[:0]

	n, err := s.r.Read(p[off:])
	n += off
	if n == 0 {
		return 0, err
	}
	return s.clean(p[:n], err != nil), err
}

// clean rewrites data in place and returns the number of bytes to hand out.
func (s *sanitizer) clean(data []byte, final bool) int {
	w := 0
	for i := 0; i < len(data); {
		c := data[i]
		if c < utf8.RuneSelf {
			data[w] = c
			w++
			i++
			continue
		}
		if !final && !utf8.FullRune(data[i:]) {
			s.pending = append(s.pending, data[i:]...)
			return w
		}
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			data[w] = '?'
			w++
			i++
			continue
		}
		copy(data[w:], data[i:i+size])
		w += size
		i += size
	}
	return w
}

// countingReader counts bytes read through it.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// wrapInput strips the BOM before sanitizing; the count covers the cleaned
// stream.
func wrapInput(r io.Reader) *countingReader {
	return &countingReader{r: newSanitizer(newBOMReader(r))}
}
