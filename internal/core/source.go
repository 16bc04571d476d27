package core

// source.go wraps raw input for the tokenizer: it drops a leading UTF-8 BOM
// and replaces invalid UTF-8 bytes with '?' without buffering the whole file.

import (
	"bufio"
	"bytes"
	"io"
	"unicode/utf8"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

type sourceReader struct {
	r          *bufio.Reader
	bomChecked bool
	// carry holds an incomplete multi-byte sequence from the previous read.
	carry []byte
	n     int64
}

func newSourceReader(r io.Reader) *sourceReader {
	return &sourceReader{
		r:     bufio.NewReader(r),
		carry: make([]byte, 0, utf8.UTFMax),
	}
}

// BytesRead returns how many sanitized bytes have been handed out.
func (s *sourceReader) BytesRead() int64 {
	return s.n
}

func (s *sourceReader) Read(p []byte) (int, error) {
	if !s.bomChecked {
		s.bomChecked = true
		if head, err := s.r.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
			_, _ = s.r.Discard(len(utf8BOM))
		}
	}

	if len(p) < utf8.UTFMax {
		// Too small to hold back a partial rune; pass through unsanitized.
		if len(s.carry) > 0 {
			n := copy(p, s.carry)
			s.carry = append(s.carry[:0], s.carry[n:]...)
			s.n += int64(n)
			return n, nil
		}
		n, err := s.r.Read(p)
		s.n += int64(n)
		return n, err
	}

	off := copy(p, s.carry)
	s.carry = s.carry[:0]

	for {
		n, err := s.r.Read(p[off:])
		off += n

		data := p[:off]
		if err == nil {
			k := incompleteTail(data)
			if k > 0 && k == off && off < len(p) {
				// Only part of one rune so far; read more.
				continue
			}
			if k > 0 && k < off {
				s.carry = append(s.carry, data[off-k:]...)
				data = data[:off-k]
			}
		}
		if len(data) == 0 {
			return 0, err
		}

		w := sanitizeInPlace(data)
		s.n += int64(w)
		return w, err
	}
}

// incompleteTail returns the length of a truncated multi-byte sequence at the
// end of data, or 0 if data ends on a rune boundary.
func incompleteTail(data []byte) int {
	for i := len(data) - 1; i >= 0 && i >= len(data)-utf8.UTFMax; i-- {
		b := data[i]
		if b < utf8.RuneSelf {
			return 0
		}
		if !utf8.RuneStart(b) {
			continue
		}
		if utf8.FullRune(data[i:]) {
			return 0
		}
		return len(data) - i
	}
	return 0
}

// sanitizeInPlace rewrites invalid bytes as '?' and returns the new length.
// The output never grows.
func sanitizeInPlace(data []byte) int {
	if utf8.Valid(data) {
		return len(data)
	}

	w := 0
	for r := 0; r < len(data); {
		ch, size := utf8.DecodeRune(data[r:])
		if ch == utf8.RuneError && size == 1 {
			data[w] = '?'
			w++
			r++
			continue
		}
		w += copy(data[w:], data[r:r+size])
		r += size
	}
	return w
}
