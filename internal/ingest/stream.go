package ingest

// stream.go wraps uploaded file readers to normalize common artifacts
// before parsing:
//
//   - a UTF-8 BOM (0xEF 0xBB 0xBF) at the start of Windows-exported files
//   - invalid UTF-8 byte sequences, replaced with '?'
//
// Both wrappers stream with constant memory so large uploads never need
// to be fully buffered just to be cleaned.

import (
	"io"
	"unicode/utf8"
)

// CleanReader wraps r so that a leading UTF-8 BOM is dropped and invalid
// UTF-8 sequences are replaced as the data streams through.
func CleanReader(r io.Reader) io.Reader {
	return newUTF8Reader(newBOMReader(r))
}

// bomReader skips the UTF-8 byte order mark if the stream starts with one.
type bomReader struct {
	r       io.Reader
	checked bool
	held    []byte
}

func newBOMReader(r io.Reader) *bomReader {
	return &bomReader{r: r}
}

func (b *bomReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		var head [3]byte
		n, err := io.ReadFull(b.r, head[:])
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		if n == 3 && head[0] == 0xEF && head[1] == 0xBB && head[2] == 0xBF {
			// BOM found, drop it.
		} else if n > 0 {
			b.held = append(b.held, head[:n]...)
		}
		if err != nil && err != io.EOF {
			return 0, err
		}
	}
	if len(b.held) > 0 {
		n := copy(p, b.held)
		b.held = b.held[n:]
		return n, nil
	}
	return b.r.Read(p)
}

// utf8Reader replaces invalid UTF-8 byte sequences with '?'. A multi-byte
// rune split across two reads is held back until its remaining bytes
// arrive.
type utf8Reader struct {
	r       io.Reader
	pending []byte
	eof     bool
}

func newUTF8Reader(r io.Reader) *utf8Reader {
	return &utf8Reader{r: r, pending: make([]byte, 0, utf8.UTFMax)}
}

func (u *utf8Reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	off := copy(p, u.pending)
	u.pending = u.pending[:0]

	n, err := u.r.Read(p[off:])
	n += off
	if err == io.EOF {
		u.eof = true
	}
	if n == 0 {
		return 0, err
	}

	if asciiOnly(p[:n]) {
		return n, err
	}
	return u.sanitize(p[:n]), err
}

// sanitize rewrites data in place, replacing invalid bytes with '?'.
// Returns the number of bytes to hand to the caller; an incomplete
// trailing rune is moved to pending unless the stream has ended.
func (u *utf8Reader) sanitize(data []byte) int {
	write := 0
	for read := 0; read < len(data); {
		r, size := utf8.DecodeRune(data[read:])
		if r == utf8.RuneError && size <= 1 {
			if !u.eof && partialRune(data[read:]) {
				u.pending = append(u.pending, data[read:]...)
				return write
			}
			data[write] = '?'
			write++
			read++
			continue
		}
		copy(data[write:], data[read:read+size])
		write += size
		read += size
	}
	return write
}

func asciiOnly(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 {
			return false
		}
	}
	return true
}

// partialRune reports whether data is a prefix of a valid multi-byte
// rune whose remaining bytes have not arrived yet.
func partialRune(data []byte) bool {
	if len(data) == 0 || len(data) >= utf8.UTFMax {
		return false
	}
	lead := data[0]
	var want int
	switch {
	case lead < 0xC2:
		return false
	case lead < 0xE0:
		want = 2
	case lead < 0xF0:
		want = 3
	case lead < 0xF5:
		want = 4
	default:
		return false
	}
	if len(data) >= want {
		return false
	}
	for _, b := range data[1:] {
		if b&0xC0 != 0x80 {
			return false
		}
	}
	return true
}
