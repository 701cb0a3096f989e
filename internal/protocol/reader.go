package protocol

import (
	"errors"
	"fmt"
	"io"
)

// Reader is the byte source of an unpack pass. It is backed either by an
// in-memory slice or by a stream whose consumed bytes stay buffered so
// lookahead fields can rewind. A Reader is not safe for concurrent use.
type Reader struct {
	src  io.Reader
	buf  []byte
	pos  int
	base int64
	err  error
}

func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

func NewStreamReader(r io.Reader) *Reader {
	return &Reader{src: r}
}

// Read returns exactly n bytes. It returns io.EOF when nothing is left
// and ErrTruncated when fewer than n bytes are available; in both cases
// the cursor does not move. A negative n reads everything that is left.
func (r *Reader) Read(n int) ([]byte, error) {
	if n < 0 {
		return r.readRest()
	}
	if n == 0 {
		return []byte{}, nil
	}
	r.fill(n)
	avail := len(r.buf) - r.pos
	if avail < n {
		if r.err != nil && !isEOF(r.err) {
			return nil, r.err
		}
		if avail == 0 {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: want %d bytes, have %d", ErrTruncated, n, avail)
	}
	out := make([]byte, n)
	copy(out, r.buf[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

func (r *Reader) readRest() ([]byte, error) {
	if r.src != nil && r.err == nil {
		rest, err := io.ReadAll(r.src)
		r.buf = append(r.buf, rest...)
		if err != nil {
			r.err = err
			return nil, err
		}
		r.err = io.EOF
	}
	out := make([]byte, len(r.buf)-r.pos)
	copy(out, r.buf[r.pos:])
	r.pos = len(r.buf)
	return out, nil
}

func (r *Reader) fill(n int) {
	if r.src == nil || r.err != nil {
		return
	}
	need := r.pos + n - len(r.buf)
	if need <= 0 {
		return
	}
	tmp := make([]byte, need)
	got, err := io.ReadFull(r.src, tmp)
	r.buf = append(r.buf, tmp[:got]...)
	if err != nil {
		r.err = err
	}
}

// Rewind moves the cursor back by n bytes already read.
func (r *Reader) Rewind(n int) error {
	if n < 0 || n > r.pos {
		return fmt.Errorf("protocol: rewind %d exceeds %d buffered bytes", n, r.pos)
	}
	r.pos -= n
	return nil
}

// Offset is the absolute cursor position since the reader was created.
func (r *Reader) Offset() int64 { return r.base + int64(r.pos) }

// Since copies the bytes between absolute offset off and the cursor.
func (r *Reader) Since(off int64) ([]byte, error) {
	start := int(off - r.base)
	if start < 0 || start > r.pos {
		return nil, fmt.Errorf("protocol: offset %d outside buffered window", off)
	}
	out := make([]byte, r.pos-start)
	copy(out, r.buf[start:r.pos])
	return out, nil
}

// Remaining reports the unread byte count, -1 for a stream that has not
// reached its end.
func (r *Reader) Remaining() int {
	if r.src != nil && r.err == nil {
		return -1
	}
	return len(r.buf) - r.pos
}

// Release drops consumed bytes. Rewinding past the release point fails.
func (r *Reader) Release() {
	if r.pos == 0 {
		return
	}
	rest := make([]byte, len(r.buf)-r.pos)
	copy(rest, r.buf[r.pos:])
	r.base += int64(r.pos)
	r.buf = rest
	r.pos = 0
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
