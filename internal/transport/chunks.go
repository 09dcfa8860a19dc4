package transport

import (
	"errors"
	"io"
	"net"
)

// DefaultReadBuffer is the size of a single read on an inbound connection.
const DefaultReadBuffer = 64 * 1024

// ReadChunks calls fn with the bytes of every successful Read until EOF.
// There is no framing: a payload larger than one read arrives as several
// chunks, and two payloads may share one. EOF and a closed connection
// return nil.
func ReadChunks(r io.Reader, bufSize int, fn func(chunk []byte)) error {
	if bufSize <= 0 {
		bufSize = DefaultReadBuffer
	}

	buf := make([]byte, bufSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			fn(chunk)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
	}
}
