package network

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// maxFrameSize bounds a single command or response.
	maxFrameSize = 4 << 20

	// prefixSize is the length of the big-endian size header.
	prefixSize = 4

	// alpnProtocol identifies the command protocol during the TLS handshake.
	alpnProtocol = "credtree/1"
)

var (
	// ErrFrameTooLarge is returned for frames above maxFrameSize.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrNoCertificate is returned when the remote end presented no usable key.
	ErrNoCertificate = errors.New("no ed25519 peer certificate")

	// ErrClosed is returned by operations on a closed client or server.
	ErrClosed = errors.New("connection closed")
)

// writeFrame writes [4 bytes big-endian length][payload].
func writeFrame(w io.Writer, data []byte) error {
	if len(data) > maxFrameSize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(data), maxFrameSize)
	}

	buf := make([]byte, prefixSize+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[prefixSize:], data)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame:\n%w", err)
	}

	return nil
}

// readFrame reads one frame written by writeFrame.
func readFrame(r io.Reader) ([]byte, error) {
	var prefix [prefixSize]byte

	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, fmt.Errorf("read frame length:\n%w", err)
	}

	size := binary.BigEndian.Uint32(prefix[:])
	if size > maxFrameSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, size, maxFrameSize)
	}

	data := make([]byte, size)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, fmt.Errorf("read frame payload:\n%w", err)
	}

	return data, nil
}
