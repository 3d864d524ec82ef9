package phargo

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// readU32 reads a little-endian uint32 from r.
func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// readU16 reads a little-endian uint16 from r.
func readU16(r io.Reader) (uint16, error) {
	var buf [2]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[:]), nil
}

func writeU32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeU16(w io.Writer, v uint16) error {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

// writeBstr writes a length-prefixed byte string, failing if it does not
// fit in a u32.
func writeBstr(w io.Writer, b []byte) error {
	if uint64(len(b)) > 0xFFFFFFFF {
		return errors.New("phargo: byte string too long")
	}
	if err := writeU32(w, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// scanUntil reads from r one byte at a time until the tail of the bytes
// read so far equals delim, returning every byte read including the
// delimiter itself. Returns io.ErrUnexpectedEOF if r ends first.
func scanUntil(r io.Reader, delim []byte) ([]byte, error) {
	var out bytes.Buffer
	buf := make([]byte, 1)
	for {
		if _, err := io.ReadFull(r, buf); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		out.WriteByte(buf[0])
		b := out.Bytes()
		if len(b) >= len(delim) && bytes.Equal(b[len(b)-len(delim):], delim) {
			return b, nil
		}
	}
}
