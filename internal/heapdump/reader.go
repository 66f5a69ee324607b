package heapdump

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

const (
	maxStringLen = 1 << 20
	maxRangeLen  = 1 << 30
)

// dumpReader reads the uvarint encoded records written by debug.WriteHeapDump
// and tracks its position in the stream.
type dumpReader struct {
	reader    *bufio.Reader
	bytesRead int64
}

func newDumpReader(r io.Reader) *dumpReader {
	return &dumpReader{reader: bufio.NewReaderSize(r, 1<<20)}
}

func (dr *dumpReader) BytesRead() int64 {
	return dr.bytesRead
}

// ReadByte lets binary.ReadUvarint consume the stream while keeping count.
func (dr *dumpReader) ReadByte() (byte, error) {
	b, err := dr.reader.ReadByte()
	if err != nil {
		return 0, err
	}
	dr.bytesRead++
	return b, nil
}

// ReadNBytes reads exactly n bytes and tracks position
func (dr *dumpReader) ReadNBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(dr.reader, buf)
	dr.bytesRead += int64(read)
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func (dr *dumpReader) ReadUvarint() (uint64, error) {
	return binary.ReadUvarint(dr)
}

func (dr *dumpReader) ReadBool() (bool, error) {
	v, err := dr.ReadUvarint()
	return v != 0, err
}

// ReadString reads a length prefixed string
func (dr *dumpReader) ReadString() (string, error) {
	length, err := dr.ReadUvarint()
	if err != nil {
		return "", err
	}
	if length > maxStringLen {
		return "", fmt.Errorf("string too long: %d", length)
	}
	if length == 0 {
		return "", nil
	}

	buf, err := dr.ReadNBytes(int(length))
	if err != nil {
		return "", fmt.Errorf("failed to read string data: %w", err)
	}
	return string(buf), nil
}

// SkipRange skips a length prefixed memory range and returns its length.
func (dr *dumpReader) SkipRange() (uint64, error) {
	length, err := dr.ReadUvarint()
	if err != nil {
		return 0, err
	}
	if length > maxRangeLen {
		return 0, fmt.Errorf("memory range too long: %d", length)
	}

	discarded, err := dr.reader.Discard(int(length))
	dr.bytesRead += int64(discarded)
	if err != nil {
		return 0, fmt.Errorf("failed to skip %d bytes: %w", length, err)
	}
	return length, nil
}

// SkipFields skips (kind, offset) pairs up to the end-of-list kind.
func (dr *dumpReader) SkipFields() error {
	for {
		kind, err := dr.ReadUvarint()
		if err != nil {
			return err
		}
		if kind == fieldKindEol {
			return nil
		}
		if _, err := dr.ReadUvarint(); err != nil {
			return err
		}
	}
}
