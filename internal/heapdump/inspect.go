package heapdump

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mabhi256/refwatch/utils"
)

const goDumpHeader = "go1.7 heap dump\n"

var gzipMagic = []byte{0x1f, 0x8b}

var ErrUnknownFormat = errors.New("unknown heap dump format")

// Record tags from runtime/heapdump.go
const (
	tagObject = 1
	tagType   = 3
	tagParams = 6
	tagItab   = 8
)

const fieldKindEol = 0

// Summary describes a heap dump file. Record counts are only filled for Go
// heap dumps; the scan covers the params, itab, type and object records the
// runtime writes first.
type Summary struct {
	Path   string           `json:"path"`
	Format Format           `json:"format"`
	Size   utils.MemorySize `json:"size"`

	GoVersion   string `json:"go_version,omitempty"`
	Arch        string `json:"arch,omitempty"`
	PointerSize uint64 `json:"pointer_size,omitempty"`
	BigEndian   bool   `json:"big_endian,omitempty"`
	NumCPU      uint64 `json:"num_cpu,omitempty"`

	Types       int              `json:"types"`
	Itabs       int              `json:"itabs"`
	Objects     int              `json:"objects"`
	ObjectBytes utils.MemorySize `json:"object_bytes"`

	// Complete is false when the scan hit the end of the file before the
	// object records were done, e.g. a truncated dump.
	Complete bool `json:"complete"`
}

func Inspect(path string) (*Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open heap dump: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat heap dump: %w", err)
	}

	summary := &Summary{
		Path: path,
		Size: utils.MemorySize(info.Size()),
	}

	header := make([]byte, len(goDumpHeader))
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read heap dump header: %w", err)
	}
	header = header[:n]

	switch {
	case string(header) == goDumpHeader:
		summary.Format = FormatGo
	case bytes.HasPrefix(header, gzipMagic):
		// pprof profiles are gzipped protobufs; nothing more to scan here.
		summary.Format = FormatPprof
		summary.Complete = true
		return summary, nil
	default:
		return nil, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}

	if err := scanRecords(newDumpReader(f), summary); err != nil {
		return nil, fmt.Errorf("failed to scan heap dump %s: %w", path, err)
	}
	return summary, nil
}

func scanRecords(dr *dumpReader, summary *Summary) error {
	for {
		tag, err := dr.ReadUvarint()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read record tag at offset %d: %w", dr.BytesRead(), err)
		}

		switch tag {
		case tagParams:
			err = readParams(dr, summary)
		case tagType:
			err = skipType(dr)
			summary.Types++
		case tagItab:
			err = skipItab(dr)
			summary.Itabs++
		case tagObject:
			var size uint64
			size, err = skipObject(dr)
			summary.Objects++
			summary.ObjectBytes += utils.MemorySize(size)
		default:
			// goroutines, roots and memstats come after the objects
			summary.Complete = true
			return nil
		}

		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("record %d at offset %d: %w", tag, dr.BytesRead(), err)
		}
	}
}

func readParams(dr *dumpReader, s *Summary) error {
	var err error
	if s.BigEndian, err = dr.ReadBool(); err != nil {
		return err
	}
	if s.PointerSize, err = dr.ReadUvarint(); err != nil {
		return err
	}
	// arena start and end
	for range 2 {
		if _, err = dr.ReadUvarint(); err != nil {
			return err
		}
	}
	if s.Arch, err = dr.ReadString(); err != nil {
		return err
	}
	if s.GoVersion, err = dr.ReadString(); err != nil {
		return err
	}
	s.NumCPU, err = dr.ReadUvarint()
	return err
}

// type: address, size, name, indirect
func skipType(dr *dumpReader) error {
	for range 2 {
		if _, err := dr.ReadUvarint(); err != nil {
			return err
		}
	}
	if _, err := dr.ReadString(); err != nil {
		return err
	}
	_, err := dr.ReadBool()
	return err
}

// itab: address, type address
func skipItab(dr *dumpReader) error {
	for range 2 {
		if _, err := dr.ReadUvarint(); err != nil {
			return err
		}
	}
	return nil
}

// object: address, contents, pointer fields
func skipObject(dr *dumpReader) (uint64, error) {
	if _, err := dr.ReadUvarint(); err != nil {
		return 0, err
	}
	size, err := dr.SkipRange()
	if err != nil {
		return 0, err
	}
	return size, dr.SkipFields()
}
