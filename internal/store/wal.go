package store

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/rupamthxt/facematch/internal/match"
)

const (
	OpPut    = 1
	OpDelete = 2
)

type WAL struct {
	file   *os.File
	writer *bufio.Writer
}

// OpenWal opens (or creates) an append-only gallery log.
func OpenWal(path string) (*WAL, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open wal: %w", err)
	}
	return &WAL{
		file:   f,
		writer: bufio.NewWriter(f),
	}, nil
}

// WriteEntry appends one operation and flushes it.
//
// Layout: Size(4) | Op(1) | ID | Name | ImageRef | DimLen(4) | Dim*float32
// where each string is Len(4) | bytes. All integers little endian.
func (wal *WAL) WriteEntry(op byte, c match.Candidate) error {
	var buf bytes.Buffer
	buf.WriteByte(op)
	writeString(&buf, c.ID)
	writeString(&buf, c.Name)
	writeString(&buf, c.ImageRef)

	binary.Write(&buf, binary.LittleEndian, uint32(len(c.Embedding)))
	var scratch [4]byte
	for _, v := range c.Embedding {
		binary.LittleEndian.PutUint32(scratch[:], math.Float32bits(v))
		buf.Write(scratch[:])
	}

	if err := binary.Write(wal.writer, binary.LittleEndian, uint32(buf.Len())); err != nil {
		return err
	}
	if _, err := wal.writer.Write(buf.Bytes()); err != nil {
		return err
	}
	if err := wal.writer.Flush(); err != nil {
		return err
	}
	return wal.file.Sync()
}

// Close ensures everything is written to disk
func (wal *WAL) Close() error {
	wal.writer.Flush()
	return wal.file.Close()
}

// Truncate drops every entry. Used after the gallery has been snapshotted.
func (wal *WAL) Truncate() error {
	if err := wal.writer.Flush(); err != nil {
		return err
	}
	if err := wal.file.Truncate(0); err != nil {
		return err
	}
	_, err := wal.file.Seek(0, io.SeekEnd)
	return err
}

type WALIterator func(op byte, c match.Candidate)

// Recover replays every complete entry. A torn entry at the tail, left by a
// crash mid-write, is cut off so later appends start on a record boundary.
func (wal *WAL) Recover(fn WALIterator) error {
	if _, err := wal.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	good, torn, err := replay(bufio.NewReader(wal.file), fn)
	if err != nil {
		return err
	}
	if torn {
		return wal.cut(good)
	}

	// Move pointer back to end for appending new writes
	_, err = wal.file.Seek(0, io.SeekEnd)
	return err
}

// ReplayWAL replays the log at path without opening it for writing. A torn
// tail is skipped and left on disk. A missing file replays nothing.
func ReplayWAL(path string, fn WALIterator) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open wal: %w", err)
	}
	defer f.Close()

	_, _, err = replay(bufio.NewReader(f), fn)
	return err
}

// replay decodes entries until EOF. good is the offset just past the last
// complete entry; torn reports a partial entry after it.
func replay(reader io.Reader, fn WALIterator) (good int64, torn bool, err error) {
	for {
		var size uint32
		if err := binary.Read(reader, binary.LittleEndian, &size); err != nil {
			if errors.Is(err, io.EOF) {
				return good, false, nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) {
				return good, true, nil
			}
			return good, false, err
		}

		payload := make([]byte, size)
		if _, err := io.ReadFull(reader, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return good, true, nil
			}
			return good, false, err
		}
		good += 4 + int64(size)

		op, c, err := decodeEntry(payload)
		if err != nil {
			return good, false, fmt.Errorf("corrupt wal entry: %w", err)
		}
		fn(op, c)
	}
}

func (wal *WAL) cut(offset int64) error {
	if err := wal.file.Truncate(offset); err != nil {
		return err
	}
	_, err := wal.file.Seek(0, io.SeekEnd)
	return err
}

func decodeEntry(payload []byte) (byte, match.Candidate, error) {
	r := bytes.NewReader(payload)

	op, err := r.ReadByte()
	if err != nil {
		return 0, match.Candidate{}, err
	}

	var c match.Candidate
	if c.ID, err = readString(r); err != nil {
		return 0, c, err
	}
	if c.Name, err = readString(r); err != nil {
		return 0, c, err
	}
	if c.ImageRef, err = readString(r); err != nil {
		return 0, c, err
	}

	var dim uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return 0, c, err
	}
	if int(dim)*4 > r.Len() {
		return 0, c, fmt.Errorf("embedding length %d exceeds entry", dim)
	}
	if dim > 0 {
		c.Embedding = make(match.Embedding, dim)
		var scratch [4]byte
		for i := range c.Embedding {
			r.Read(scratch[:])
			c.Embedding[i] = math.Float32frombits(binary.LittleEndian.Uint32(scratch[:]))
		}
	}
	return op, c, nil
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint32(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return "", err
	}
	if int(n) > r.Len() {
		return "", fmt.Errorf("string length %d exceeds entry", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}
