package capture

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/zstd"
)

// ErrBadHeader is returned for files that do not start with a capture
// header.
var ErrBadHeader = errors.New("capture: missing or invalid header")

// Reader iterates over the records of a capture file.
type Reader struct {
	f      *os.File
	dec    *zstd.Decoder
	sc     *bufio.Scanner
	header Header
	line   int
}

// Open opens a capture file and reads its header.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	sc := bufio.NewScanner(dec)
	// a 64 KiB frame is about 88 KiB of base64
	sc.Buffer(make([]byte, 64*1024), 1024*1024)

	r := &Reader{f: f, dec: dec, sc: sc}
	if err := r.readHeader(); err != nil {
		r.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return r, nil
}

func (r *Reader) readHeader() error {
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return err
		}
		return ErrBadHeader
	}
	r.line++
	if err := json.Unmarshal(r.sc.Bytes(), &r.header); err != nil {
		return fmt.Errorf("%w: %v", ErrBadHeader, err)
	}
	if r.header.Format != FormatVersion {
		return fmt.Errorf("%w: format %q", ErrBadHeader, r.header.Format)
	}
	return nil
}

// Header returns the capture header.
func (r *Reader) Header() Header {
	return r.header
}

// Next returns the next record, or io.EOF after the last one.
func (r *Reader) Next() (Record, error) {
	if !r.sc.Scan() {
		if err := r.sc.Err(); err != nil {
			return Record{}, err
		}
		return Record{}, io.EOF
	}
	r.line++
	var rec Record
	if err := json.Unmarshal(r.sc.Bytes(), &rec); err != nil {
		return Record{}, fmt.Errorf("line %d: %w", r.line, err)
	}
	return rec, nil
}

// Close releases the decoder and file.
func (r *Reader) Close() error {
	r.dec.Close()
	return r.f.Close()
}

// ReadAll loads every record of a capture file.
func ReadAll(path string) (Header, []Record, error) {
	r, err := Open(path)
	if err != nil {
		return Header{}, nil, err
	}
	defer r.Close()

	var recs []Record
	for {
		rec, err := r.Next()
		if errors.Is(err, io.EOF) {
			return r.Header(), recs, nil
		}
		if err != nil {
			return r.Header(), recs, err
		}
		recs = append(recs, rec)
	}
}
