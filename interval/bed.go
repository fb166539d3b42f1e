package interval

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/fileio"
	gunsafe "github.com/grailbio/base/unsafe"
	"github.com/klauspost/compress/gzip"
)

// Entry is a single interval [Start0, End) on ChrName.
type Entry struct {
	ChrName string
	Start0  int64
	End     int64
}

// Opts controls how a Scanner interprets its input.
type Opts struct {
	// OneBasedInput interprets the boundaries as one-based [start, end]
	// instead of the usual zero-based [start, end).
	OneBasedInput bool
	// Value requires a numeric fourth column, as in bedGraph.
	Value bool
}

// getTokens splits up to len(tokens) leading tokens off curLine, returning
// how many were found.  Any run of characters <= ' ' is a delimiter.
func getTokens(tokens [][]byte, curLine []byte) int {
	posEnd := 0
	lineLen := len(curLine)
	for tokenIdx := range tokens {
		pos := posEnd
		for ; pos != lineLen; pos++ {
			if curLine[pos] > ' ' {
				break
			}
		}
		if pos == lineLen {
			return tokenIdx
		}
		posEnd = pos
		for ; posEnd != lineLen; posEnd++ {
			if curLine[posEnd] <= ' ' {
				break
			}
		}
		tokens[tokenIdx] = curLine[pos:posEnd]
	}
	return len(tokens)
}

var (
	trackPrefix   = []byte("track")
	browserPrefix = []byte("browser")
)

func isHeader(line []byte) bool {
	return len(line) == 0 || line[0] == '#' || bytes.HasPrefix(line, trackPrefix) || bytes.HasPrefix(line, browserPrefix)
}

// Scanner reads BED records one at a time.  Columns past the third (or the
// fourth, with Opts.Value) are ignored.
//
//	s := interval.NewScanner(r, interval.Opts{})
//	for s.Scan() {
//		e := s.Entry()
//	}
//	if err := s.Err(); err != nil { ... }
type Scanner struct {
	scanner *bufio.Scanner
	opts    Opts
	tokens  [4][]byte
	lineIdx int
	entry   Entry
	value   float64
	err     error

	ctx    context.Context
	in     file.File
	closer io.Closer
}

// NewScanner creates a Scanner reading from r.
func NewScanner(r io.Reader, opts Opts) *Scanner {
	return &Scanner{scanner: bufio.NewScanner(r), opts: opts}
}

// OpenScanner opens path (any path grailbio/base/file supports) and returns
// a Scanner over it, gunzipping ".gz" files.  The caller must Close it.
func OpenScanner(ctx context.Context, path string, opts Opts) (*Scanner, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "interval.OpenScanner", path)
	}
	reader := io.Reader(in.Reader(ctx))
	var closer io.Closer
	switch fileio.DetermineType(path) {
	case fileio.Gzip:
		gz, err := gzip.NewReader(reader)
		if err != nil {
			in.Close(ctx) // nolint: errcheck
			return nil, errors.E(err, "interval.OpenScanner", path)
		}
		reader, closer = gz, gz
	}
	s := NewScanner(reader, opts)
	s.ctx, s.in, s.closer = ctx, in, closer
	return s, nil
}

// Close releases the file opened by OpenScanner.  It is a no-op for
// Scanners created by NewScanner.
func (s *Scanner) Close() error {
	var err error
	if s.closer != nil {
		err = s.closer.Close()
		s.closer = nil
	}
	if s.in != nil {
		if cerr := s.in.Close(s.ctx); cerr != nil && err == nil {
			err = cerr
		}
		s.in = nil
	}
	return err
}

func (s *Scanner) fail(msg string, args ...interface{}) bool {
	s.err = errors.E(errors.Invalid, fmt.Sprintf("interval.Scanner: line %d: ", s.lineIdx)+fmt.Sprintf(msg, args...))
	return false
}

// Scan reads the next record, skipping blank, comment, "track" and
// "browser" lines.  It returns false at EOF or on error.
func (s *Scanner) Scan() bool {
	if s.err != nil {
		return false
	}
	nWant := 3
	if s.opts.Value {
		nWant = 4
	}
	for s.scanner.Scan() {
		s.lineIdx++
		curLine := s.scanner.Bytes()
		nToken := getTokens(s.tokens[:nWant], curLine)
		if nToken == 0 || isHeader(s.tokens[0]) {
			continue
		}
		if nToken != nWant {
			return s.fail("%d token(s), expected %d", nToken, nWant)
		}
		start, err := strconv.ParseInt(gunsafe.BytesToString(s.tokens[1]), 10, 64)
		if err != nil {
			return s.fail("bad start %q", s.tokens[1])
		}
		if s.opts.OneBasedInput {
			start--
		}
		end, err := strconv.ParseInt(gunsafe.BytesToString(s.tokens[2]), 10, 64)
		if err != nil {
			return s.fail("bad end %q", s.tokens[2])
		}
		if start < 0 {
			return s.fail("negative start coordinate %s", s.tokens[1])
		}
		if end < start {
			return s.fail("invalid coordinate pair %s %s", s.tokens[1], s.tokens[2])
		}
		if s.opts.Value {
			if s.value, err = strconv.ParseFloat(gunsafe.BytesToString(s.tokens[3]), 64); err != nil {
				return s.fail("bad value %q", s.tokens[3])
			}
		}
		// Reuse the previous name when unchanged; the token bytes are
		// overwritten by the next line.
		if s.entry.ChrName != gunsafe.BytesToString(s.tokens[0]) {
			s.entry.ChrName = string(s.tokens[0])
		}
		s.entry.Start0, s.entry.End = start, end
		return true
	}
	if err := s.scanner.Err(); err != nil {
		s.err = err
	}
	return false
}

// Entry returns the interval read by the last successful Scan.
func (s *Scanner) Entry() Entry { return s.entry }

// Value returns the fourth column of the last record; Opts.Value must be set.
func (s *Scanner) Value() float64 { return s.value }

// Err returns the first error encountered, if any.
func (s *Scanner) Err() error { return s.err }
