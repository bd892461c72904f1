package jnplugin

import (
	"bufio"
	"encoding/json"
	"io"
)

// maxLineSize raises bufio.Scanner's default 64 KiB token ceiling; a
// single NDJSON record (e.g. an LDAP entry with embedded certificates)
// can legitimately exceed it.
const maxLineSize = 8 * 1024 * 1024

// LineReader reads one JSON value per line, skipping blank lines, never
// wrapping them in an outer array.
type LineReader struct {
	sc *bufio.Scanner
}

func NewLineReader(r io.Reader) *LineReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &LineReader{sc: sc}
}

// Next returns the next non-blank line's raw JSON bytes, or ok=false at
// EOF.
func (lr *LineReader) Next() (json.RawMessage, bool, error) {
	for lr.sc.Scan() {
		line := lr.sc.Bytes()
		if len(bytesTrimSpace(line)) == 0 {
			continue
		}
		out := make([]byte, len(line))
		copy(out, line)
		return out, true, nil
	}
	if err := lr.sc.Err(); err != nil {
		return nil, false, err
	}
	return nil, false, nil
}

// Decode reads the next line and unmarshals it into v.
func (lr *LineReader) Decode(v interface{}) (bool, error) {
	raw, ok, err := lr.Next()
	if err != nil || !ok {
		return ok, err
	}
	return true, json.Unmarshal(raw, v)
}

// LineWriter writes one JSON value per line.
type LineWriter struct {
	w *bufio.Writer
}

func NewLineWriter(w io.Writer) *LineWriter {
	return &LineWriter{w: bufio.NewWriter(w)}
}

func (lw *LineWriter) WriteObject(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := lw.w.Write(b); err != nil {
		return err
	}
	return lw.w.WriteByte('\n')
}

func (lw *LineWriter) Flush() error { return lw.w.Flush() }

func bytesTrimSpace(b []byte) []byte {
	i, j := 0, len(b)
	for i < j && isSpace(b[i]) {
		i++
	}
	for j > i && isSpace(b[j-1]) {
		j--
	}
	return b[i:j]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}
