package gcode

import (
	"bufio"
	"io"
	"os"
	"strings"

	"gcode-anim/pkg/errors"
)

// maxLineLength bounds a single program line. Slicer comments carrying
// embedded thumbnails can run long.
const maxLineLength = 1024 * 1024

// LineReader yields the lines of a G-code program in order without
// interpreting them.
type LineReader struct {
	scanner *bufio.Scanner
	line    string
	num     int
}

// NewLineReader wraps r.
func NewLineReader(r io.Reader) *LineReader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineLength)
	return &LineReader{scanner: sc}
}

// Next advances to the next line. It returns false at EOF or on error;
// check Err afterwards.
func (lr *LineReader) Next() bool {
	if !lr.scanner.Scan() {
		return false
	}
	lr.num++
	lr.line = strings.TrimSuffix(lr.scanner.Text(), "\r")
	return true
}

// Line returns the current line.
func (lr *LineReader) Line() string {
	return lr.line
}

// LineNumber returns the 1-based number of the current line.
func (lr *LineReader) LineNumber() int {
	return lr.num
}

// Err returns the first read error, if any.
func (lr *LineReader) Err() error {
	return lr.scanner.Err()
}

// ReadLines reads every line from r.
func ReadLines(r io.Reader) ([]string, error) {
	lr := NewLineReader(r)
	var lines []string
	for lr.Next() {
		lines = append(lines, lr.Line())
	}
	if err := lr.Err(); err != nil {
		return lines, err
	}
	return lines, nil
}

// ReadFile reads every line of the program at path.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.IOError(path, err)
	}
	defer f.Close()

	lines, err := ReadLines(f)
	if err != nil {
		return nil, errors.IOError(path, err)
	}
	return lines, nil
}
