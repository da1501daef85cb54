// Package interchange reads and writes the tabular files handed to the
// animation collaborator: the resampled path as "x,y,z" rows and the
// mapped frame table as "frame,x,y,z" rows. Files carry no header and rows
// are separated by a single newline.
package interchange

import (
	"bufio"
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"gcode-anim/pkg/axismap"
	"gcode-anim/pkg/errors"
)

// rowWriter joins float rows with commas and separates rows with a newline.
// No newline follows the last row.
type rowWriter struct {
	w    *bufio.Writer
	buf  []byte
	rows int
}

func newRowWriter(w io.Writer) *rowWriter {
	return &rowWriter{w: bufio.NewWriter(w)}
}

func (rw *rowWriter) row(prefix []byte, vals ...float64) error {
	rw.buf = rw.buf[:0]
	if rw.rows > 0 {
		rw.buf = append(rw.buf, '\n')
	}
	rw.buf = append(rw.buf, prefix...)
	for i, v := range vals {
		if i > 0 || len(prefix) > 0 {
			rw.buf = append(rw.buf, ',')
		}
		rw.buf = strconv.AppendFloat(rw.buf, v, 'g', -1, 64)
	}
	rw.rows++
	_, err := rw.w.Write(rw.buf)
	return err
}

func (rw *rowWriter) flush() error {
	return rw.w.Flush()
}

// WritePath writes one "x,y,z" row per point.
func WritePath(w io.Writer, path []r3.Vec) error {
	rw := newRowWriter(w)
	for _, p := range path {
		if err := rw.row(nil, p.X, p.Y, p.Z); err != nil {
			return err
		}
	}
	return rw.flush()
}

// WriteFrames writes one "frame,x,y,z" row per record.
func WriteFrames(w io.Writer, records []axismap.Record) error {
	rw := newRowWriter(w)
	for _, r := range records {
		if err := rw.row(strconv.AppendInt(nil, int64(r.Frame), 10), r.X, r.Y, r.Z); err != nil {
			return err
		}
	}
	return rw.flush()
}

// readRows calls fn for every non-empty row of r. Blank lines are skipped.
func readRows(r io.Reader, fields int, fn func(row int, rec []string) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var perr *csv.ParseError
			if stderrors.As(err, &perr) {
				return errors.FormatError(perr.StartLine, perr.Err.Error())
			}
			return err
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		row, _ := cr.FieldPos(0)
		if len(rec) != fields {
			return errors.FormatError(row, fmt.Sprintf("expected %d fields, got %d", fields, len(rec)))
		}
		if err := fn(row, rec); err != nil {
			return err
		}
	}
}

func parseFloats(row int, fields []string, out []float64) error {
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return errors.FormatError(row, fmt.Sprintf("field %d: invalid number %q", i+1, f))
		}
		out[i] = v
	}
	return nil
}

// ReadPath parses "x,y,z" rows. On a malformed row it returns the points
// read so far together with a format error naming the row.
func ReadPath(r io.Reader) ([]r3.Vec, error) {
	var path []r3.Vec
	var v [3]float64
	err := readRows(r, 3, func(row int, rec []string) error {
		if err := parseFloats(row, rec, v[:]); err != nil {
			return err
		}
		path = append(path, r3.Vec{X: v[0], Y: v[1], Z: v[2]})
		return nil
	})
	return path, err
}

// ReadFrames parses "frame,x,y,z" rows.
func ReadFrames(r io.Reader) ([]axismap.Record, error) {
	var records []axismap.Record
	var v [3]float64
	err := readRows(r, 4, func(row int, rec []string) error {
		frame, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil {
			return errors.FormatError(row, fmt.Sprintf("field 1: invalid frame %q", rec[0]))
		}
		if err := parseFloats(row, rec[1:], v[:]); err != nil {
			return err
		}
		records = append(records, axismap.Record{Frame: frame, X: v[0], Y: v[1], Z: v[2]})
		return nil
	})
	return records, err
}

// WritePathFile writes path to the named file, replacing it.
func WritePathFile(name string, path []r3.Vec) error {
	return writeFile(name, func(w io.Writer) error { return WritePath(w, path) })
}

// WriteFramesFile writes records to the named file, replacing it.
func WriteFramesFile(name string, records []axismap.Record) error {
	return writeFile(name, func(w io.Writer) error { return WriteFrames(w, records) })
}

func writeFile(name string, fn func(io.Writer) error) error {
	f, err := os.Create(name)
	if err != nil {
		return errors.IOError(name, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return errors.IOError(name, err)
	}
	if err := f.Close(); err != nil {
		return errors.IOError(name, err)
	}
	return nil
}

// ReadPathFile reads a path interchange file.
func ReadPathFile(name string) ([]r3.Vec, error) {
	f, err := os.Open(name)
	if err != nil {
		return nil, errors.IOError(name, err)
	}
	defer f.Close()

	path, err := ReadPath(f)
	if err != nil {
		if herr, ok := err.(*errors.HostError); ok && herr.Code == errors.ErrFormat {
			herr.SetFile(name)
			return path, herr
		}
		return path, errors.IOError(name, err)
	}
	return path, nil
}
