package auditlog

import (
	"bufio"
	"io"

	"github.com/goccy/go-json"
)

// RecordWriter streams records as a single indented JSON array, so the output
// never has to be held in memory as a whole.
type RecordWriter struct {
	w *bufio.Writer
	n int
}

// NewRecordWriter creates a RecordWriter. Close must be called to terminate the array.
func NewRecordWriter(w io.Writer) *RecordWriter {
	return &RecordWriter{w: bufio.NewWriter(w)}
}

// Write appends one record to the array.
func (rw *RecordWriter) Write(rec Record) (err error) {
	bb, err := json.MarshalIndent(rec, "  ", "  ")
	if err != nil {
		return
	}

	sep := ",\n  "
	if rw.n == 0 {
		sep = "[\n  "
	}
	if _, err = rw.w.WriteString(sep); err != nil {
		return
	}
	if _, err = rw.w.Write(bb); err != nil {
		return
	}

	rw.n++
	return
}

// Count is the number of records written so far.
func (rw *RecordWriter) Count() int {
	return rw.n
}

// Close terminates the array and flushes the underlying writer.
func (rw *RecordWriter) Close() (err error) {
	end := "\n]\n"
	if rw.n == 0 {
		end = "[]\n"
	}
	if _, err = rw.w.WriteString(end); err != nil {
		return
	}
	return rw.w.Flush()
}
