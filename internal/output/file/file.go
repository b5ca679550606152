// Package file appends the feedback comment log to a local NDJSON file.
package file

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/goccy/go-json"

	"github.com/crimson-sun/wastenot/internal/model"
	"github.com/crimson-sun/wastenot/internal/output"
)

// Option configures a file Output.
type Option func(*Output)

// WithMaxSize rotates the log once it would grow past bytes. The previous
// log is kept as {path}.1, replacing any older one. 0 (default) disables
// rotation.
func WithMaxSize(bytes int64) Option {
	return func(o *Output) { o.maxSize = bytes }
}

// Output appends one JSON line per feedback record. Each record reaches the
// file in a single unbuffered write, so nothing is lost on a crash.
type Output struct {
	mu        sync.Mutex
	f         *os.File
	path      string
	verbosity output.Verbosity
	maxSize   int64
	size      int64
}

// New opens (or creates) path for appending.
func New(path string, verbosity output.Verbosity, opts ...Option) (*Output, error) {
	o := &Output{path: path, verbosity: verbosity}
	for _, opt := range opts {
		opt(o)
	}
	if err := o.open(); err != nil {
		return nil, err
	}
	return o, nil
}

// Write appends rec as one line, rotating first if the line would push the
// file past the size limit.
func (o *Output) Write(_ context.Context, rec model.FeedbackRecord) error {
	line, err := json.Marshal(output.FormatRecord(rec, o.verbosity))
	if err != nil {
		return fmt.Errorf("file output: marshal: %w", err)
	}
	line = append(line, '\n')

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.maxSize > 0 && o.size > 0 && o.size+int64(len(line)) > o.maxSize {
		if err := o.rotate(); err != nil {
			return fmt.Errorf("file output: rotate: %w", err)
		}
	}
	n, err := o.f.Write(line)
	o.size += int64(n)
	if err != nil {
		return fmt.Errorf("file output: write: %w", err)
	}
	return nil
}

// Close closes the file.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.f.Close()
}

func (o *Output) open() error {
	f, err := os.OpenFile(o.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("file output: open %s: %w", o.path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("file output: stat %s: %w", o.path, err)
	}
	o.f = f
	o.size = info.Size()
	return nil
}

func (o *Output) rotate() error {
	if err := o.f.Close(); err != nil {
		return err
	}
	if err := os.Rename(o.path, o.path+".1"); err != nil {
		return err
	}
	return o.open()
}
