package report

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wesleyorama2/perfgate/internal/stats"
	"github.com/wesleyorama2/perfgate/internal/threshold"
)

// Artifact names.
const (
	TextFileName = "performance_report.txt"
	JSONFileName = "performance_report.json"
)

// Writer persists a named artifact in full, replacing any previous content.
type Writer interface {
	Write(name string, data []byte) error
}

// WriteError reports an artifact that could not be persisted.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// FileWriter writes artifacts into Dir, or the working directory when Dir is empty.
type FileWriter struct {
	Dir string
}

// Path returns where name is written.
func (w FileWriter) Path(name string) string {
	if w.Dir == "" {
		return name
	}
	return filepath.Join(w.Dir, name)
}

func (w FileWriter) Write(name string, data []byte) error {
	path := w.Path(name)
	if w.Dir != "" {
		if err := os.MkdirAll(w.Dir, 0o755); err != nil {
			return &WriteError{Path: path, Err: err}
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &WriteError{Path: path, Err: err}
	}
	return nil
}

// MemoryWriter keeps artifacts in memory.
type MemoryWriter struct {
	mu    sync.Mutex
	files map[string][]byte
	order []string
}

func (w *MemoryWriter) Write(name string, data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.files == nil {
		w.files = make(map[string][]byte)
	}
	w.files[name] = append([]byte(nil), data...)
	w.order = append(w.order, name)
	return nil
}

// File returns the last content written under name.
func (w *MemoryWriter) File(name string) ([]byte, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, ok := w.files[name]
	return data, ok
}

// Order returns artifact names in write order.
func (w *MemoryWriter) Order() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	return append([]string(nil), w.order...)
}

// Emitter renders a run, echoes the text report and persists both artifacts.
type Emitter struct {
	Writer Writer

	// Stdout receives the text report; nil discards it
	Stdout io.Writer

	// Now defaults to time.Now
	Now func() time.Time

	// JUnit also writes JUnitFileName after the two reports
	JUnit bool
}

// Emit writes the text report, then the JSON report. The JSON artifact is
// not written if the text artifact could not be.
func (e *Emitter) Emit(rec stats.Record, set threshold.Set, result threshold.Result) (Report, error) {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	generatedAt := now()

	text := RenderText(rec, set, result, generatedAt)
	if e.Stdout != nil {
		fmt.Fprintln(e.Stdout, text)
	}

	doc, err := RenderJSON(rec, set, result, generatedAt)
	if err != nil {
		return Report{}, err
	}

	if err := e.Writer.Write(TextFileName, []byte(text)); err != nil {
		return Report{}, asWriteError(TextFileName, err)
	}
	if err := e.Writer.Write(JSONFileName, doc); err != nil {
		return Report{}, asWriteError(JSONFileName, err)
	}

	if e.JUnit {
		xmlDoc, err := RenderJUnit(rec, result, generatedAt)
		if err != nil {
			return Report{}, err
		}
		if err := e.Writer.Write(JUnitFileName, xmlDoc); err != nil {
			return Report{}, asWriteError(JUnitFileName, err)
		}
	}

	return New(rec, set, result, generatedAt), nil
}

func asWriteError(name string, err error) error {
	var we *WriteError
	if errors.As(err, &we) {
		return err
	}
	return &WriteError{Path: name, Err: err}
}
