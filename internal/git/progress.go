package git

import (
	"bytes"
	"context"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// TransferProgress is one parsed sideband progress line
type TransferProgress struct {
	Stage   string
	Objects uint64
	Total   uint64
	Bytes   uint64
}

// progressLine matches lines such as
//
//	Receiving objects:  45% (450/1000), 1.20 MiB | 2.00 MiB/s
//	Enumerating objects: 12, done.
var progressLine = regexp.MustCompile(
	`^(?:remote:\s*)?([A-Za-z][A-Za-z ]*?):\s+(?:\d+%\s+\((\d+)/(\d+)\)|(\d+))(?:,\s+([\d.]+)\s+(bytes|KiB|MiB|GiB))?`)

var byteUnits = map[string]float64{
	"bytes": 1,
	"KiB":   1 << 10,
	"MiB":   1 << 20,
	"GiB":   1 << 30,
}

// ParseProgress parses one progress line. Lines that carry no counters (remote
// messages, "Total ..." summaries) are not progress.
func ParseProgress(line string) (TransferProgress, bool) {
	m := progressLine.FindStringSubmatch(strings.TrimSpace(line))
	if m == nil {
		return TransferProgress{}, false
	}
	p := TransferProgress{Stage: m[1]}
	if m[2] != "" {
		p.Objects, _ = strconv.ParseUint(m[2], 10, 64)
		p.Total, _ = strconv.ParseUint(m[3], 10, 64)
	} else {
		p.Objects, _ = strconv.ParseUint(m[4], 10, 64)
	}
	if m[5] != "" {
		if v, err := strconv.ParseFloat(m[5], 64); err == nil {
			p.Bytes = uint64(v * byteUnits[m[6]])
		}
	}
	return p, true
}

// progressWriter receives raw sideband progress from go-git, splits it into lines
// (git redraws with \r) and hands parsed progress to fn. When fn fails, the transfer
// context is cancelled and every later write fails too.
type progressWriter struct {
	fn     func(TransferProgress) error
	cancel context.CancelFunc

	mu      sync.Mutex
	buf     bytes.Buffer
	aborted error
}

func newProgressWriter(fn func(TransferProgress) error, cancel context.CancelFunc) *progressWriter {
	return &progressWriter{fn: fn, cancel: cancel}
}

func (w *progressWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.aborted != nil {
		return 0, w.aborted
	}
	w.buf.Write(p)
	for {
		data := w.buf.Bytes()
		i := bytes.IndexAny(data, "\r\n")
		if i < 0 {
			break
		}
		line := string(data[:i])
		w.buf.Next(i + 1)
		if err := w.emit(line); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Flush emits a trailing partial line
func (w *progressWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.aborted != nil || w.buf.Len() == 0 {
		return
	}
	line := w.buf.String()
	w.buf.Reset()
	_ = w.emit(line)
}

// Aborted returns the error the callback stopped the transfer with, if any
func (w *progressWriter) Aborted() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.aborted
}

// emit must be called with w.mu held
func (w *progressWriter) emit(line string) error {
	if w.fn == nil {
		return nil
	}
	p, ok := ParseProgress(line)
	if !ok {
		return nil
	}
	if err := w.fn(p); err != nil {
		w.aborted = err
		if w.cancel != nil {
			w.cancel()
		}
		return err
	}
	return nil
}
