package executor

import (
	"bytes"
	"io"
	"sync"
)

// OutputWriter hands out per-job sinks for command output. Implementations
// must be safe for use from concurrently running jobs.
type OutputWriter interface {
	JobWriter(row string) io.Writer
}

// NopOutput discards all command output.
func NopOutput() OutputWriter {
	return nopOutput{}
}

type nopOutput struct{}

func (nopOutput) JobWriter(string) io.Writer { return io.Discard }

// PrefixedOutput writes command output to a single shared writer, prefixing
// every line with the row it came from so interleaved jobs stay readable.
func PrefixedOutput(w io.Writer) OutputWriter {
	return &prefixedOutput{w: w}
}

type prefixedOutput struct {
	mu sync.Mutex
	w  io.Writer
}

func (p *prefixedOutput) JobWriter(row string) io.Writer {
	return &prefixWriter{out: p, prefix: "[" + row + "] "}
}

// prefixWriter buffers partial lines so that a prefix is emitted exactly
// once per line even when writes arrive in arbitrary chunks.
type prefixWriter struct {
	out    *prefixedOutput
	prefix string
	buf    bytes.Buffer
}

func (w *prefixWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Partial line stays buffered for the next write.
			w.buf.WriteString(line)
			break
		}
		w.out.mu.Lock()
		_, werr := io.WriteString(w.out.w, w.prefix+line)
		w.out.mu.Unlock()
		if werr != nil {
			return len(p), werr
		}
	}
	return len(p), nil
}
