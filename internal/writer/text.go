package writer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"

	"FlowChains/internal/core/model"
)

// DefaultPayloadPreview is how many payload bytes the text writer shows.
const DefaultPayloadPreview = 20

// TextWriter prints one summary line per flow.
type TextWriter struct {
	mu      sync.Mutex
	out     *bufio.Writer
	closer  io.Closer
	preview int
}

// NewTextWriter writes to out. preview <= 0 uses DefaultPayloadPreview.
func NewTextWriter(out io.Writer, preview int) *TextWriter {
	if preview <= 0 {
		preview = DefaultPayloadPreview
	}
	w := &TextWriter{out: bufio.NewWriter(out), preview: preview}
	if c, ok := out.(io.Closer); ok && out != os.Stdout && out != os.Stderr {
		w.closer = c
	}
	return w
}

// Write prints f.
func (w *TextWriter) Write(_ context.Context, f *model.FlowRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := fmt.Fprintln(w.out, Summary(f, w.preview))
	return err
}

// Close flushes the output and closes it unless it is stdout or stderr.
func (w *TextWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.out.Flush(); err != nil {
		return err
	}
	if w.closer != nil {
		return w.closer.Close()
	}
	return nil
}

// Summary renders the one line description of a flow.
func Summary(f *model.FlowRecord, preview int) string {
	payload := f.Payload
	if len(payload) > preview {
		payload = payload[:preview]
	}
	line := fmt.Sprintf("Flow %s (%s) -- Packets:%d Bytes:%d Payload: %s",
		f.Key(), f.Direction, len(f.Packets), f.Bytes(), strconv.Quote(string(payload)))
	if f.State != model.StatePartial {
		line += " State:" + f.State.String()
	}
	if len(f.Tags) > 0 {
		line += fmt.Sprintf(" Tags:%v", f.Tags)
	}
	for _, msg := range f.DNS {
		for _, q := range msg.Questions {
			kind := "query"
			if msg.Response {
				kind = "response"
			}
			line += fmt.Sprintf(" DNS:%s %s %s", kind, q.Type, q.Name)
		}
	}
	if h := f.HTTP; h != nil {
		if h.Type == model.HTTPRequest {
			line += fmt.Sprintf(" HTTP:%s %s%s", h.Method, h.Host, h.URI)
		} else {
			line += " HTTP:" + h.Status
		}
	}
	if t := f.TLS; t != nil {
		line += fmt.Sprintf(" TLS:%s records:%d", t.HelloVersion, t.Handshakes+t.ChangeCipherSpec+t.Alerts+t.AppData)
		if t.ServerName != "" {
			line += " sni:" + t.ServerName
		}
	}
	return line
}
