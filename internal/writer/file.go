package writer

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"FlowChains/internal/core/model"

	"github.com/pkg/errors"
	"github.com/ugorji/go/codec"
)

// Names of the files written by FileWriter.
const (
	FlowsFile   = "flows.msgpack"
	SummaryFile = "summary.json"
)

// SummaryData holds the totals written next to the flow stream.
type SummaryData struct {
	TotalFlows   int            `json:"total_flows"`
	TotalPackets int            `json:"total_packets"`
	TotalBytes   int            `json:"total_bytes"`
	ByReason     map[string]int `json:"by_reason"`
	ByProtocol   map[string]int `json:"by_protocol"`
	Timestamp    string         `json:"timestamp"`
}

// FileWriter appends each flow as a msgpack encoded Document to a file in
// its directory, and writes a JSON summary on Close.
type FileWriter struct {
	mu      sync.Mutex
	dir     string
	file    *os.File
	buf     *bufio.Writer
	enc     *codec.Encoder
	summary SummaryData
}

var msgpackHandle = &codec.MsgpackHandle{WriteExt: true}

// NewFileWriter creates dir if needed and opens the flow file.
func NewFileWriter(dir string) (*FileWriter, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create output directory")
	}
	path := filepath.Join(dir, FlowsFile)
	f, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create flow file '%s'", path)
	}
	buf := bufio.NewWriter(f)
	return &FileWriter{
		dir:  dir,
		file: f,
		buf:  buf,
		enc:  codec.NewEncoder(buf, msgpackHandle),
		summary: SummaryData{
			ByReason:   make(map[string]int),
			ByProtocol: make(map[string]int),
		},
	}, nil
}

// Write encodes f.
func (w *FileWriter) Write(_ context.Context, f *model.FlowRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(NewDocument(f)); err != nil {
		return errors.Wrap(err, "failed to encode flow to msgpack")
	}
	w.summary.TotalFlows++
	w.summary.TotalPackets += len(f.Packets)
	w.summary.TotalBytes += f.Bytes()
	w.summary.ByReason[f.EndReason.String()]++
	w.summary.ByProtocol[f.Protocol]++
	return nil
}

// Close flushes the flow file and writes the summary.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return errors.Wrap(err, "failed to flush flow file")
	}
	if err := w.file.Close(); err != nil {
		return errors.Wrap(err, "failed to close flow file")
	}

	w.summary.Timestamp = time.Now().UTC().Format(time.RFC3339)
	summaryFile, err := os.Create(filepath.Join(w.dir, SummaryFile))
	if err != nil {
		return errors.Wrap(err, "failed to create summary file")
	}
	defer summaryFile.Close()

	jsonEncoder := json.NewEncoder(summaryFile)
	jsonEncoder.SetIndent("", "  ")
	if err := jsonEncoder.Encode(w.summary); err != nil {
		return errors.Wrap(err, "failed to encode summary to json")
	}
	return nil
}

// ReadFile decodes every document of a flow file written by FileWriter.
func ReadFile(path string) ([]Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open flow file '%s'", path)
	}
	defer f.Close()

	dec := codec.NewDecoder(bufio.NewReader(f), msgpackHandle)
	var docs []Document
	for {
		var d Document
		err := dec.Decode(&d)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return docs, nil
			}
			return docs, errors.Wrap(err, "failed to decode flow")
		}
		docs = append(docs, d)
	}
}
