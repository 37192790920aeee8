package output

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

// Format extensions of shard artifacts
const (
	ExtMARC      = ".mrc"
	ExtJSONLines = ".jsonl"
)

// Artifact describes a finished shard output file
type Artifact struct {
	Path     string `json:"path"`
	Bytes    int64  `json:"bytes"`
	Records  int    `json:"records"`
	Checksum string `json:"checksum"` // blake3 of the bytes on disk, hex encoded
}

// Options configure where and how artifacts are written
type Options struct {
	Dir         string
	Compression Compression
}

// Factory opens file sinks under a base directory
type Factory struct {
	opts Options
}

// NewFactory creates a Factory
func NewFactory(opts Options) *Factory {
	if opts.Compression == "" {
		opts.Compression = CompressionNone
	}
	return &Factory{opts: opts}
}

// Open creates <dir>/<jobID>/<shardID><ext>[.zst|.lz4]
func (f *Factory) Open(jobID, shardID uuid.UUID, ext string) (*FileSink, error) {
	dir := filepath.Join(f.opts.Dir, jobID.String())
	path := filepath.Join(dir, shardID.String()+ext+f.opts.Compression.Extension())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &SinkError{Path: path, Message: "cannot create directory", Cause: err}
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, &SinkError{Path: path, Message: "cannot create file", Cause: err}
	}

	s := &FileSink{path: path, file: file, hasher: blake3.New()}
	s.counter = &countingWriter{w: io.MultiWriter(file, s.hasher)}
	s.enc, err = f.opts.Compression.compressor(s.counter)
	if err != nil {
		_ = file.Close()
		return nil, &SinkError{Path: path, Message: "cannot start compression", Cause: err}
	}
	return s, nil
}

// FileSink is a scoped write target for one shard. Close must be called exactly once;
// a Close failure means the artifact is incomplete.
type FileSink struct {
	path    string
	file    *os.File
	hasher  *blake3.Hasher
	counter *countingWriter
	enc     io.WriteCloser
	records int
	closed  bool
}

// Write appends one encoded record
func (s *FileSink) Write(record string) error {
	if s.closed {
		return &SinkError{Path: s.path, Message: "write after close"}
	}
	if _, err := io.WriteString(s.enc, record); err != nil {
		return &SinkError{Path: s.path, Message: "write failed", Cause: err}
	}
	s.records++
	return nil
}

// Close flushes the compressor and syncs the file
func (s *FileSink) Close() error {
	if s.closed {
		return &SinkError{Path: s.path, Message: "already closed"}
	}
	s.closed = true

	if err := s.enc.Close(); err != nil {
		_ = s.file.Close()
		return &SinkError{Path: s.path, Message: "flush failed", Cause: err}
	}
	if err := s.file.Sync(); err != nil {
		_ = s.file.Close()
		return &SinkError{Path: s.path, Message: "sync failed", Cause: err}
	}
	if err := s.file.Close(); err != nil {
		return &SinkError{Path: s.path, Message: "close failed", Cause: err}
	}
	return nil
}

// Artifact describes the written file; it is final only after a successful Close
func (s *FileSink) Artifact() Artifact {
	return Artifact{
		Path:     s.path,
		Bytes:    s.counter.n,
		Records:  s.records,
		Checksum: hex.EncodeToString(s.hasher.Sum(nil)),
	}
}

// String implements fmt.Stringer
func (s *FileSink) String() string {
	return fmt.Sprintf("FileSink(%s)", s.path)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
