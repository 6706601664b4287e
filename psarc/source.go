package psarc

import (
	"bytes"
	"io"
	"os"
)

// ByteSource provides random access to archive bytes.
//
// Implementations exist for in-memory buffers and local files. Sources are
// read-only; a single source may back concurrent extractions.
type ByteSource interface {
	io.ReaderAt
	Size() int64
}

// BytesSource adapts an in-memory buffer to a ByteSource.
type BytesSource struct {
	*bytes.Reader
}

// NewBytesSource creates a ByteSource over data. The buffer is not copied
// and must not be modified afterwards.
func NewBytesSource(data []byte) *BytesSource {
	return &BytesSource{Reader: bytes.NewReader(data)}
}

// Size returns the buffer length.
func (s *BytesSource) Size() int64 {
	return s.Reader.Size()
}

// FileSource adapts an open file to a ByteSource.
type FileSource struct {
	f    *os.File
	size int64
}

// OpenFile opens path as a ByteSource. The caller owns the returned source
// and must Close it when done.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &FileSource{f: f, size: info.Size()}, nil
}

// ReadAt implements io.ReaderAt.
func (s *FileSource) ReadAt(p []byte, off int64) (int, error) {
	return s.f.ReadAt(p, off)
}

// Size returns the file size recorded at open time.
func (s *FileSource) Size() int64 {
	return s.size
}

// Close closes the underlying file.
func (s *FileSource) Close() error {
	return s.f.Close()
}
