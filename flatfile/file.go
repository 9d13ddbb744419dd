package flatfile

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Compressed reports whether path selects zstd compression.
func Compressed(path string) bool {
	return strings.HasSuffix(path, ".zst")
}

// Create opens path for writing, truncating it. Paths ending in .zst are
// zstd-compressed transparently.
func Create(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create flat file: %w", err)
	}
	if !Compressed(path) {
		return f, nil
	}

	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create zstd writer: %w", err)
	}
	return &zstdWriteCloser{enc: enc, f: f}, nil
}

// Open opens path for reading, decompressing .zst files.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open flat file: %w", err)
	}
	if !Compressed(path) {
		return f, nil
	}

	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create zstd reader: %w", err)
	}
	return &zstdReadCloser{dec: dec, f: f}, nil
}

type zstdWriteCloser struct {
	enc *zstd.Encoder
	f   *os.File
}

func (z *zstdWriteCloser) Write(p []byte) (int, error) {
	return z.enc.Write(p)
}

func (z *zstdWriteCloser) Close() error {
	if err := z.enc.Close(); err != nil {
		z.f.Close()
		return fmt.Errorf("failed to finish zstd stream: %w", err)
	}
	return z.f.Close()
}

type zstdReadCloser struct {
	dec *zstd.Decoder
	f   *os.File
}

func (z *zstdReadCloser) Read(p []byte) (int, error) {
	return z.dec.Read(p)
}

func (z *zstdReadCloser) Close() error {
	z.dec.Close()
	return z.f.Close()
}
