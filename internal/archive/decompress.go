// Package archive decompresses fetched index files.
package archive

import (
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/ralt/debmirror/internal/models"
	"github.com/ralt/debmirror/internal/utils"
	"github.com/ulikunitz/xz"
)

// Compression identifies the compression of an index file
type Compression string

const (
	CompressionNone  Compression = ""
	CompressionBzip2 Compression = "bz2"
	CompressionGzip  Compression = "gz"
	CompressionXZ    Compression = "xz"
	CompressionZstd  Compression = "zst"
)

// DetectCompression derives the compression from a file name's extension
func DetectCompression(name string) Compression {
	switch {
	case strings.HasSuffix(name, ".bz2"):
		return CompressionBzip2
	case strings.HasSuffix(name, ".gz"):
		return CompressionGzip
	case strings.HasSuffix(name, ".xz"):
		return CompressionXZ
	case strings.HasSuffix(name, ".zst"):
		return CompressionZstd
	default:
		return CompressionNone
	}
}

// Extension returns the file extension, including the dot
func (c Compression) Extension() string {
	if c == CompressionNone {
		return ""
	}
	return "." + string(c)
}

// TrimExtension strips the compression extension from name
func (c Compression) TrimExtension(name string) string {
	return strings.TrimSuffix(name, c.Extension())
}

// NewReader wraps r with a decompressor for c. The caller must close the
// returned reader.
func (c Compression) NewReader(r io.Reader) (io.ReadCloser, error) {
	switch c {
	case CompressionNone:
		return io.NopCloser(r), nil
	case CompressionBzip2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	case CompressionGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, err
		}
		return gr, nil
	case CompressionXZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(xr), nil
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	default:
		return nil, fmt.Errorf("unknown compression %q", c)
	}
}

// DecompressFile decompresses src into dst, choosing the decompressor from
// src's extension, and returns the decompressed size.
func DecompressFile(src, dst string) (int64, error) {
	f, err := os.Open(src)
	if err != nil {
		return 0, &models.MirrorError{Type: models.ErrNotFound, Package: src, Err: err}
	}
	defer f.Close()

	r, err := DetectCompression(src).NewReader(f)
	if err != nil {
		return 0, &models.MirrorError{Type: models.ErrDecompress, Package: src, Err: err}
	}
	defer r.Close()

	n, err := utils.WriteFileAtomic(dst, r, 0644)
	if err != nil {
		return n, &models.MirrorError{Type: models.ErrDecompress, Package: src, Err: err}
	}
	return n, nil
}
