package scanner

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Debian packages start with "!<arch>\ndebian"
var debMagic = []byte("!<arch>\ndebian")

// DetectPackageType determines the package type based on magic bytes and file extension
func DetectPackageType(path string) (PackageType, error) {
	basename := filepath.Base(path)

	// Temporary files written by utils.WriteFileAtomic
	if strings.HasPrefix(basename, ".") && strings.Contains(basename, ".part-") {
		return TypePartial, nil
	}

	if filepath.Ext(path) == ".deb" {
		return TypeDeb, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return TypeUnknown, err
	}
	defer f.Close()

	header := make([]byte, len(debMagic))
	n, err := io.ReadFull(f, header)
	if err != nil && n == 0 && err != io.EOF {
		return TypeUnknown, err
	}

	if bytes.Equal(header[:n], debMagic) {
		return TypeDeb, nil
	}

	return TypeUnknown, nil
}
