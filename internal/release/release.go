// Package release reads repository Release files and checks downloaded
// index files against the checksums they list.
package release

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ralt/debmirror/internal/fetch"
	"github.com/ralt/debmirror/internal/index"
	"github.com/ralt/debmirror/internal/keyring"
	"github.com/ralt/debmirror/internal/models"
	"github.com/ralt/debmirror/internal/utils"
	"github.com/ralt/debmirror/internal/verify"
	"github.com/sirupsen/logrus"
)

// Release file names
const (
	InRelease    = "InRelease"
	Release      = "Release"
	ReleaseGPG   = "Release.gpg"
	checksumMD5  = "MD5Sum"
	checksumSHA1 = "SHA1"
	checksumSHA2 = "SHA256"
)

// FileInfo is one entry of the Release checksum lists
type FileInfo struct {
	Path    string
	Size    int64
	Digests models.ExpectedDigests
}

// File is a parsed Release file
type File struct {
	Origin        string
	Label         string
	Suite         string
	Codename      string
	Date          string
	Architectures []string
	Components    []string

	Files map[string]*FileInfo
}

// Parse reads the first stanza of a Release file
func Parse(data []byte) (*File, error) {
	doc, err := (&index.Parser{Continuations: true}).Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var stanza models.PackageRecord
	for _, rec := range doc {
		if len(rec) > 0 {
			stanza = rec
			break
		}
	}
	if stanza == nil {
		return nil, fmt.Errorf("release file is empty")
	}

	rel := &File{
		Origin:        stanza["Origin"],
		Label:         stanza["Label"],
		Suite:         stanza["Suite"],
		Codename:      stanza["Codename"],
		Date:          stanza["Date"],
		Architectures: strings.Fields(stanza["Architectures"]),
		Components:    strings.Fields(stanza["Components"]),
		Files:         make(map[string]*FileInfo),
	}

	for _, field := range []string{checksumMD5, checksumSHA1, checksumSHA2} {
		if err := rel.addChecksums(field, stanza[field]); err != nil {
			return nil, err
		}
	}

	return rel, nil
}

// addChecksums parses " <hash> <size> <path>" lines of one checksum field
func (r *File) addChecksums(field, value string) error {
	for _, line := range strings.Split(value, "\n") {
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		if len(parts) != 3 {
			return fmt.Errorf("malformed %s entry: %q", field, line)
		}

		size, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return fmt.Errorf("malformed size in %s entry %q: %w", field, line, err)
		}

		info, ok := r.Files[parts[2]]
		if !ok {
			info = &FileInfo{Path: parts[2], Size: size}
			r.Files[parts[2]] = info
		}

		switch field {
		case checksumMD5:
			info.Digests.MD5 = parts[0]
		case checksumSHA1:
			info.Digests.SHA1 = parts[0]
		case checksumSHA2:
			info.Digests.SHA256 = parts[0]
		}
	}
	return nil
}

// VerifyFile checks the local file at path against the Release entry for
// name: the size and every listed digest must match.
func (r *File) VerifyFile(name, path string) error {
	info, ok := r.Files[name]
	if !ok {
		return &models.MirrorError{Type: models.ErrSignature, Package: name, Err: fmt.Errorf("not listed in Release")}
	}

	size, err := utils.FileSize(path)
	if err != nil {
		return &models.MirrorError{Type: models.ErrIOFailure, Package: path, Err: err}
	}
	if size != info.Size {
		return &models.MirrorError{
			Type:    models.ErrSignature,
			Package: name,
			Err:     fmt.Errorf("size mismatch: Release lists %d bytes, got %d", info.Size, size),
		}
	}

	matched, err := verify.CheckFileSum(path, info.Digests, verify.AllDeclared)
	if err != nil {
		return err
	}
	if !matched {
		return &models.MirrorError{Type: models.ErrSignature, Package: name, Err: fmt.Errorf("checksum mismatch")}
	}
	return nil
}

// Fetch downloads the Release file called name from baseURL into dir,
// verifies its signature with v and parses it. name is either InRelease
// (cleartext signed) or Release (with a detached Release.gpg).
func Fetch(ctx context.Context, f fetch.Fetcher, v *keyring.Verifier, baseURL, name, dir string) (*File, error) {
	dest := filepath.Join(dir, name)
	if _, err := f.Fetch(ctx, utils.RemoteURL(baseURL, name), dest); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(dest)
	if err != nil {
		return nil, &models.MirrorError{Type: models.ErrIOFailure, Package: dest, Err: err}
	}

	switch name {
	case InRelease:
		data, err = v.VerifyCleartext(data)
		if err != nil {
			return nil, err
		}
	case Release:
		sigDest := filepath.Join(dir, ReleaseGPG)
		if _, err := f.Fetch(ctx, utils.RemoteURL(baseURL, ReleaseGPG), sigDest); err != nil {
			return nil, err
		}
		sig, err := os.ReadFile(sigDest)
		if err != nil {
			return nil, &models.MirrorError{Type: models.ErrIOFailure, Package: sigDest, Err: err}
		}
		if err := v.VerifyDetached(data, sig); err != nil {
			return nil, err
		}
	default:
		return nil, &models.MirrorError{Type: models.ErrInvalidConfig, Err: fmt.Errorf("unsupported release file %q", name)}
	}

	logrus.Infof("Verified signature of %s", name)
	return Parse(data)
}
