// Package verify computes file digests and checks them against the digests
// declared by a package index.
package verify

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/ralt/debmirror/internal/models"
)

// DigestSet contains the hex digests of one file
type DigestSet struct {
	MD5    string
	SHA1   string
	SHA256 string
}

// Policy selects how individual digest comparisons are combined
type Policy int

const (
	// Lenient accepts a file when any declared digest matches
	Lenient Policy = iota
	// Strict accepts a file only when all three digests are declared and match
	Strict
	// AllDeclared accepts a file when at least one digest is declared and
	// every declared digest matches. Release files often omit MD5.
	AllDeclared
)

// String returns the string representation of Policy
func (p Policy) String() string {
	switch p {
	case Lenient:
		return "lenient"
	case Strict:
		return "strict"
	case AllDeclared:
		return "all-declared"
	default:
		return "unknown"
	}
}

// ComputeDigests calculates MD5, SHA1 and SHA256 of the file at path in a
// single pass. A missing file is reported as ErrNotFound.
func ComputeDigests(path string) (DigestSet, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return DigestSet{}, &models.MirrorError{Type: models.ErrNotFound, Package: path, Err: err}
		}
		return DigestSet{}, &models.MirrorError{Type: models.ErrIOFailure, Package: path, Err: err}
	}
	defer f.Close()

	digests, err := ComputeDigestsReader(f)
	if err != nil {
		return DigestSet{}, &models.MirrorError{Type: models.ErrIOFailure, Package: path, Err: err}
	}
	return digests, nil
}

// ComputeDigestsReader streams r through all three hashes at once
func ComputeDigestsReader(r io.Reader) (DigestSet, error) {
	md5Hash := md5.New()
	sha1Hash := sha1.New()
	sha256Hash := sha256.New()

	// Use MultiWriter to calculate all hashes at once
	multiWriter := io.MultiWriter(md5Hash, sha1Hash, sha256Hash)

	if _, err := io.Copy(multiWriter, r); err != nil {
		return DigestSet{}, fmt.Errorf("failed to read data: %w", err)
	}

	return DigestSet{
		MD5:    hex.EncodeToString(md5Hash.Sum(nil)),
		SHA1:   hex.EncodeToString(sha1Hash.Sum(nil)),
		SHA256: hex.EncodeToString(sha256Hash.Sum(nil)),
	}, nil
}

// Matches evaluates actual against expected under policy. An expected
// digest that is empty never matches.
func Matches(actual DigestSet, expected models.ExpectedDigests, policy Policy) bool {
	md5OK := digestEqual(actual.MD5, expected.MD5)
	sha1OK := digestEqual(actual.SHA1, expected.SHA1)
	sha256OK := digestEqual(actual.SHA256, expected.SHA256)

	switch policy {
	case Strict:
		return md5OK && sha1OK && sha256OK
	case AllDeclared:
		declared := 0
		ok := true
		for _, c := range [][2]string{{expected.MD5, actual.MD5}, {expected.SHA1, actual.SHA1}, {expected.SHA256, actual.SHA256}} {
			if strings.TrimSpace(c[0]) == "" {
				continue
			}
			declared++
			ok = ok && digestEqual(c[1], c[0])
		}
		return declared > 0 && ok
	default:
		return md5OK || sha1OK || sha256OK
	}
}

// CheckFileSum reports whether the file at path matches expected under
// policy. A file that does not exist simply does not match; other read
// failures are returned.
func CheckFileSum(path string, expected models.ExpectedDigests, policy Policy) (bool, error) {
	actual, err := ComputeDigests(path)
	if err != nil {
		if models.IsType(err, models.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return Matches(actual, expected, policy), nil
}

func digestEqual(actual, expected string) bool {
	expected = strings.TrimSpace(expected)
	if expected == "" {
		return false
	}
	return strings.EqualFold(actual, expected)
}
