package models

import (
	"strconv"
	"strings"
)

// Canonical index field names
const (
	FieldPackage      = "Package"
	FieldVersion      = "Version"
	FieldArchitecture = "Architecture"
	FieldFilename     = "Filename"
	FieldSize         = "Size"
	FieldMD5          = "MD5sum"
	FieldSHA1         = "SHA1"
	FieldSHA256       = "SHA256"
)

// PackageRecord is one stanza of a package index: field name to raw value.
// Fields not listed above are kept verbatim.
type PackageRecord map[string]string

// Name returns the Package field
func (r PackageRecord) Name() string {
	return r[FieldPackage]
}

// Version returns the Version field
func (r PackageRecord) Version() string {
	return r[FieldVersion]
}

// Architecture returns the Architecture field
func (r PackageRecord) Architecture() string {
	return r[FieldArchitecture]
}

// Filename returns the Filename field as declared by the index
func (r PackageRecord) Filename() string {
	return r[FieldFilename]
}

// Size returns the declared artifact size. ok is false when the field is
// missing or not a non-negative decimal integer.
func (r PackageRecord) Size() (size int64, ok bool) {
	raw, present := r[FieldSize]
	if !present {
		return 0, false
	}
	size, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || size < 0 {
		return 0, false
	}
	return size, true
}

// Expected returns the declared digests of the artifact
func (r PackageRecord) Expected() ExpectedDigests {
	return ExpectedDigests{
		MD5:    r[FieldMD5],
		SHA1:   r[FieldSHA1],
		SHA256: r[FieldSHA256],
	}
}

// ExpectedDigests holds hex digests declared for a file. Empty means absent.
type ExpectedDigests struct {
	MD5    string
	SHA1   string
	SHA256 string
}
