// Package keyring verifies OpenPGP signatures on repository Release files.
package keyring

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
	"github.com/ralt/debmirror/internal/models"
)

// Verifier checks signatures against a set of trusted public keys
type Verifier struct {
	keyring openpgp.EntityList
}

// NewVerifier loads trusted keys from an armored or binary keyring file
func NewVerifier(keyPath string) (*Verifier, error) {
	if keyPath == "" {
		return nil, fmt.Errorf("keyring path is empty")
	}

	keyFile, err := os.Open(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}
	defer keyFile.Close()

	// Try to parse as armored keyring first
	entityList, err := openpgp.ReadArmoredKeyRing(keyFile)
	if err != nil {
		// Try as binary keyring
		if _, err := keyFile.Seek(0, 0); err != nil {
			return nil, fmt.Errorf("failed to rewind keyring: %w", err)
		}
		entityList, err = openpgp.ReadKeyRing(keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read keyring: %w", err)
		}
	}

	if len(entityList) == 0 {
		return nil, fmt.Errorf("no keys found in keyring")
	}

	return &Verifier{keyring: entityList}, nil
}

// VerifyDetached checks a detached signature (Release.gpg) over data. The
// signature may be armored or binary.
func (v *Verifier) VerifyDetached(data, signature []byte) error {
	var err error
	if bytes.HasPrefix(bytes.TrimSpace(signature), []byte("-----BEGIN")) {
		_, err = openpgp.CheckArmoredDetachedSignature(v.keyring, bytes.NewReader(data), bytes.NewReader(signature), nil)
	} else {
		_, err = openpgp.CheckDetachedSignature(v.keyring, bytes.NewReader(data), bytes.NewReader(signature), nil)
	}
	if err != nil {
		return &models.MirrorError{Type: models.ErrSignature, Err: fmt.Errorf("bad detached signature: %w", err)}
	}
	return nil
}

// VerifyCleartext checks a cleartext signed message (InRelease) and returns
// the signed content.
func (v *Verifier) VerifyCleartext(data []byte) ([]byte, error) {
	block, _ := clearsign.Decode(data)
	if block == nil {
		return nil, &models.MirrorError{Type: models.ErrSignature, Err: fmt.Errorf("no cleartext signature found")}
	}

	_, err := openpgp.CheckDetachedSignature(v.keyring, bytes.NewReader(block.Bytes), block.ArmoredSignature.Body, nil)
	if err != nil {
		return nil, &models.MirrorError{Type: models.ErrSignature, Err: fmt.Errorf("bad cleartext signature: %w", err)}
	}

	return block.Plaintext, nil
}
