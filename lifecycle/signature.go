package lifecycle

import (
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/zeebo/blake3"

	"github.com/hostguard-dev/hostguard/domain/ports"
)

// Digest computes the package content digest signatures are made over:
// a blake3 hash of every file in the package, manifest and module
// included, in sorted name order. Names and contents are length-prefix
// framed so no two distinct packages share a hash input.
func (p *PluginPackage) Digest() []byte {
	files := map[string][]byte{
		manifestFileName:  p.ManifestRaw,
		p.Manifest.Module: p.Module,
	}
	for name, data := range p.Files {
		files[name] = data
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	h := blake3.New()
	var frame [8]byte
	for _, name := range names {
		binary.LittleEndian.PutUint64(frame[:], uint64(len(name)))
		h.Write(frame[:])
		h.Write([]byte(name))
		binary.LittleEndian.PutUint64(frame[:], uint64(len(files[name])))
		h.Write(frame[:])
		h.Write(files[name])
	}
	return h.Sum(nil)
}

// Ed25519Verifier verifies detached package signatures against a
// trusted public key.
type Ed25519Verifier struct {
	pub ed25519.PublicKey
}

// NewEd25519Verifier wraps a trusted public key.
func NewEd25519Verifier(pub ed25519.PublicKey) (*Ed25519Verifier, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("public key must be %d bytes, got %d", ed25519.PublicKeySize, len(pub))
	}
	return &Ed25519Verifier{pub: pub}, nil
}

// Verify implements ports.SignatureVerifier.
func (v *Ed25519Verifier) Verify(digest, signature []byte) error {
	if len(signature) != ed25519.SignatureSize {
		return fmt.Errorf("signature must be %d bytes, got %d", ed25519.SignatureSize, len(signature))
	}
	if !ed25519.Verify(v.pub, digest, signature) {
		return fmt.Errorf("signature does not match package digest")
	}
	return nil
}

// Sign produces a detached signature for a package digest. Exposed for
// publishers and tests; the host itself only ever verifies.
func Sign(priv ed25519.PrivateKey, digest []byte) []byte {
	return ed25519.Sign(priv, digest)
}

var _ ports.SignatureVerifier = (*Ed25519Verifier)(nil)
