package ports

// SignatureVerifier checks a detached signature over a package content
// digest. Implementations hold the trusted public key material.
type SignatureVerifier interface {
	Verify(digest, signature []byte) error
}
