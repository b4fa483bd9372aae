package auditlog

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"

	"github.com/hostguard-dev/hostguard/domain/entities"
	"github.com/hostguard-dev/hostguard/domain/ports"
)

// CBORFile appends audit entries to a file as a CBOR sequence. Integer
// keys keep entries compact; the trail is append-only and the file is
// opened user-private.
type CBORFile struct {
	mu   sync.Mutex
	file *os.File
	enc  *cbor.Encoder
}

// OpenCBORFile opens (or creates) the audit file for appending.
func OpenCBORFile(path string) (*CBORFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit file: %w", err)
	}
	return &CBORFile{file: f, enc: cbor.NewEncoder(f)}, nil
}

// Record implements ports.AuditSink. Encoding failures are swallowed:
// the audit trail must never take down the host, and there is no
// caller positioned to handle a disk error mid-guard.
func (c *CBORFile) Record(entry entities.AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.enc.Encode(entry)
}

// Close flushes and closes the backing file.
func (c *CBORFile) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.file.Close()
}

var _ ports.AuditSink = (*CBORFile)(nil)
