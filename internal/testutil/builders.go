// Package testutil provides shared fixtures for hostguard tests:
// manifest builders, package archive builders, and in-memory sinks.
package testutil

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/hostguard-dev/hostguard/domain/entities"
)

// MinimalWASM is the smallest valid WebAssembly module: magic and
// version, no sections.
func MinimalWASM() []byte {
	return []byte("\x00asm\x01\x00\x00\x00")
}

// Manifest builds a valid minimal manifest, then applies modifiers.
func Manifest(mods ...func(*entities.PluginManifest)) *entities.PluginManifest {
	m := &entities.PluginManifest{
		ID:        "test-plugin",
		Version:   "1.0.0",
		Module:    "plugin.wasm",
		Functions: []string{"handle"},
	}
	for _, mod := range mods {
		mod(m)
	}
	return m
}

// WithNetwork grants network access to the given hosts.
func WithNetwork(hosts ...string) func(*entities.PluginManifest) {
	return func(m *entities.PluginManifest) {
		m.Permissions.Network = hosts
	}
}

// WithFilesystem grants filesystem access under the given roots.
func WithFilesystem(roots ...string) func(*entities.PluginManifest) {
	return func(m *entities.PluginManifest) {
		m.Permissions.Filesystem = roots
	}
}

// WithEnvVars grants read access to the given environment variables.
func WithEnvVars(names ...string) func(*entities.PluginManifest) {
	return func(m *entities.PluginManifest) {
		m.Permissions.EnvVars = names
	}
}

// WithShell grants shell access.
func WithShell() func(*entities.PluginManifest) {
	return func(m *entities.PluginManifest) {
		m.Permissions.Shell = true
	}
}

// BuildPackage writes a gzip-compressed tar plugin package into a temp
// directory and returns its path. The manifest is marshaled to
// plugin.yaml; extra files are added verbatim.
func BuildPackage(t *testing.T, manifest *entities.PluginManifest, files map[string][]byte) string {
	t.Helper()

	raw, err := yaml.Marshal(manifest)
	require.NoError(t, err)

	all := map[string][]byte{"plugin.yaml": raw}
	if _, ok := files[manifest.Module]; !ok {
		all[manifest.Module] = MinimalWASM()
	}
	for name, data := range files {
		all[name] = data
	}
	return BuildRawPackage(t, all)
}

// BuildRawPackage archives exactly the given files, no defaults. Used
// to build deliberately broken packages.
func BuildRawPackage(t *testing.T, files map[string][]byte) string {
	t.Helper()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, data := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(data)),
		}))
		_, err := tw.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	path := filepath.Join(t.TempDir(), "plugin.tar.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

// MemorySink is an in-memory audit sink for assertions.
type MemorySink struct {
	mu      sync.Mutex
	entries []entities.AuditEntry
}

// Record implements ports.AuditSink.
func (s *MemorySink) Record(entry entities.AuditEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

// Entries returns a snapshot of everything recorded so far.
func (s *MemorySink) Entries() []entities.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]entities.AuditEntry(nil), s.entries...)
}

// Last returns the most recent entry, failing the test if none exist.
func (s *MemorySink) Last(t *testing.T) entities.AuditEntry {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.entries, "no audit entries recorded")
	return s.entries[len(s.entries)-1]
}
