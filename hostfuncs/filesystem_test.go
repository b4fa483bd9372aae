package hostfuncs

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/hostguard-dev/hostguard/domain/errors"
	"github.com/hostguard-dev/hostguard/internal/testutil"
	"github.com/hostguard-dev/hostguard/sandbox"
)

func fsSandbox(t *testing.T, roots ...string) *sandbox.Sandbox {
	t.Helper()
	sb, err := sandbox.New(testutil.Manifest(testutil.WithFilesystem(roots...)))
	require.NoError(t, err)
	return sb
}

func assertFSDenied(t *testing.T, errResp *ErrorResponse, reason domainerrors.FSReason) {
	t.Helper()
	require.NotNil(t, errResp)
	assert.Equal(t, "DENIED", errResp.Error)
	assert.Equal(t, string(reason), errResp.Code)
}

func TestFilesystemGuard_ReadInsideRoot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))

	g := NewFilesystemGuard(fsSandbox(t, dir))
	resp := g.Read(context.Background(), ReadFileRequest{Path: path})

	require.Nil(t, resp.Error)
	assert.Equal(t, "hello", resp.Content)
}

func TestFilesystemGuard_NoPermissionDeniesEverything(t *testing.T) {
	g := NewFilesystemGuard(fsSandbox(t))

	read := g.Read(context.Background(), ReadFileRequest{Path: "/etc/hostname"})
	assertFSDenied(t, read.Error, domainerrors.ReasonFSDenied)

	write := g.Write(context.Background(), WriteFileRequest{Path: "/tmp/x", Content: []byte("x")})
	assertFSDenied(t, write.Error, domainerrors.ReasonFSDenied)
}

func TestFilesystemGuard_DotDotEscape(t *testing.T) {
	dir := t.TempDir()
	outside := filepath.Join(filepath.Dir(dir), "outside.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))
	defer os.Remove(outside)

	g := NewFilesystemGuard(fsSandbox(t, dir))
	resp := g.Read(context.Background(), ReadFileRequest{Path: filepath.Join(dir, "..", "outside.txt")})
	assertFSDenied(t, resp.Error, domainerrors.ReasonOutsideSandbox)
}

func TestFilesystemGuard_SymlinkEscapeOnRead(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	target := filepath.Join(outside, "target.txt")
	require.NoError(t, os.WriteFile(target, []byte("secret"), 0o644))

	link := filepath.Join(dir, "link.txt")
	require.NoError(t, os.Symlink(target, link))

	g := NewFilesystemGuard(fsSandbox(t, dir))
	resp := g.Read(context.Background(), ReadFileRequest{Path: link})
	assertFSDenied(t, resp.Error, domainerrors.ReasonOutsideSandbox)
}

func TestFilesystemGuard_SymlinkedDirectoryEscape(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "f.txt"), []byte("x"), 0o644))

	linkDir := filepath.Join(dir, "sub")
	require.NoError(t, os.Symlink(outside, linkDir))

	g := NewFilesystemGuard(fsSandbox(t, dir))
	resp := g.Read(context.Background(), ReadFileRequest{Path: filepath.Join(linkDir, "f.txt")})
	assertFSDenied(t, resp.Error, domainerrors.ReasonOutsideSandbox)
}

func TestFilesystemGuard_RootUnderSymlinkedAncestor(t *testing.T) {
	// The granted root sits below a symlinked directory, the shape of
	// /tmp -> /private/tmp on macOS. Accesses through the link path must
	// pass: the link resolves to an ancestor of the root, not an escape.
	base := t.TempDir()
	real := filepath.Join(base, "real")
	require.NoError(t, os.MkdirAll(filepath.Join(real, "work"), 0o755))

	aliased := filepath.Join(base, "aliased")
	require.NoError(t, os.Symlink(real, aliased))

	root := filepath.Join(aliased, "work")
	require.NoError(t, os.WriteFile(filepath.Join(root, "data.txt"), []byte("hello"), 0o644))

	g := NewFilesystemGuard(fsSandbox(t, root))

	read := g.Read(context.Background(), ReadFileRequest{Path: filepath.Join(root, "data.txt")})
	require.Nil(t, read.Error)
	assert.Equal(t, "hello", read.Content)

	write := g.Write(context.Background(), WriteFileRequest{
		Path:    filepath.Join(root, "out.txt"),
		Content: []byte("x"),
	})
	require.Nil(t, write.Error)

	// A link inside the root still may not escape it.
	escape := filepath.Join(real, "outside.txt")
	require.NoError(t, os.WriteFile(escape, []byte("secret"), 0o644))
	require.NoError(t, os.Symlink(escape, filepath.Join(root, "link.txt")))

	resp := g.Read(context.Background(), ReadFileRequest{Path: filepath.Join(root, "link.txt")})
	assertFSDenied(t, resp.Error, domainerrors.ReasonOutsideSandbox)
}

func TestFilesystemGuard_ReadTooLarge(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "big.bin")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("a"), 64), 0o644))

	g := NewFilesystemGuard(fsSandbox(t, dir), WithMaxReadSize(16))
	resp := g.Read(context.Background(), ReadFileRequest{Path: path})
	assertFSDenied(t, resp.Error, domainerrors.ReasonFileTooLarge)
}

func TestFilesystemGuard_WriteCreatesFileAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.txt")

	g := NewFilesystemGuard(fsSandbox(t, dir))
	resp := g.Write(context.Background(), WriteFileRequest{Path: path, Content: []byte("written")})

	require.Nil(t, resp.Error)
	assert.Equal(t, 7, resp.BytesWritten)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("written"), data)

	// No temporary leftovers.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFilesystemGuard_WriteOutsideRoot(t *testing.T) {
	dir := t.TempDir()
	g := NewFilesystemGuard(fsSandbox(t, dir))

	resp := g.Write(context.Background(), WriteFileRequest{
		Path:    filepath.Join(dir, "..", "escape.txt"),
		Content: []byte("x"),
	})
	assertFSDenied(t, resp.Error, domainerrors.ReasonOutsideSandbox)
}

func TestFilesystemGuard_WriteThroughSymlinkedParent(t *testing.T) {
	dir := t.TempDir()
	outside := t.TempDir()

	linkDir := filepath.Join(dir, "sub")
	require.NoError(t, os.Symlink(outside, linkDir))

	g := NewFilesystemGuard(fsSandbox(t, dir))
	resp := g.Write(context.Background(), WriteFileRequest{
		Path:    filepath.Join(linkDir, "escape.txt"),
		Content: []byte("x"),
	})
	assertFSDenied(t, resp.Error, domainerrors.ReasonOutsideSandbox)

	_, err := os.Stat(filepath.Join(outside, "escape.txt"))
	assert.True(t, os.IsNotExist(err), "nothing may be written outside the root")
}

func TestFilesystemGuard_WriteTooLarge(t *testing.T) {
	dir := t.TempDir()
	g := NewFilesystemGuard(fsSandbox(t, dir), WithMaxWriteSize(8))

	resp := g.Write(context.Background(), WriteFileRequest{
		Path:    filepath.Join(dir, "big.txt"),
		Content: bytes.Repeat([]byte("a"), 9),
	})
	assertFSDenied(t, resp.Error, domainerrors.ReasonFileTooLarge)
}

func TestFilesystemGuard_ReadMissingFile(t *testing.T) {
	dir := t.TempDir()
	g := NewFilesystemGuard(fsSandbox(t, dir))

	resp := g.Read(context.Background(), ReadFileRequest{Path: filepath.Join(dir, "missing.txt")})
	assertFSDenied(t, resp.Error, domainerrors.ReasonCannotResolve)
}

func TestFilesystemGuard_OverwriteExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	g := NewFilesystemGuard(fsSandbox(t, dir))
	resp := g.Write(context.Background(), WriteFileRequest{Path: path, Content: []byte("new")})
	require.Nil(t, resp.Error)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), data)
}
