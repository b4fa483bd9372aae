package hostfuncs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hostguard-dev/hostguard/domain/entities"
	domainerrors "github.com/hostguard-dev/hostguard/domain/errors"
	"github.com/hostguard-dev/hostguard/sandbox"
)

// Filesystem guard ceilings.
const (
	MaxReadFileSize  = 8 * 1024 * 1024
	MaxWriteFileSize = 4 * 1024 * 1024
)

// ReadFileRequest is the guest wire form of a file read.
type ReadFileRequest struct {
	Path string `json:"path"`
}

// ReadFileResponse carries UTF-8 file content or a structured denial.
type ReadFileResponse struct {
	Content string         `json:"content,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
}

// WriteFileRequest is the guest wire form of a file write.
type WriteFileRequest struct {
	Path    string `json:"path"`
	Content []byte `json:"content"`
}

// WriteFileResponse reports write success or a structured denial.
type WriteFileResponse struct {
	BytesWritten int            `json:"bytes_written,omitempty"`
	Error        *ErrorResponse `json:"error,omitempty"`
}

// FilesystemGuard validates file reads and writes against the
// sandbox's canonicalized roots before any disk I/O.
type FilesystemGuard struct {
	sb       *sandbox.Sandbox
	maxRead  int64
	maxWrite int64
}

// FilesystemGuardOption configures a FilesystemGuard.
type FilesystemGuardOption func(*FilesystemGuard)

// WithMaxReadSize overrides the read ceiling. For tests.
func WithMaxReadSize(n int64) FilesystemGuardOption {
	return func(g *FilesystemGuard) {
		if n > 0 {
			g.maxRead = n
		}
	}
}

// WithMaxWriteSize overrides the write ceiling. For tests.
func WithMaxWriteSize(n int64) FilesystemGuardOption {
	return func(g *FilesystemGuard) {
		if n > 0 {
			g.maxWrite = n
		}
	}
}

// NewFilesystemGuard builds the guard for one plugin sandbox.
func NewFilesystemGuard(sb *sandbox.Sandbox, opts ...FilesystemGuardOption) *FilesystemGuard {
	g := &FilesystemGuard{
		sb:       sb,
		maxRead:  MaxReadFileSize,
		maxWrite: MaxWriteFileSize,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ReadHandler returns the wire-form read handler.
func (g *FilesystemGuard) ReadHandler() ByteHandler {
	return NewJSONHandler(g.Read)
}

// WriteHandler returns the wire-form write handler.
func (g *FilesystemGuard) WriteHandler() ByteHandler {
	return NewJSONHandler(g.Write)
}

// Read validates and performs a file read.
func (g *FilesystemGuard) Read(ctx context.Context, req ReadFileRequest) ReadFileResponse {
	canonical, guardErr := g.checkRead(req.Path)
	if guardErr != nil {
		SetAuditOutcome(ctx, entities.AuditDenied, string(guardErr.Reason), "read "+req.Path)
		return ReadFileResponse{Error: fsDenied(guardErr)}
	}

	info, err := os.Stat(canonical)
	if err != nil {
		SetAuditOutcome(ctx, entities.AuditDenied, string(domainerrors.ReasonCannotResolve), "read "+req.Path)
		return ReadFileResponse{Error: fsDenied(&domainerrors.FileSystemError{Reason: domainerrors.ReasonCannotResolve, Path: req.Path, Err: err})}
	}
	if info.Size() > g.maxRead {
		SetAuditOutcome(ctx, entities.AuditDenied, string(domainerrors.ReasonFileTooLarge), "read "+req.Path)
		return ReadFileResponse{Error: fsDenied(&domainerrors.FileSystemError{Reason: domainerrors.ReasonFileTooLarge, Path: req.Path})}
	}

	data, err := os.ReadFile(canonical)
	if err != nil {
		SetAuditOutcome(ctx, entities.AuditError, "read_failed", "read "+req.Path)
		return ReadFileResponse{Error: ptr(NewInternalError(err.Error()))}
	}

	SetAuditOutcome(ctx, entities.AuditAllowed, "", fmt.Sprintf("read %s (%d bytes)", canonical, len(data)))
	return ReadFileResponse{Content: string(data)}
}

// Write validates and performs an atomic file write: the content goes
// to a sibling temporary file first, then renames into place, so a
// crash never leaves a partial write behind.
func (g *FilesystemGuard) Write(ctx context.Context, req WriteFileRequest) WriteFileResponse {
	if int64(len(req.Content)) > g.maxWrite {
		SetAuditOutcome(ctx, entities.AuditDenied, string(domainerrors.ReasonFileTooLarge), "write "+req.Path)
		return WriteFileResponse{Error: fsDenied(&domainerrors.FileSystemError{Reason: domainerrors.ReasonFileTooLarge, Path: req.Path})}
	}

	canonical, guardErr := g.checkWrite(req.Path)
	if guardErr != nil {
		SetAuditOutcome(ctx, entities.AuditDenied, string(guardErr.Reason), "write "+req.Path)
		return WriteFileResponse{Error: fsDenied(guardErr)}
	}

	dir := filepath.Dir(canonical)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(canonical)+".*")
	if err != nil {
		SetAuditOutcome(ctx, entities.AuditError, "write_failed", "write "+req.Path)
		return WriteFileResponse{Error: ptr(NewInternalError(err.Error()))}
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(req.Content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		SetAuditOutcome(ctx, entities.AuditError, "write_failed", "write "+req.Path)
		return WriteFileResponse{Error: ptr(NewInternalError(err.Error()))}
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		SetAuditOutcome(ctx, entities.AuditError, "write_failed", "write "+req.Path)
		return WriteFileResponse{Error: ptr(NewInternalError(err.Error()))}
	}
	if err := os.Rename(tmpName, canonical); err != nil {
		_ = os.Remove(tmpName)
		SetAuditOutcome(ctx, entities.AuditError, "write_failed", "write "+req.Path)
		return WriteFileResponse{Error: ptr(NewInternalError(err.Error()))}
	}

	SetAuditOutcome(ctx, entities.AuditAllowed, "", fmt.Sprintf("write %s (%d bytes)", canonical, len(req.Content)))
	return WriteFileResponse{BytesWritten: len(req.Content)}
}

// checkRead canonicalizes the target directly; the file must exist.
func (g *FilesystemGuard) checkRead(path string) (string, *domainerrors.FileSystemError) {
	if !g.sb.HasFilesystem() {
		return "", &domainerrors.FileSystemError{Reason: domainerrors.ReasonFSDenied, Path: path}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &domainerrors.FileSystemError{Reason: domainerrors.ReasonCannotResolve, Path: path, Err: err}
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", &domainerrors.FileSystemError{Reason: domainerrors.ReasonCannotResolve, Path: path, Err: err}
	}
	if !g.sb.ContainsPath(canonical) {
		return "", &domainerrors.FileSystemError{Reason: domainerrors.ReasonOutsideSandbox, Path: path}
	}
	if err := g.walkSymlinks(abs); err != nil {
		return "", err
	}
	return canonical, nil
}

// checkWrite canonicalizes the parent directory and joins the possibly
// nonexistent filename, since the target may not exist yet.
func (g *FilesystemGuard) checkWrite(path string) (string, *domainerrors.FileSystemError) {
	if !g.sb.HasFilesystem() {
		return "", &domainerrors.FileSystemError{Reason: domainerrors.ReasonFSDenied, Path: path}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &domainerrors.FileSystemError{Reason: domainerrors.ReasonCannotResolve, Path: path, Err: err}
	}
	parent, err := filepath.EvalSymlinks(filepath.Dir(abs))
	if err != nil {
		return "", &domainerrors.FileSystemError{Reason: domainerrors.ReasonCannotResolve, Path: path, Err: err}
	}
	canonical := filepath.Join(parent, filepath.Base(abs))
	if !g.sb.ContainsPath(canonical) {
		return "", &domainerrors.FileSystemError{Reason: domainerrors.ReasonOutsideSandbox, Path: path}
	}
	if err := g.walkSymlinks(filepath.Dir(abs)); err != nil {
		return "", err
	}
	return canonical, nil
}

// walkSymlinks walks the original, non-canonical path component by
// component. Any component that is itself a symlink must resolve back
// inside an allowed root. This catches a link created between the
// canonicalization above and the actual I/O.
func (g *FilesystemGuard) walkSymlinks(abs string) *domainerrors.FileSystemError {
	prefix := string(filepath.Separator)
	rest := abs
	for rest != "" && rest != string(filepath.Separator) {
		var component string
		component, rest = nextComponent(rest)
		if component == "" {
			continue
		}
		prefix = filepath.Join(prefix, component)

		info, err := os.Lstat(prefix)
		if err != nil {
			// Components above the allowed roots or not yet created;
			// containment was already established on the canonical path.
			if os.IsNotExist(err) {
				continue
			}
			return &domainerrors.FileSystemError{Reason: domainerrors.ReasonCannotResolve, Path: abs, Err: err}
		}
		if info.Mode()&os.ModeSymlink == 0 {
			continue
		}

		resolved, err := filepath.EvalSymlinks(prefix)
		if err != nil {
			return &domainerrors.FileSystemError{Reason: domainerrors.ReasonCannotResolve, Path: abs, Err: err}
		}
		// A component above the root may legitimately resolve to an
		// ancestor of it (a symlinked /tmp); only a resolution that
		// neither lands inside a root nor leads down to one escapes.
		if !g.sb.ContainsPath(resolved) && !g.sb.LeadsToRoot(resolved) {
			return &domainerrors.FileSystemError{Reason: domainerrors.ReasonSymlinkEscape, Path: prefix}
		}
	}
	return nil
}

// nextComponent splits the leading path component off an absolute path.
func nextComponent(path string) (component, rest string) {
	path = strings.TrimPrefix(path, string(filepath.Separator))
	if i := strings.IndexByte(path, filepath.Separator); i >= 0 {
		return path[:i], string(filepath.Separator) + path[i+1:]
	}
	return path, ""
}

func fsDenied(err *domainerrors.FileSystemError) *ErrorResponse {
	return ptr(NewDeniedError(string(err.Reason), err.Error()))
}
