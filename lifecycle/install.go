package lifecycle

import (
	"archive/tar"
	"bytes"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	"github.com/klauspost/compress/gzip"
	"gopkg.in/yaml.v3"

	"github.com/hostguard-dev/hostguard/domain/entities"
	hgerrors "github.com/hostguard-dev/hostguard/domain/errors"
)

const (
	// MaxPackageSize bounds the whole package archive and its
	// extracted contents.
	MaxPackageSize = 10 << 20

	// MaxModuleSize bounds the raw WASM module.
	MaxModuleSize = 300 << 10

	// MaxModuleCompressedSize bounds the module after gzip
	// compression, a cheap proxy for actual code density that a
	// padded module cannot game.
	MaxModuleCompressedSize = 120 << 10

	manifestFileName  = "plugin.yaml"
	signatureFileName = "package.sig"
)

// validate is a package-level singleton; constructing a validator per
// call is expensive.
var validate = validator.New()

// SourceType describes where a package came from. It selects the
// signature policy: registries require a valid signature, VCS sources
// get a warning when unsigned, local paths are trusted as-is.
type SourceType string

const (
	SourceLocal    SourceType = "local"
	SourceVCS      SourceType = "vcs"
	SourceRegistry SourceType = "registry"
)

// PluginPackage is an opened, size-checked plugin archive. Validation
// of the manifest and module happens separately in Validate.
type PluginPackage struct {
	Manifest    *entities.PluginManifest
	ManifestRaw []byte
	Module      []byte
	Files       map[string][]byte
	Signature   []byte
}

// OpenPackage reads a gzip-compressed tar package from disk, enforcing
// the package size ceiling both on the archive and on the extracted
// total. Entry names are confined to the archive root: absolute paths
// and parent-directory traversal are rejected.
func OpenPackage(pkgPath string) (*PluginPackage, error) {
	info, err := os.Stat(pkgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat package: %w", err)
	}
	if info.Size() > MaxPackageSize {
		return nil, &hgerrors.LifecycleError{
			Reason: hgerrors.ReasonPackageTooLarge,
			Detail: fmt.Sprintf("package is %d bytes, limit is %d", info.Size(), MaxPackageSize),
		}
	}

	f, err := os.Open(pkgPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open package: %w", err)
	}
	defer f.Close()

	return readPackage(f)
}

func readPackage(r io.Reader) (*PluginPackage, error) {
	gz, err := gzip.NewReader(io.LimitReader(r, MaxPackageSize+1))
	if err != nil {
		return nil, &hgerrors.LifecycleError{
			Reason: hgerrors.ReasonManifestInvalid,
			Detail: "package is not a gzip archive",
			Err:    err,
		}
	}
	defer gz.Close()

	pkg := &PluginPackage{Files: make(map[string][]byte)}
	tr := tar.NewReader(gz)
	var total int64

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read package archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}

		name := path.Clean(hdr.Name)
		if path.IsAbs(name) || name == ".." || strings.HasPrefix(name, "../") {
			return nil, &hgerrors.LifecycleError{
				Reason: hgerrors.ReasonManifestInvalid,
				Detail: fmt.Sprintf("archive entry %q escapes the package root", hdr.Name),
			}
		}

		total += hdr.Size
		if hdr.Size > MaxPackageSize || total > MaxPackageSize {
			return nil, &hgerrors.LifecycleError{
				Reason: hgerrors.ReasonPackageTooLarge,
				Detail: "extracted package contents exceed the package size limit",
			}
		}

		data, err := io.ReadAll(io.LimitReader(tr, hdr.Size))
		if err != nil {
			return nil, fmt.Errorf("failed to read archive entry %q: %w", name, err)
		}
		pkg.Files[name] = data
	}

	raw, ok := pkg.Files[manifestFileName]
	if !ok {
		return nil, &hgerrors.LifecycleError{
			Reason: hgerrors.ReasonManifestInvalid,
			Detail: "package has no " + manifestFileName,
		}
	}
	pkg.ManifestRaw = raw
	delete(pkg.Files, manifestFileName)

	if sig, ok := pkg.Files[signatureFileName]; ok {
		pkg.Signature = sig
		delete(pkg.Files, signatureFileName)
	}

	manifest, err := parseManifest(raw)
	if err != nil {
		return nil, err
	}
	pkg.Manifest = manifest

	module, ok := pkg.Files[manifest.Module]
	if !ok {
		return nil, &hgerrors.LifecycleError{
			Reason: hgerrors.ReasonManifestInvalid,
			Detail: fmt.Sprintf("manifest references module %q, not present in package", manifest.Module),
		}
	}
	pkg.Module = module
	delete(pkg.Files, manifest.Module)

	return pkg, nil
}

// parseManifest decodes plugin.yaml in strict mode. Unknown keys fail
// the parse so a typoed or smuggled permission field cannot silently
// grant nothing, or worse, be interpreted by a later version.
func parseManifest(raw []byte) (*entities.PluginManifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var m entities.PluginManifest
	if err := dec.Decode(&m); err != nil {
		return nil, &hgerrors.LifecycleError{
			Reason: hgerrors.ReasonManifestInvalid,
			Detail: "failed to parse " + manifestFileName,
			Err:    err,
		}
	}
	return &m, nil
}

// Validate checks the opened package against the manifest schema and
// the size and resource ceilings. It returns the first failure.
func (p *PluginPackage) Validate() error {
	if err := validate.Struct(p.Manifest); err != nil {
		return &hgerrors.LifecycleError{
			Reason: hgerrors.ReasonManifestInvalid,
			Detail: "manifest failed schema validation",
			Err:    err,
		}
	}

	if _, err := semver.StrictNewVersion(p.Manifest.Version); err != nil {
		return &hgerrors.LifecycleError{
			Reason: hgerrors.ReasonManifestInvalid,
			Detail: fmt.Sprintf("version %q is not a semantic version", p.Manifest.Version),
			Err:    err,
		}
	}

	if len(p.Module) > MaxModuleSize {
		return &hgerrors.LifecycleError{
			Reason: hgerrors.ReasonPackageTooLarge,
			Detail: fmt.Sprintf("module is %d bytes, limit is %d", len(p.Module), MaxModuleSize),
		}
	}

	compressed, err := compressedSize(p.Module)
	if err != nil {
		return fmt.Errorf("failed to measure module compressed size: %w", err)
	}
	if compressed > MaxModuleCompressedSize {
		return &hgerrors.LifecycleError{
			Reason: hgerrors.ReasonPackageTooLarge,
			Detail: fmt.Sprintf("module compresses to %d bytes, limit is %d", compressed, MaxModuleCompressedSize),
		}
	}

	if req := p.Manifest.Resources.MaxTableElements; req != nil && *req > entities.MaxTableElements {
		return &hgerrors.LifecycleError{
			Reason: hgerrors.ReasonManifestInvalid,
			Detail: fmt.Sprintf("requested table size %d exceeds the ceiling %d", *req, entities.MaxTableElements),
		}
	}

	if declared, ok := moduleTableMin(p.Module); ok && declared > uint64(entities.MaxTableElements) {
		return &hgerrors.LifecycleError{
			Reason: hgerrors.ReasonManifestInvalid,
			Detail: fmt.Sprintf("module declares a table of %d elements, ceiling is %d", declared, entities.MaxTableElements),
		}
	}

	return nil
}

func compressedSize(data []byte) (int, error) {
	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return 0, err
	}
	if _, err := gz.Write(data); err != nil {
		return 0, err
	}
	if err := gz.Close(); err != nil {
		return 0, err
	}
	return buf.Len(), nil
}

// moduleTableMin scans the WASM binary for the table section and
// returns the declared minimum element count of the first table. A
// module that fails to parse is left for the runtime to reject, so the
// second return is false on any malformed input.
func moduleTableMin(wasm []byte) (uint64, bool) {
	const tableSectionID = 4

	if len(wasm) < 8 || !bytes.Equal(wasm[:4], []byte("\x00asm")) {
		return 0, false
	}
	pos := 8
	for pos < len(wasm) {
		id := wasm[pos]
		pos++
		size, n := uleb128(wasm[pos:])
		if n == 0 || pos+n+int(size) > len(wasm) {
			return 0, false
		}
		pos += n
		if id != tableSectionID {
			pos += int(size)
			continue
		}

		body := wasm[pos : pos+int(size)]
		count, n := uleb128(body)
		if n == 0 || count == 0 {
			return 0, false
		}
		body = body[n:]
		if len(body) < 2 {
			return 0, false
		}
		// Table type is a reftype byte and a limits flag byte, then
		// the uleb-encoded minimum.
		body = body[2:]
		minVal, n := uleb128(body)
		if n == 0 {
			return 0, false
		}
		return minVal, true
	}
	return 0, false
}

func uleb128(b []byte) (uint64, int) {
	var result uint64
	var shift uint
	for i, c := range b {
		result |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return result, i + 1
		}
		shift += 7
		if shift > 63 {
			return 0, 0
		}
	}
	return 0, 0
}
