package lifecycle

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/hostguard-dev/hostguard/domain/entities"
	hgerrors "github.com/hostguard-dev/hostguard/domain/errors"
	"github.com/hostguard-dev/hostguard/internal/testutil"
)

func assertLifecycleReason(t *testing.T, err error, reason hgerrors.LifecycleReason) {
	t.Helper()
	var le *hgerrors.LifecycleError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, reason, le.Reason)
}

func TestOpenPackage_ValidPackage(t *testing.T) {
	path := testutil.BuildPackage(t, testutil.Manifest(), nil)

	pkg, err := OpenPackage(path)
	require.NoError(t, err)
	assert.Equal(t, "test-plugin", pkg.Manifest.ID)
	assert.Equal(t, testutil.MinimalWASM(), pkg.Module)
	require.NoError(t, pkg.Validate())
}

func TestOpenPackage_MissingManifest(t *testing.T) {
	path := testutil.BuildRawPackage(t, map[string][]byte{
		"plugin.wasm": testutil.MinimalWASM(),
	})

	_, err := OpenPackage(path)
	assertLifecycleReason(t, err, hgerrors.ReasonManifestInvalid)
}

func TestOpenPackage_MissingModule(t *testing.T) {
	raw, err := yaml.Marshal(testutil.Manifest())
	require.NoError(t, err)
	path := testutil.BuildRawPackage(t, map[string][]byte{
		"plugin.yaml": raw,
	})

	_, err = OpenPackage(path)
	assertLifecycleReason(t, err, hgerrors.ReasonManifestInvalid)
}

func TestOpenPackage_RejectsTraversalEntries(t *testing.T) {
	path := testutil.BuildRawPackage(t, map[string][]byte{
		"../escape.txt": []byte("x"),
	})

	_, err := OpenPackage(path)
	assertLifecycleReason(t, err, hgerrors.ReasonManifestInvalid)
}

func TestOpenPackage_RejectsUnknownManifestKeys(t *testing.T) {
	raw := []byte("id: p\nversion: 1.0.0\nmodule: plugin.wasm\nfunctions: [f]\nsuper_powers: true\n")
	path := testutil.BuildRawPackage(t, map[string][]byte{
		"plugin.yaml": raw,
		"plugin.wasm": testutil.MinimalWASM(),
	})

	_, err := OpenPackage(path)
	assertLifecycleReason(t, err, hgerrors.ReasonManifestInvalid)
}

func TestOpenPackage_RejectsNotGzip(t *testing.T) {
	path := testutil.BuildRawPackage(t, map[string][]byte{"plugin.yaml": []byte("id: x")})
	// Overwrite with junk bytes.
	require.NoError(t, os.WriteFile(path, []byte("definitely not gzip"), 0o644))

	_, err := OpenPackage(path)
	assertLifecycleReason(t, err, hgerrors.ReasonManifestInvalid)
}

func TestValidate_RejectsMissingRequiredFields(t *testing.T) {
	manifest := testutil.Manifest(func(m *entities.PluginManifest) {
		m.Functions = nil
	})
	path := testutil.BuildPackage(t, manifest, nil)

	pkg, err := OpenPackage(path)
	require.NoError(t, err)
	assertLifecycleReason(t, pkg.Validate(), hgerrors.ReasonManifestInvalid)
}

func TestValidate_RejectsNonSemverVersion(t *testing.T) {
	manifest := testutil.Manifest(func(m *entities.PluginManifest) {
		m.Version = "v1"
	})
	path := testutil.BuildPackage(t, manifest, nil)

	pkg, err := OpenPackage(path)
	require.NoError(t, err)
	assertLifecycleReason(t, pkg.Validate(), hgerrors.ReasonManifestInvalid)
}

func TestValidate_RejectsOversizedModule(t *testing.T) {
	// Random-ish incompressible content over the raw ceiling.
	big := make([]byte, MaxModuleSize+1)
	for i := range big {
		big[i] = byte(i * 7)
	}
	module := append(testutil.MinimalWASM(), big...)

	path := testutil.BuildPackage(t, testutil.Manifest(), map[string][]byte{
		"plugin.wasm": module,
	})

	pkg, err := OpenPackage(path)
	require.NoError(t, err)
	assertLifecycleReason(t, pkg.Validate(), hgerrors.ReasonPackageTooLarge)
}

func TestValidate_RejectsExcessiveTableRequest(t *testing.T) {
	table := entities.MaxTableElements + 1
	manifest := testutil.Manifest(func(m *entities.PluginManifest) {
		m.Resources.MaxTableElements = &table
	})
	path := testutil.BuildPackage(t, manifest, nil)

	pkg, err := OpenPackage(path)
	require.NoError(t, err)
	assertLifecycleReason(t, pkg.Validate(), hgerrors.ReasonManifestInvalid)
}

func TestModuleTableMin(t *testing.T) {
	// Module with a table section declaring min=5: magic, version,
	// section id 4, size 4, count 1, funcref (0x70), flags 0, min 5.
	wasm := append(testutil.MinimalWASM(), 0x04, 0x04, 0x01, 0x70, 0x00, 0x05)

	minVal, ok := moduleTableMin(wasm)
	require.True(t, ok)
	assert.Equal(t, uint64(5), minVal)

	_, ok = moduleTableMin(testutil.MinimalWASM())
	assert.False(t, ok, "no table section")

	_, ok = moduleTableMin([]byte("junk"))
	assert.False(t, ok, "not a wasm binary")
}

func TestCompressedSize(t *testing.T) {
	compressible := bytes.Repeat([]byte("aaaa"), 10_000)
	n, err := compressedSize(compressible)
	require.NoError(t, err)
	assert.Less(t, n, len(compressible)/10)
}
