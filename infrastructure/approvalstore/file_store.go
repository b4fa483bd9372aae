// Package approvalstore persists first-run consent decisions in a
// YAML file under the user's config directory.
package approvalstore

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"gopkg.in/yaml.v3"

	"github.com/hostguard-dev/hostguard/domain/entities"
	"github.com/hostguard-dev/hostguard/domain/ports"
)

// fileStoreConfig holds configuration for the FileStore.
type fileStoreConfig struct {
	path     string
	dirPerm  os.FileMode
	filePerm os.FileMode
}

func defaultFileStoreConfig() fileStoreConfig {
	return fileStoreConfig{
		path:     filepath.Join(os.Getenv("HOME"), ".hostguard", "approvals.yaml"),
		dirPerm:  0o755,
		filePerm: 0o600, // approval records are user-private
	}
}

// FileStoreOption configures a FileStore instance.
type FileStoreOption func(*fileStoreConfig)

// WithPath sets the path of the approvals file.
func WithPath(path string) FileStoreOption {
	return func(c *fileStoreConfig) {
		c.path = path
	}
}

// WithFilePermissions overrides the 0o600 default for the approvals
// file. Use with caution.
func WithFilePermissions(perm os.FileMode) FileStoreOption {
	return func(c *fileStoreConfig) {
		c.filePerm = perm
	}
}

// WithDirPermissions overrides the 0o755 default for the config
// directory.
func WithDirPermissions(perm os.FileMode) FileStoreOption {
	return func(c *fileStoreConfig) {
		c.dirPerm = perm
	}
}

// FileStore is the YAML file-backed ApprovalStore. Records are keyed
// "id@version".
type FileStore struct {
	config fileStoreConfig
}

// NewFileStore creates a FileStore with the given options.
func NewFileStore(opts ...FileStoreOption) *FileStore {
	cfg := defaultFileStoreConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &FileStore{config: cfg}
}

type approvalFile struct {
	Approvals map[string]entities.ApprovalRecord `yaml:"approvals"`
}

// Get implements ports.ApprovalStore.
func (s *FileStore) Get(pluginID, version string) (*entities.ApprovalRecord, bool, error) {
	file, err := s.load()
	if err != nil {
		return nil, false, err
	}
	record, ok := file.Approvals[pluginID+"@"+version]
	if !ok {
		return nil, false, nil
	}
	return &record, true, nil
}

// Latest implements ports.ApprovalStore. Versions that do not parse as
// semver are skipped; records are written from validated manifests so
// this only happens with a hand-edited file.
func (s *FileStore) Latest(pluginID string) (*entities.ApprovalRecord, bool, error) {
	file, err := s.load()
	if err != nil {
		return nil, false, err
	}

	var best *entities.ApprovalRecord
	var bestVer *semver.Version
	for _, record := range file.Approvals {
		if record.PluginID != pluginID {
			continue
		}
		ver, err := semver.StrictNewVersion(record.Version)
		if err != nil {
			continue
		}
		if bestVer == nil || ver.GreaterThan(bestVer) {
			r := record
			best = &r
			bestVer = ver
		}
	}
	if best == nil {
		return nil, false, nil
	}
	return best, true, nil
}

// Put implements ports.ApprovalStore.
func (s *FileStore) Put(record entities.ApprovalRecord) error {
	file, err := s.load()
	if err != nil {
		return err
	}
	if file.Approvals == nil {
		file.Approvals = make(map[string]entities.ApprovalRecord)
	}
	file.Approvals[record.PluginID+"@"+record.Version] = record
	return s.save(file)
}

// ConfigPath returns the path of the backing file.
func (s *FileStore) ConfigPath() string {
	return s.config.path
}

func (s *FileStore) load() (*approvalFile, error) {
	data, err := os.ReadFile(s.config.path)
	if os.IsNotExist(err) {
		return &approvalFile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read approval store: %w", err)
	}

	var file approvalFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse approval store: %w", err)
	}
	return &file, nil
}

func (s *FileStore) save(file *approvalFile) error {
	data, err := yaml.Marshal(file)
	if err != nil {
		return fmt.Errorf("failed to marshal approvals: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.config.path), s.config.dirPerm); err != nil {
		return fmt.Errorf("failed to create approval store directory: %w", err)
	}
	if err := os.WriteFile(s.config.path, data, s.config.filePerm); err != nil {
		return fmt.Errorf("failed to write approval store: %w", err)
	}
	return nil
}

var _ ports.ApprovalStore = (*FileStore)(nil)
