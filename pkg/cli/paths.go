package cli

import (
	"os"
	"path/filepath"
)

// DefaultBaseDir is the per-user directory under $HOME.
const DefaultBaseDir = ".speakernet"

// Paths locates speakernet's files. Override HomeDir in tests.
type Paths struct {
	HomeDir string
}

// NewPaths resolves the user's home directory.
func NewPaths() (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{HomeDir: home}, nil
}

// BaseDir returns ~/.speakernet.
func (p *Paths) BaseDir() string {
	return filepath.Join(p.HomeDir, DefaultBaseDir)
}

// ModelFile returns the default model config path, ~/.speakernet/model.yaml.
func (p *Paths) ModelFile() string {
	return filepath.Join(p.BaseDir(), "model.yaml")
}

// StoreDir returns the enrollment database directory,
// ~/.speakernet/enroll.
func (p *Paths) StoreDir() string {
	return filepath.Join(p.BaseDir(), "enroll")
}

// EnsureBaseDir creates the base directory if needed.
func (p *Paths) EnsureBaseDir() error {
	return os.MkdirAll(p.BaseDir(), 0o755)
}
