// Package profilestore keeps exported calibration profiles on disk, one JSON
// file per device, so a reconnecting device starts from its last calibration.
package profilestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/soar/ControllerSync/internal/calibration"
)

type Store struct {
	logger *zap.Logger
	dir    string
}

// New creates the profile directory if needed.
func New(logger *zap.Logger, dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}
	return &Store{logger: logger.Named("profiles"), dir: dir}, nil
}

var unsafeChars = strings.NewReplacer(":", "_", "#", "_", "/", "_", "\\", "_")

// Path returns the file a device's profile is stored in.
func (s *Store) Path(deviceID string) string {
	return filepath.Join(s.dir, unsafeChars.Replace(deviceID)+".json")
}

// PublishProfile writes p, replacing the device's previous profile.
func (s *Store) PublishProfile(p calibration.Profile) {
	if err := s.Save(p); err != nil {
		s.logger.Error("Failed to save calibration profile", zap.String("device", p.DeviceID), zap.Error(err))
	}
}

// Save validates and writes p. The file is replaced atomically.
func (s *Store) Save(p calibration.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}

	path := s.Path(p.DeviceID)
	tmp, err := os.CreateTemp(s.dir, ".profile-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	s.logger.Info("Calibration profile saved", zap.String("device", p.DeviceID), zap.String("path", path))
	return nil
}

// Profile reads the stored profile of a device. ok is false when none exists.
func (s *Store) Profile(deviceID string) (p calibration.Profile, ok bool, err error) {
	data, err := os.ReadFile(s.Path(deviceID))
	if errors.Is(err, os.ErrNotExist) {
		return calibration.Profile{}, false, nil
	}
	if err != nil {
		return calibration.Profile{}, false, err
	}
	loaded, err := calibration.ProfileFromJSON(data)
	if err != nil {
		return calibration.Profile{}, false, err
	}
	if loaded.DeviceID != deviceID {
		return calibration.Profile{}, false, fmt.Errorf("%w: profile belongs to %q", calibration.ErrProfileLoad, loaded.DeviceID)
	}
	return *loaded, true, nil
}
