// Package store persists device records to a flat JSON file. It offers no
// concurrency guarantees of its own; the registry serializes all access.
package store

import (
	"errors"
	"fmt"

	"github.com/benmeehan/devmon/internal/models"
	"github.com/benmeehan/devmon/pkg/file"
	"github.com/rs/zerolog"
)

// ErrPersistence marks a failed store read or write. Callers classify it
// with errors.Is.
var ErrPersistence = errors.New("device store persistence failure")

// DeviceStore is durable keyed storage for device records.
type DeviceStore interface {
	LoadAll() ([]models.Device, error)
	SaveAll(devices []models.Device) error
	Upsert(device models.Device) error
	Delete(id string) error
}

// FileDeviceStore keeps the device list as a JSON array in a single file.
// Every mutation rewrites the whole file through a temp-file rename, so the
// file on disk is always a complete, parsable snapshot.
type FileDeviceStore struct {
	path       string
	fileClient file.FileOperations
	logger     zerolog.Logger
}

// NewFileDeviceStore creates a store backed by the JSON file at path.
func NewFileDeviceStore(path string, fileClient file.FileOperations, logger zerolog.Logger) *FileDeviceStore {
	return &FileDeviceStore{
		path:       path,
		fileClient: fileClient,
		logger:     logger.With().Str("component", "store").Logger(),
	}
}

// LoadAll reads the full device list. A missing or unparsable file yields an
// empty list, not an error, so a fresh or corrupted installation starts with
// an empty registry.
func (s *FileDeviceStore) LoadAll() ([]models.Device, error) {
	exists, err := s.fileClient.IsFileExists(s.path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w: %w", s.path, ErrPersistence, err)
	}
	if !exists {
		s.logger.Info().Str("path", s.path).Msg("Devices file does not exist, starting empty")
		return []models.Device{}, nil
	}

	var devices []models.Device
	if err := s.fileClient.ReadJsonFile(s.path, &devices); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("Devices file is unreadable, starting empty")
		return []models.Device{}, nil
	}

	s.logger.Debug().Int("count", len(devices)).Str("path", s.path).Msg("Devices loaded")
	return devices, nil
}

// SaveAll rewrites the whole file with the given device list.
func (s *FileDeviceStore) SaveAll(devices []models.Device) error {
	if devices == nil {
		devices = []models.Device{}
	}

	if err := s.fileClient.WriteJsonFile(s.path, devices); err != nil {
		return fmt.Errorf("write %s: %w: %w", s.path, ErrPersistence, err)
	}

	s.logger.Debug().Int("count", len(devices)).Str("path", s.path).Msg("Devices saved")
	return nil
}

// loadForMutation reads the current file for a read-modify-write. Unlike
// LoadAll it is strict about parse failures: a mutation must never rewrite a
// corrupted file as a near-empty one, so corruption aborts with
// ErrPersistence instead of quietly losing the other records. A missing file
// is still just an empty list.
func (s *FileDeviceStore) loadForMutation() ([]models.Device, error) {
	exists, err := s.fileClient.IsFileExists(s.path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w: %w", s.path, ErrPersistence, err)
	}
	if !exists {
		return []models.Device{}, nil
	}

	var devices []models.Device
	if err := s.fileClient.ReadJsonFile(s.path, &devices); err != nil {
		return nil, fmt.Errorf("parse %s: %w: %w", s.path, ErrPersistence, err)
	}
	return devices, nil
}

// Upsert replaces the record with the device's id, or appends it when the id
// is new, then rewrites the file.
func (s *FileDeviceStore) Upsert(device models.Device) error {
	devices, err := s.loadForMutation()
	if err != nil {
		return err
	}

	replaced := false
	for i := range devices {
		if devices[i].ID == device.ID {
			devices[i] = device
			replaced = true
			break
		}
	}
	if !replaced {
		devices = append(devices, device)
	}

	return s.SaveAll(devices)
}

// Delete removes the record with the given id, if present, and rewrites the
// file. Deleting an unknown id is not an error; existence checks belong to
// the registry.
func (s *FileDeviceStore) Delete(id string) error {
	devices, err := s.loadForMutation()
	if err != nil {
		return err
	}

	kept := devices[:0]
	for _, d := range devices {
		if d.ID != id {
			kept = append(kept, d)
		}
	}

	return s.SaveAll(kept)
}
