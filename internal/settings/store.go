package settings

import (
	"context"
	"fmt"
)

// Store loads and persists Settings.
type Store interface {
	Load(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) error
}

// Blob is the opaque load/save surface a host offers for plugin data.
type Blob interface {
	LoadConfig(ctx context.Context) ([]byte, error)
	SaveConfig(ctx context.Context, data []byte) error
}

// BlobStore persists Settings through a host Blob, merging with Defaults on load.
type BlobStore struct {
	blob Blob
}

// NewBlobStore returns a Store backed by the given host blob.
func NewBlobStore(blob Blob) *BlobStore {
	return &BlobStore{blob: blob}
}

// Load reads the persisted blob and merges it with Defaults.
func (b *BlobStore) Load(ctx context.Context) (Settings, error) {
	data, err := b.blob.LoadConfig(ctx)
	if err != nil {
		return Defaults(), fmt.Errorf("load settings: %w", err)
	}
	return Merge(data)
}

// Save writes all five fields to the host blob.
func (b *BlobStore) Save(ctx context.Context, s Settings) error {
	data, err := Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := b.blob.SaveConfig(ctx, data); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
