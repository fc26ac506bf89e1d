// Package tracker defines how images are fetched from and pushed to an image
// tracking service. Transport, authentication and retries belong to the
// implementations; MemoryStore is an in-process implementation.
package tracker

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	"github.com/AlanRace/go-mibi/mibi"
	"github.com/AlanRace/go-mibi/mibitiff"
)

// ErrNotFound is returned by Fetch for unknown ids.
var ErrNotFound = errors.New("tracker: image not found")

type Fetcher interface {
	// Fetch returns the stored MIBItiff bytes and the metadata recorded for id.
	Fetch(ctx context.Context, id string) ([]byte, mibi.Metadata, error)
}

type Pusher interface {
	// Push stores data and returns the id it can be fetched with.
	Push(ctx context.Context, data []byte, md mibi.Metadata) (string, error)
}

type Store interface {
	Fetcher
	Pusher
}

var _ Store = (*MemoryStore)(nil)

type record struct {
	data []byte
	md   mibi.Metadata
}

// MemoryStore keeps pushed images in memory. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]record)}
}

func newID() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

func (s *MemoryStore) Push(ctx context.Context, data []byte, md mibi.Metadata) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id, err := newID()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = record{data: append([]byte{}, data...), md: md.Clone()}

	return id, nil
}

func (s *MemoryStore) Fetch(ctx context.Context, id string) ([]byte, mibi.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, mibi.Metadata{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, mibi.Metadata{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return append([]byte{}, r.data...), r.md.Clone(), nil
}

// Len returns the number of stored images.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Download fetches id and decodes it. The metadata recorded by the service
// must name the same point as the file.
func Download(ctx context.Context, f Fetcher, id string) (*mibi.Image, error) {
	data, md, err := f.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}

	img, err := mibitiff.Read(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("tracker: image %s: %w", id, err)
	}
	if !img.Metadata.SamePoint(md) {
		return nil, fmt.Errorf("tracker: image %s: %w: service records %s/%s, file holds %s/%s", id, mibi.ErrMismatch,
			md.Run, md.PointName(), img.Metadata.Run, img.Metadata.PointName())
	}
	return img, nil
}

// Upload encodes img and pushes it with its metadata.
func Upload(ctx context.Context, p Pusher, img *mibi.Image, opts *mibitiff.WriteOptions) (string, error) {
	var buf bytes.Buffer
	if err := mibitiff.Write(&buf, img, opts); err != nil {
		return "", err
	}
	return p.Push(ctx, buf.Bytes(), img.Metadata)
}
