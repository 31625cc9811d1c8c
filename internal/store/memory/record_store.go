// Package memory keeps generation records in-memory for tests and
// development.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/pixelforge/imagesvc/internal/generation"
)

// RecordStore holds generation records in a slice, newest last. Repeated
// request_ids append independent rows.
type RecordStore struct {
	mu      sync.RWMutex
	records []generation.Record
}

// NewRecordStore creates an empty in-memory record store.
func NewRecordStore() *RecordStore {
	return &RecordStore{}
}

// CreateRecord appends a new record.
func (s *RecordStore) CreateRecord(_ context.Context, rec generation.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// FinishRecord marks the most recent unfinished record for requestID.
func (s *RecordStore) FinishRecord(_ context.Context, requestID string, status generation.JobStatus, imageURL, blobURL, errText string, finishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].RequestID != requestID || s.records[i].FinishedAt != nil {
			continue
		}
		s.records[i].Status = status
		s.records[i].ImageURL = imageURL
		s.records[i].BlobURL = blobURL
		s.records[i].ErrorText = errText
		s.records[i].FinishedAt = &finishedAt
		return nil
	}
	return nil
}

// Records returns a copy of all stored records.
func (s *RecordStore) Records() []generation.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]generation.Record, len(s.records))
	copy(out, s.records)
	return out
}
