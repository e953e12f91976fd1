package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/haccp/internal/model"
)

// RecordStore keeps form records as JSON under a per-document-type prefix.
type RecordStore struct {
	kv *KVStore
}

func NewRecordStore(kv *KVStore) *RecordStore {
	return &RecordStore{kv: kv}
}

// List returns the records stored under prefix in key order. Entries that
// are not JSON objects are skipped, so one bad entry never hides the rest.
func (s *RecordStore) List(prefix string) ([]model.Record, []string, error) {
	entries, err := s.kv.GetByPrefix(prefix)
	if err != nil {
		return nil, nil, err
	}
	records := make([]model.Record, 0, len(entries))
	var skipped []string
	for _, e := range entries {
		var r model.Record
		if err := json.Unmarshal([]byte(e.Value), &r); err != nil || r == nil {
			skipped = append(skipped, e.Key)
			continue
		}
		records = append(records, r)
	}
	return records, skipped, nil
}

// ErrRecordExists is returned when creating a record under an id in use.
var ErrRecordExists = errors.New("record already exists")

// Create stores r under prefix. A missing id gets a time-ordered UUID and a
// missing createdAt gets the current time. An id that is already stored
// returns ErrRecordExists and leaves the stored record untouched.
func (s *RecordStore) Create(prefix string, r model.Record) (model.Record, error) {
	if r == nil {
		r = model.Record{}
	}
	if r.ID() == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return nil, fmt.Errorf("generate record id: %w", err)
		}
		r["id"] = id.String()
	}
	if r.String("createdAt") == "" {
		r["createdAt"] = time.Now().UTC().Format(time.RFC3339)
	}

	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	err = s.kv.Update(prefix+r.ID(), func(_ string, exists bool) (string, error) {
		if exists {
			return "", ErrRecordExists
		}
		return string(b), nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *RecordStore) Delete(prefix, id string) (bool, error) {
	return s.kv.Delete(prefix + id)
}
