package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/dukerupert/haccp/internal/model"
)

const backupLogPrefix = "backup_log:"

// ErrNotPending is returned when completing a log entry that already ended.
var ErrNotPending = errors.New("backup log entry is not pending")

type BackupLogStore struct {
	kv *KVStore
}

func NewBackupLogStore(kv *KVStore) *BackupLogStore {
	return &BackupLogStore{kv: kv}
}

// Create writes a pending entry. Ids are UUIDv7 so key order is start order.
func (s *BackupLogStore) Create(trigger model.Trigger, documentType string) (*model.BackupLogEntry, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate backup log id: %w", err)
	}
	entry := &model.BackupLogEntry{
		ID:           id.String(),
		Trigger:      trigger,
		DocumentType: documentType,
		Status:       model.BackupStatusPending,
		StartedAt:    time.Now().UTC(),
	}
	b, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("encode backup log: %w", err)
	}
	if err := s.kv.Set(backupLogPrefix+entry.ID, string(b)); err != nil {
		return nil, fmt.Errorf("create backup log: %w", err)
	}
	return entry, nil
}

// Completion is the terminal state written to a pending entry.
type Completion struct {
	Status      model.BackupStatus
	RecordCount int
	Results     []model.DocumentResult
	Error       string
	ErrorKind   string
}

// Complete moves a pending entry to a terminal status. Any other transition,
// including a second completion, returns ErrNotPending.
func (s *BackupLogStore) Complete(id string, c Completion) (*model.BackupLogEntry, error) {
	if !c.Status.Terminal() {
		return nil, fmt.Errorf("complete backup log %s: %q is not a terminal status", id, c.Status)
	}

	var done model.BackupLogEntry
	err := s.kv.Update(backupLogPrefix+id, func(current string, exists bool) (string, error) {
		if !exists {
			return "", fmt.Errorf("backup log %s not found", id)
		}
		if err := json.Unmarshal([]byte(current), &done); err != nil {
			return "", fmt.Errorf("decode backup log %s: %w", id, err)
		}
		if done.Status != model.BackupStatusPending {
			return "", ErrNotPending
		}

		now := time.Now().UTC()
		done.Status = c.Status
		done.RecordCount = c.RecordCount
		done.Results = c.Results
		done.Error = c.Error
		done.ErrorKind = c.ErrorKind
		if c.Status == model.BackupStatusFailed {
			done.FailedAt = &now
		} else {
			done.CompletedAt = &now
		}

		b, err := json.Marshal(done)
		return string(b), err
	})
	if err != nil {
		return nil, err
	}
	return &done, nil
}

// Get returns the entry with id, or nil if none.
func (s *BackupLogStore) Get(id string) (*model.BackupLogEntry, error) {
	raw, ok, err := s.kv.Get(backupLogPrefix + id)
	if err != nil || !ok {
		return nil, err
	}
	var entry model.BackupLogEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("decode backup log %s: %w", id, err)
	}
	return &entry, nil
}

// List returns up to limit entries, newest first. limit <= 0 means all.
func (s *BackupLogStore) List(limit int) ([]model.BackupLogEntry, error) {
	entries, err := s.kv.GetByPrefix(backupLogPrefix)
	if err != nil {
		return nil, err
	}
	slices.Reverse(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	out := make([]model.BackupLogEntry, 0, len(entries))
	for _, e := range entries {
		var entry model.BackupLogEntry
		if err := json.Unmarshal([]byte(e.Value), &entry); err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Key, err)
		}
		out = append(out, entry)
	}
	return out, nil
}
