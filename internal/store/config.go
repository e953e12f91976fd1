package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/dukerupert/haccp/internal/model"
)

const (
	backupConfigKey   = "backup_config"
	backupScheduleKey = "backup_schedule"
)

type ConfigStore struct {
	kv *KVStore
}

func NewConfigStore(kv *KVStore) *ConfigStore {
	return &ConfigStore{kv: kv}
}

// GetBackupConfig returns the saved backup configuration, or nil if none.
func (s *ConfigStore) GetBackupConfig() (*model.BackupConfig, error) {
	raw, ok, err := s.kv.Get(backupConfigKey)
	if err != nil || !ok {
		return nil, err
	}
	var cfg model.BackupConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("decode backup config: %w", err)
	}
	return &cfg, nil
}

// SaveBackupConfig stores the spreadsheet id and service account JSON,
// keeping the original created_at.
func (s *ConfigStore) SaveBackupConfig(spreadsheetID, serviceAccountJSON string) (*model.BackupConfig, error) {
	var saved model.BackupConfig
	err := s.kv.Update(backupConfigKey, func(current string, exists bool) (string, error) {
		now := time.Now().UTC()
		saved = model.BackupConfig{CreatedAt: now}
		if exists {
			var prev model.BackupConfig
			if err := json.Unmarshal([]byte(current), &prev); err == nil && !prev.CreatedAt.IsZero() {
				saved.CreatedAt = prev.CreatedAt
			}
		}
		saved.SpreadsheetID = spreadsheetID
		saved.ServiceAccountJSON = serviceAccountJSON
		saved.UpdatedAt = now

		b, err := json.Marshal(saved)
		return string(b), err
	})
	if err != nil {
		return nil, fmt.Errorf("save backup config: %w", err)
	}
	return &saved, nil
}

// GetSchedule returns the saved schedule, or the default when none is saved.
func (s *ConfigStore) GetSchedule() (model.Schedule, error) {
	raw, ok, err := s.kv.Get(backupScheduleKey)
	if err != nil {
		return model.Schedule{}, err
	}
	if !ok {
		return model.DefaultSchedule, nil
	}
	var sched model.Schedule
	if err := json.Unmarshal([]byte(raw), &sched); err != nil {
		return model.Schedule{}, fmt.Errorf("decode backup schedule: %w", err)
	}
	return sched, nil
}

func (s *ConfigStore) SetSchedule(sched model.Schedule) error {
	if sched.Hour < 0 || sched.Hour > 23 || sched.Minute < 0 || sched.Minute > 59 {
		return fmt.Errorf("invalid schedule %02d:%02d", sched.Hour, sched.Minute)
	}
	b, err := json.Marshal(sched)
	if err != nil {
		return fmt.Errorf("encode backup schedule: %w", err)
	}
	return s.kv.Set(backupScheduleKey, string(b))
}
