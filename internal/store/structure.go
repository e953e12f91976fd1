package store

import (
	"encoding/json"
	"fmt"

	"github.com/dukerupert/haccp/internal/model"
)

const structurePrefix = "backup_structure:"

type StructureStore struct {
	kv *KVStore
}

func NewStructureStore(kv *KVStore) *StructureStore {
	return &StructureStore{kv: kv}
}

func (s *StructureStore) List() ([]model.BackupStructure, error) {
	entries, err := s.kv.GetByPrefix(structurePrefix)
	if err != nil {
		return nil, err
	}
	out := make([]model.BackupStructure, 0, len(entries))
	for _, e := range entries {
		var st model.BackupStructure
		if err := json.Unmarshal([]byte(e.Value), &st); err != nil {
			return nil, fmt.Errorf("decode %s: %w", e.Key, err)
		}
		out = append(out, st)
	}
	return out, nil
}

// Get returns the structure for documentType, or nil if none is saved.
func (s *StructureStore) Get(documentType string) (*model.BackupStructure, error) {
	raw, ok, err := s.kv.Get(structurePrefix + documentType)
	if err != nil || !ok {
		return nil, err
	}
	var st model.BackupStructure
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, fmt.Errorf("decode structure %q: %w", documentType, err)
	}
	return &st, nil
}

func (s *StructureStore) Save(st model.BackupStructure) error {
	if st.DocumentType == "" {
		return fmt.Errorf("save structure: document type is required")
	}
	b, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode structure: %w", err)
	}
	return s.kv.Set(structurePrefix+st.DocumentType, string(b))
}

func (s *StructureStore) Delete(documentType string) (bool, error) {
	return s.kv.Delete(structurePrefix + documentType)
}
