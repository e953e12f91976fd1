package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const leasePrefix = "lease:"

// ErrLeaseHeld is returned when another owner holds an unexpired lease.
var ErrLeaseHeld = errors.New("lease is held by another owner")

type lease struct {
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// LeaseStore hands out named, expiring locks shared by every process that
// opens the same database.
type LeaseStore struct {
	kv  *KVStore
	now func() time.Time
}

func NewLeaseStore(kv *KVStore) *LeaseStore {
	return &LeaseStore{kv: kv, now: time.Now}
}

// Acquire takes name for owner until ttl from now. A lease that expired, or
// that owner already holds, is taken over; calling Acquire again renews it.
func (s *LeaseStore) Acquire(name, owner string, ttl time.Duration) error {
	err := s.kv.Update(leasePrefix+name, func(current string, exists bool) (string, error) {
		now := s.now().UTC()
		if exists {
			var held lease
			if err := json.Unmarshal([]byte(current), &held); err == nil &&
				held.Owner != owner && now.Before(held.ExpiresAt) {
				return "", ErrLeaseHeld
			}
		}
		b, err := json.Marshal(lease{Owner: owner, ExpiresAt: now.Add(ttl)})
		return string(b), err
	})
	if err != nil && !errors.Is(err, ErrLeaseHeld) {
		return fmt.Errorf("acquire lease %s: %w", name, err)
	}
	return err
}

// Release drops name if owner still holds it.
func (s *LeaseStore) Release(name, owner string) error {
	_, err := s.kv.db.Exec(
		`DELETE FROM kv WHERE key = ? AND json_extract(value, '$.owner') = ?`,
		leasePrefix+name, owner,
	)
	if err != nil {
		return fmt.Errorf("release lease %s: %w", name, err)
	}
	return nil
}

// Holder returns the current owner of name, or "" when it is free or expired.
func (s *LeaseStore) Holder(name string) (string, error) {
	raw, ok, err := s.kv.Get(leasePrefix + name)
	if err != nil || !ok {
		return "", err
	}
	var held lease
	if err := json.Unmarshal([]byte(raw), &held); err != nil {
		return "", fmt.Errorf("decode lease %s: %w", name, err)
	}
	if !s.now().Before(held.ExpiresAt) {
		return "", nil
	}
	return held.Owner, nil
}
