package backup

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/haccp/internal/model"
)

func testSnapshot() Snapshot {
	return Snapshot{
		RunID:   "0190f7a2-run",
		Trigger: model.TriggerManual,
		TakenAt: time.Date(2024, 3, 5, 18, 0, 0, 0, time.UTC),
		Sheets: []SnapshotSheet{{
			DocumentType:  "supplier",
			SpreadsheetID: "MAIN",
			Title:         "Suppliers",
			Matrix:        [][]string{{"Name"}, {"Green Farm"}},
		}},
	}
}

func TestSnapshotSealedRoundTrip(t *testing.T) {
	mock := newMockS3()
	s := &Snapshotter{client: mock, bucket: "haccp", passphrase: "secret"}
	ctx := context.Background()

	key, err := s.Put(ctx, testSnapshot())
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if key != "snapshots/2024/03/05/0190f7a2-run.json.enc" {
		t.Errorf("key = %q", key)
	}
	if strings.Contains(string(mock.objects[key]), "Green Farm") {
		t.Error("sealed snapshot contains plaintext")
	}

	got, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RunID != "0190f7a2-run" || got.Sheets[0].Matrix[1][0] != "Green Farm" {
		t.Errorf("snapshot = %+v", got)
	}

	wrong := &Snapshotter{client: mock, bucket: "haccp", passphrase: "other"}
	if _, err := wrong.Get(ctx, key); err == nil {
		t.Error("expected error opening with the wrong passphrase")
	}
}

func TestSnapshotPlain(t *testing.T) {
	mock := newMockS3()
	s := &Snapshotter{client: mock, bucket: "haccp"}

	key, err := s.Put(context.Background(), testSnapshot())
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if !strings.HasSuffix(key, ".json") {
		t.Errorf("key = %q, want .json suffix", key)
	}
	if !strings.Contains(string(mock.objects[key]), "Green Farm") {
		t.Error("plain snapshot should be readable JSON")
	}
}

func TestSnapshotPutError(t *testing.T) {
	mock := newMockS3()
	mock.putErr = errors.New("bucket gone")
	s := &Snapshotter{client: mock, bucket: "haccp"}
	if _, err := s.Put(context.Background(), testSnapshot()); err == nil {
		t.Error("expected upload error")
	}
}

func TestNewSnapshotterUnconfigured(t *testing.T) {
	if s := NewSnapshotter(S3Config{Bucket: "haccp"}, "", nil); s != nil {
		t.Error("expected nil snapshotter without credentials")
	}
	if s := NewSnapshotter(S3Config{Bucket: "haccp", AccessKey: "a", SecretKey: "b", Region: "auto"}, "", nil); s == nil {
		t.Error("expected snapshotter when configured")
	}
}
