package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dukerupert/haccp/internal/model"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Configured reports whether enough is set to reach a bucket.
func (c S3Config) Configured() bool {
	return c.Bucket != "" && c.AccessKey != "" && c.SecretKey != ""
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Snapshot is the exact set of matrices one run wrote, kept so a sheet
// overwritten by a later run can be reconstructed.
type Snapshot struct {
	RunID   string          `json:"runId"`
	Trigger model.Trigger   `json:"trigger"`
	TakenAt time.Time       `json:"takenAt"`
	Sheets  []SnapshotSheet `json:"sheets"`
}

type SnapshotSheet struct {
	DocumentType  string     `json:"documentType"`
	SpreadsheetID string     `json:"spreadsheetId"`
	Title         string     `json:"title"`
	Matrix        [][]string `json:"matrix"`
}

// Snapshotter uploads run snapshots to S3, sealed when a passphrase is set.
type Snapshotter struct {
	client     s3Client
	bucket     string
	passphrase string
	logger     *slog.Logger
}

// NewSnapshotter returns nil when cfg is not configured.
func NewSnapshotter(cfg S3Config, passphrase string, logger *slog.Logger) *Snapshotter {
	if !cfg.Configured() {
		return nil
	}
	return &Snapshotter{
		client:     newS3Client(cfg),
		bucket:     cfg.Bucket,
		passphrase: passphrase,
		logger:     logger,
	}
}

// Key returns the object key for a snapshot of runID taken at t.
func (s *Snapshotter) Key(runID string, t time.Time) string {
	key := fmt.Sprintf("snapshots/%s/%s.json", t.UTC().Format("2006/01/02"), runID)
	if s.passphrase != "" {
		key += ".enc"
	}
	return key
}

// Put uploads snap and returns its object key.
func (s *Snapshotter) Put(ctx context.Context, snap Snapshot) (string, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	if s.passphrase != "" {
		if data, err = Seal(data, s.passphrase); err != nil {
			return "", fmt.Errorf("seal snapshot: %w", err)
		}
	}

	key := s.Key(snap.RunID, snap.TakenAt)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}
	return key, nil
}

// Get downloads and decodes the snapshot at key.
func (s *Snapshotter) Get(ctx context.Context, key string) (*Snapshot, error) {
	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("download snapshot: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if strings.HasSuffix(key, ".enc") {
		if data, err = Open(data, s.passphrase); err != nil {
			return nil, fmt.Errorf("open snapshot: %w", err)
		}
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return &snap, nil
}
