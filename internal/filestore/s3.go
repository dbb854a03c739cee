package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/xxxsen/common/logutil"
	commons3 "github.com/xxxsen/common/s3"
	"go.uber.org/zap"
)

const defaultS3Prefix = "postvec"

type s3Config struct {
	Endpoint  string `json:"endpoint"`
	SecretID  string `json:"secret_id"`
	SecretKey string `json:"secret_key"`
	Bucket    string `json:"bucket"`
	Region    string `json:"region"`
	// Prefix is prepended to every snapshot key. Defaults to "postvec".
	Prefix string `json:"prefix"`
	UseSSL bool   `json:"use_ssl"`
}

func (c *s3Config) validate() error {
	var missing []string
	for name, v := range map[string]string{
		"endpoint":   c.Endpoint,
		"bucket":     c.Bucket,
		"secret_id":  c.SecretID,
		"secret_key": c.SecretKey,
	} {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("snapshot_store s3 is missing %s", strings.Join(missing, ", "))
	}
	return nil
}

// s3Store uploads migration snapshots. Snapshots are write-only from here.
type s3Store struct {
	client *commons3.S3Client
	bucket string
	prefix string
}

func init() {
	Register("s3", createS3Store)
}

func createS3Store(args interface{}) (Store, error) {
	config := &s3Config{}
	if err := decodeConfig(args, config); err != nil {
		return nil, err
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}
	prefix := strings.Trim(config.Prefix, "/")
	if prefix == "" {
		prefix = defaultS3Prefix
	}
	client, err := commons3.New(
		commons3.WithEndpoint(config.Endpoint),
		commons3.WithSecret(config.SecretID, config.SecretKey),
		commons3.WithBucket(config.Bucket),
		commons3.WithRegion(config.Region),
		commons3.WithSSL(config.UseSSL),
	)
	if err != nil {
		return nil, fmt.Errorf("snapshot_store s3: %w", err)
	}
	return &s3Store{client: client, bucket: config.Bucket, prefix: prefix}, nil
}

func (s *s3Store) Type() string {
	return "s3"
}

func (s *s3Store) objectKey(key string) string {
	return path.Join(s.prefix, key)
}

func (s *s3Store) Save(ctx context.Context, key string, r ReadSeekCloser, size int64) error {
	if err := validKey(key); err != nil {
		return err
	}
	objectKey := s.objectKey(key)
	if _, err := s.client.Upload(ctx, objectKey, r, size); err != nil {
		return fmt.Errorf("upload snapshot %s to bucket %s: %w", objectKey, s.bucket, err)
	}
	logutil.GetLogger(ctx).Info("snapshot uploaded",
		zap.String("bucket", s.bucket),
		zap.String("object", objectKey),
		zap.Int64("size", size),
	)
	return nil
}

func (s *s3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	return nil, fmt.Errorf("%w: snapshot %s lives in bucket %s and is restored with bucket tooling",
		errors.ErrUnsupported, s.objectKey(key), s.bucket)
}
