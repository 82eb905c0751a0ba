package artifacts

import (
	"context"
	"fmt"
	"path/filepath"
)

// StoreType names a report storage backend.
type StoreType string

const (
	StoreTypeFS  StoreType = "fs"
	StoreTypeS3  StoreType = "s3"
	StoreTypeGCS StoreType = "gcs"
)

// Options selects and configures a backend. Zero values fall back to a
// filesystem store under "data/reports".
type Options struct {
	Type    StoreType
	DataDir string

	S3Bucket   string
	S3Region   string
	S3Endpoint string
	S3Prefix   string

	GCSBucket string
	GCSPrefix string
}

// NewStore builds the backend named by opts.Type.
func NewStore(ctx context.Context, opts Options) (Store, error) {
	storeType := opts.Type
	if storeType == "" {
		storeType = StoreTypeFS
	}

	switch storeType {
	case StoreTypeFS:
		dataDir := opts.DataDir
		if dataDir == "" {
			dataDir = "data"
		}
		return NewFileStore(filepath.Join(dataDir, "reports"))
	case StoreTypeS3:
		return newS3Store(ctx, opts)
	case StoreTypeGCS:
		return newGCSStore(ctx, opts)
	default:
		return nil, fmt.Errorf("unsupported report storage type: %s", storeType)
	}
}

func newS3Store(ctx context.Context, opts Options) (Store, error) {
	if opts.S3Bucket == "" {
		return nil, fmt.Errorf("DOCTRINE_S3_BUCKET is required for S3 storage")
	}
	region := opts.S3Region
	if region == "" {
		region = "us-east-1"
	}
	return NewS3Store(ctx, S3StoreConfig{
		Bucket:   opts.S3Bucket,
		Region:   region,
		Endpoint: opts.S3Endpoint,
		Prefix:   opts.S3Prefix,
	})
}
