//go:build gcp

package artifacts

import (
	"context"
	"fmt"
)

func newGCSStore(ctx context.Context, opts Options) (Store, error) {
	if opts.GCSBucket == "" {
		return nil, fmt.Errorf("DOCTRINE_GCS_BUCKET is required for GCS storage")
	}
	return NewGCSStore(ctx, GCSStoreConfig{Bucket: opts.GCSBucket, Prefix: opts.GCSPrefix})
}
