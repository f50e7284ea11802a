//go:build !gcp

package catalog

import (
	"context"
	"fmt"
)

func newGCSSource(ctx context.Context, bucket, object string) (Source, error) {
	return nil, fmt.Errorf("GCS catalog sources are not enabled in this build (use -tags gcp)")
}
