/*
Copyright © 2019 the WRFRun authors.
This file is part of WRFRun.

WRFRun is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

WRFRun is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with WRFRun.  If not, see <http://www.gnu.org/licenses/>.
*/

package cloud

import (
	"context"
	"fmt"

	"github.com/wrfrun/wrfrun"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
)

// BucketCache is a secondary cache of downloaded files kept in blob
// storage. Entries are keyed by file base name under Prefix.
type BucketCache struct {
	Bucket *blob.Bucket
	Prefix string
}

var _ wrfrun.SecondaryCache = (*BucketCache)(nil)

// OpenCache opens a cache at location, which may be a local directory
// or a blob URL such as 'gs://bucket/gfs'.
func OpenCache(ctx context.Context, location string) (*BucketCache, error) {
	b, prefix, err := OpenLocation(ctx, location)
	if err != nil {
		return nil, fmt.Errorf("cloud: opening secondary cache: %w", err)
	}
	return &BucketCache{Bucket: b, Prefix: prefix}, nil
}

// Get copies the entry called name to dst. It returns wrfrun.ErrNotCached
// if the entry does not exist or is empty.
func (c *BucketCache) Get(ctx context.Context, name, dst string) error {
	k := key(c.Prefix, name)
	attrs, err := c.Bucket.Attributes(ctx, k)
	if gcerrors.Code(err) == gcerrors.NotFound {
		return wrfrun.ErrNotCached
	} else if err != nil {
		return fmt.Errorf("cloud: checking cache entry %s: %w", k, err)
	}
	if attrs.Size == 0 {
		return wrfrun.ErrNotCached
	}
	return readBlob(ctx, c.Bucket, k, dst)
}

// Put stores the local file src as the entry called name.
func (c *BucketCache) Put(ctx context.Context, name, src string) error {
	return writeBlob(ctx, c.Bucket, key(c.Prefix, name), src)
}

// Close releases the bucket.
func (c *BucketCache) Close() error { return c.Bucket.Close() }
