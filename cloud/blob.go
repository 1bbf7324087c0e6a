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
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/wrfrun/wrfrun/internal/fileutil"
	"gocloud.dev/blob"
	"golang.org/x/sync/errgroup"
)

// readBlob copies the given blob from the given bucket to the local file dst.
func readBlob(ctx context.Context, bucket *blob.Bucket, key, dst string) error {
	r, err := bucket.NewReader(ctx, key, nil)
	if err != nil {
		return fmt.Errorf("cloud: reading blob key %s: %w", key, err)
	}
	defer r.Close()
	if err := fileutil.WriteAtomic(dst, r, false); err != nil {
		return fmt.Errorf("cloud: reading blob key %s: %w", key, err)
	}
	return nil
}

// writeBlob writes the local file src to the given bucket. The blob only
// becomes visible once it has been completely written.
func writeBlob(ctx context.Context, bucket *blob.Bucket, key, src string) error {
	r, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("cloud: opening file for blob %s: %w", key, err)
	}
	defer r.Close()
	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{})
	if err != nil {
		return fmt.Errorf("cloud: creating writer for blob %s: %w", key, err)
	}
	if _, err = io.Copy(w, r); err != nil {
		w.Close()
		return fmt.Errorf("cloud: copying blob %s: %w", key, err)
	}
	if err = w.Close(); err != nil {
		return fmt.Errorf("cloud: writing blob %s: %w", key, err)
	}
	return nil
}

// UploadConcurrency is the number of files Upload copies at once.
var UploadConcurrency = 4

// Upload copies the given local files into location, keyed by their base
// names. Each file is retried with exponential back-off.
func Upload(ctx context.Context, location string, files []string, log logrus.FieldLogger) error {
	if log == nil {
		log = logrus.StandardLogger()
	}
	bucket, prefix, err := OpenLocation(ctx, location)
	if err != nil {
		return err
	}
	defer bucket.Close()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(UploadConcurrency)
	for _, f := range files {
		f := f
		g.Go(func() error {
			k := key(prefix, filepath.Base(f))
			err := backoff.RetryNotify(
				func() error {
					return writeBlob(ctx, bucket, k, f)
				},
				backoff.WithContext(backoff.NewExponentialBackOff(), ctx),
				func(err error, d time.Duration) {
					log.WithField("key", k).Warnf("%v: retrying in %v", err, d)
				},
			)
			if err != nil {
				return fmt.Errorf("cloud: uploading %s to %s: %w", f, location, err)
			}
			log.WithFields(logrus.Fields{"file": f, "location": location}).Info("uploaded")
			return nil
		})
	}
	return g.Wait()
}
