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

// Package cloud stores and retrieves files in blob storage: a local
// directory, Google Cloud Storage, or AWS S3.
package cloud

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/wrfrun/wrfrun/internal/fileutil"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/blob/s3blob"
	"gocloud.dev/gcp"
)

// IsBlob returns whether the given location refers to blob storage
// (i.e., if it starts with `gs://`, 's3://', or 'file://').
func IsBlob(location string) bool {
	return strings.HasPrefix(location, "gs://") || strings.HasPrefix(location, "s3://") || strings.HasPrefix(location, "file://")
}

// OpenBucket returns the blob storage bucket specified by bucketName,
// where bucketName must be in the format 'provider://name' where provider
// is the name of the storage provider and name is the name of the bucket.
// Even if name contains subdirectories, only the base directory name will be
// used when opening the bucket.
// The currently accepted storage providers are "file" for the local filesystem,
// "gs" for Google Cloud Storage, and "s3" for AWS S3.
func OpenBucket(ctx context.Context, bucketName string) (*blob.Bucket, error) {
	u, err := url.Parse(bucketName)
	if err != nil {
		return nil, fmt.Errorf("cloud.OpenBucket: %v", err)
	}
	switch u.Scheme {
	case "file":
		return dirBucket(u.Hostname())
	case "gs":
		return gsBucket(ctx, u.Hostname())
	case "s3":
		return s3Bucket(ctx, u.Hostname())
	default:
		return nil, fmt.Errorf("cloud.OpenBucket: invalid provider %s", u.Scheme)
	}
}

// OpenLocation opens the bucket holding location and returns it together
// with the key prefix that location refers to within the bucket.
// location is either a blob URL such as 'gs://bucket/some/prefix' or a
// local directory, which is created if it does not exist.
// 'file:///abs/dir' opens the directory /abs/dir.
func OpenLocation(ctx context.Context, location string) (*blob.Bucket, string, error) {
	if !IsBlob(location) {
		b, err := dirBucket(location)
		return b, "", err
	}
	u, err := url.Parse(location)
	if err != nil {
		return nil, "", fmt.Errorf("cloud: parsing location %s: %v", location, err)
	}
	if u.Scheme == "file" && u.Host == "" {
		b, err := dirBucket(u.Path)
		return b, "", err
	}
	b, err := OpenBucket(ctx, u.Scheme+"://"+u.Host)
	if err != nil {
		return nil, "", err
	}
	return b, strings.Trim(u.Path, "/"), nil
}

// key joins a prefix and a name into a blob key.
func key(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}

func dirBucket(dir string) (*blob.Bucket, error) {
	if dir == "" {
		return nil, fmt.Errorf("cloud: empty directory name")
	}
	if _, err := fileutil.EnsureDir(dir); err != nil {
		return nil, err
	}
	return fileblob.OpenBucket(dir, nil)
}

func gsBucket(ctx context.Context, name string) (*blob.Bucket, error) {
	// See here for information on credentials:
	// https://cloud.google.com/docs/authentication/getting-started
	creds, err := gcp.DefaultCredentials(ctx)
	if err != nil {
		return nil, err
	}
	c, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
	if err != nil {
		return nil, err
	}
	return gcsblob.OpenBucket(ctx, c, name, nil)
}

// s3Bucket opens an s3 storage bucket. It assumes the following
// environment variables are set: AWS_REGION, AWS_ACCESS_KEY_ID, and
// AWS_SECRET_ACCESS_KEY.
func s3Bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-2"
	}
	c := &aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewEnvCredentials(),
	}
	s, err := session.NewSession(c)
	if err != nil {
		return nil, fmt.Errorf("cloud: creating AWS session: %v", err)
	}
	return s3blob.OpenBucket(ctx, s, name, nil)
}
