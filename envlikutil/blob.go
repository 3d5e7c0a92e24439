/*
Copyright © 2019 the envlik authors.
This file is part of envlik.

envlik is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

envlik is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with envlik.  If not, see <http://www.gnu.org/licenses/>.
*/

package envlikutil

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/blob/s3blob"
	"gocloud.dev/gcp"
)

// defaultS3Region is used when the AWS configuration doesn't set a region.
const defaultS3Region = "us-east-2"

// blobPath is a file in blob storage, written as provider://bucket/key.
// The providers are "file" for a directory on the local filesystem, "gs"
// for Google Cloud Storage, and "s3" for AWS S3.
type blobPath struct {
	provider, bucket, key string
}

// isBlob returns whether path refers to a file in blob storage.
func isBlob(path string) bool {
	_, ok := parseBlobPath(path)
	return ok
}

// parseBlobPath splits path into its provider, bucket, and key. It returns
// false if path is not a blob storage location.
func parseBlobPath(path string) (blobPath, bool) {
	u, err := url.Parse(path)
	if err != nil {
		return blobPath{}, false
	}
	switch u.Scheme {
	case "file", "gs", "s3":
	default:
		return blobPath{}, false
	}
	return blobPath{
		provider: u.Scheme,
		bucket:   u.Host,
		key:      strings.TrimPrefix(u.Path, "/"),
	}, true
}

func (p blobPath) String() string {
	return p.provider + "://" + p.bucket + "/" + p.key
}

// openBucket opens the bucket that holds p. The caller must close it.
func (p blobPath) openBucket(ctx context.Context) (*blob.Bucket, error) {
	var b *blob.Bucket
	var err error
	switch p.provider {
	case "file":
		b, err = fileblob.OpenBucket(p.bucket, nil)
	case "gs":
		b, err = gsBucket(ctx, p.bucket)
	case "s3":
		b, err = s3Bucket(ctx, p.bucket)
	default:
		err = fmt.Errorf("invalid provider '%s'", p.provider)
	}
	if err != nil {
		return nil, fmt.Errorf("envlik: opening bucket '%s://%s': %v", p.provider, p.bucket, err)
	}
	return b, nil
}

// gsBucket uses the application default credentials.
func gsBucket(ctx context.Context, name string) (*blob.Bucket, error) {
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

// s3Bucket uses the standard AWS credential chain and shared
// configuration files.
func s3Bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	s, err := session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, err
	}
	if aws.StringValue(s.Config.Region) == "" {
		s = s.Copy(&aws.Config{Region: aws.String(defaultS3Region)})
	}
	return s3blob.OpenBucket(ctx, s, name, nil)
}
