// Copyright 2026 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package remote

import (
	"context"
	"errors"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/kraklabs/testsel/internal/xerrors"
)

// S3Client is the subset of the AWS SDK's S3 client this backend needs,
// letting tests substitute a fake without standing up real credentials.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Backend implements Backend against an S3-compatible object store,
// using entity-tag-based conditional GET: a sidecar "<name>.etag" file next
// to each cached download remembers the last ETag (4.G).
type S3Backend struct {
	Client S3Client
	Bucket string
}

var _ Backend = (*S3Backend)(nil)

func (b *S3Backend) Upload(ctx context.Context, localPath, remoteKey string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return xerrors.FileUnreadable(localPath, err)
	}
	defer f.Close()
	_, err = b.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.Bucket),
		Key:    aws.String(remoteKey),
		Body:   f,
	})
	if err != nil {
		return translateS3Error(remoteKey, err)
	}
	return nil
}

func (b *S3Backend) Download(ctx context.Context, remoteKey, localPath string) (bool, error) {
	head, err := b.Client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(b.Bucket), Key: aws.String(remoteKey)})
	if err != nil {
		return false, translateS3Error(remoteKey, err)
	}
	newETag := aws.ToString(head.ETag)

	etagPath := localPath + ".etag"
	if cached, err := os.ReadFile(etagPath); err == nil {
		if strings.TrimSpace(string(cached)) == newETag {
			return false, nil // 304-equivalent cache hit
		}
	}

	out, err := b.Client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(b.Bucket), Key: aws.String(remoteKey)})
	if err != nil {
		return false, translateS3Error(remoteKey, err)
	}
	defer out.Body.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return false, xerrors.Internal("mkdir for s3 download", err)
	}
	tmp := localPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return false, xerrors.Internal("create s3 download temp file", err)
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return false, xerrors.Internal("copy s3 download bytes", err)
	}
	f.Close()
	if err := os.Rename(tmp, localPath); err != nil {
		return false, xerrors.Internal("rename s3 download temp file", err)
	}
	if err := os.WriteFile(etagPath, []byte(newETag), 0o644); err != nil {
		return false, xerrors.Internal("write etag sidecar", err)
	}
	return true, nil
}

// ListBaselines recurses under prefix, since object stores have no
// directories to bound the scan by (Open Question #2).
func (b *S3Backend) ListBaselines(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	var token *string
	for {
		resp, err := b.Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.Bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, translateS3Error(prefix, err)
		}
		for _, obj := range resp.Contents {
			key := aws.ToString(obj.Key)
			if strings.HasSuffix(key, ".db") {
				out = append(out, key)
			}
		}
		if resp.IsTruncated == nil || !*resp.IsTruncated {
			break
		}
		token = resp.NextContinuationToken
	}
	return out, nil
}

func (b *S3Backend) DownloadAll(ctx context.Context, localDir, prefix string) ([]string, error) {
	keys, err := b.ListBaselines(ctx, prefix)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, key := range keys {
		dst := filepath.Join(localDir, path.Base(key))
		if _, err := b.Download(ctx, key, dst); err != nil {
			return out, err
		}
		out = append(out, dst)
	}
	return out, nil
}

// translateS3Error maps AWS API errors into this module's typed taxonomy:
// NotFound for a missing key, AuthError for rejected credentials, otherwise
// an internal error.
func translateS3Error(key string, err error) error {
	var notFound *types.NoSuchKey
	if errors.As(err, &notFound) {
		return xerrors.NotFound(key)
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return xerrors.NotFound(key)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return xerrors.AuthError(key, err)
		}
	}
	return xerrors.Internal("s3 operation failed for "+key, err)
}
