/*
Copyright The Helm Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package driver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/pkg/errors"
)

var _ Driver = (*S3)(nil)

// S3DriverName is the string name of this driver.
const S3DriverName = "S3"

// S3Client is the subset of the S3 API used by the S3 driver.
type S3Client interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3 stores assets in an S3 bucket.
//
// Asset bytes live under <prefix>/blobs/<path> and their records under
// <prefix>/meta/<path>.json. The record is written last, so a reader never
// sees a record without its bytes.
type S3 struct {
	bucket string
	prefix string
	client S3Client
	Log    func(string, ...interface{})
}

// S3Options configures NewS3.
type S3Options struct {
	Bucket string
	Prefix string
	// Endpoint overrides the S3 endpoint, for S3 compatible stores.
	Endpoint     string
	UsePathStyle bool
}

// NewS3 initializes a new S3 driver from the default AWS configuration
// chain.
func NewS3(ctx context.Context, opts S3Options, logger func(string, ...interface{})) (*S3, error) {
	var loadOpts []func(*config.LoadOptions) error
	if opts.Endpoint != "" {
		resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, _ ...interface{}) (aws.Endpoint, error) {
			if service == s3.ServiceID {
				return aws.Endpoint{
					PartitionID:       "aws",
					URL:               opts.Endpoint,
					SigningRegion:     region,
					HostnameImmutable: true,
				}, nil
			}
			return aws.Endpoint{}, &aws.EndpointNotFoundError{}
		})
		loadOpts = append(loadOpts, config.WithEndpointResolverWithOptions(resolver))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "unable to load aws configuration")
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = opts.UsePathStyle
	})
	return NewS3WithClient(client, opts.Bucket, opts.Prefix, logger), nil
}

// NewS3WithClient initializes a new S3 driver over an existing client.
func NewS3WithClient(client S3Client, bucket, prefix string, logger func(string, ...interface{})) *S3 {
	if logger == nil {
		logger = func(_ string, _ ...interface{}) {}
	}
	return &S3{
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		client: client,
		Log:    logger,
	}
}

// Name returns the name of the driver.
func (s *S3) Name() string {
	return S3DriverName
}

// Get returns the record stored at p or returns ErrAssetNotFound.
func (s *S3) Get(p string) (*Record, error) {
	blobKey, metaKey, err := s.keys(p)
	if err != nil {
		return nil, err
	}
	rec, err := s.readRecord(metaKey)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, newErrAssetNotFound(p)
		}
		return nil, err
	}
	data, err := s.read(blobKey)
	if err != nil {
		s.Log("unable to read asset %s: %v", p, err)
		if isNoSuchKey(err) {
			return nil, newErrAssetNotFound(p)
		}
		return nil, errors.Wrapf(err, "unable to read asset %s", p)
	}
	rec.Data = data
	return rec, nil
}

// List returns the list of all records such that filter(record) == true,
// ordered by path.
func (s *S3) List(filter func(*Record) bool) ([]*Record, error) {
	prefix := s.key(diskMetaDir) + "/"
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}

	var ls []*Record
	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(context.Background())
		if err != nil {
			return nil, errors.Wrapf(err, "unable to list bucket %s", s.bucket)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !strings.HasSuffix(key, diskMetaExt) {
				continue
			}
			rec, err := s.readRecord(key)
			if err != nil {
				s.Log("list: skipping unreadable record %s: %v", key, err)
				continue
			}
			if filter(rec) {
				ls = append(ls, rec)
			}
		}
	}
	sort.Slice(ls, func(i, j int) bool { return ls[i].Path < ls[j].Path })
	return ls, nil
}

// Put stores rec, replacing any record at the same path.
func (s *S3) Put(rec *Record) error {
	blobKey, metaKey, err := s.keys(rec.Path)
	if err != nil {
		return err
	}
	meta, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "unable to convert record to json")
	}

	_, err = s.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(blobKey),
		Body:        bytes.NewReader(rec.Data),
		ContentType: aws.String(rec.ContentType),
		Metadata: map[string]string{
			"kind":  rec.Kind,
			"owner": "chartrepo",
		},
	})
	if err != nil {
		s.Log("unable to write asset %s: %v", rec.Path, err)
		return errors.Wrapf(err, "unable to write asset %s", rec.Path)
	}
	_, err = s.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(metaKey),
		Body:        bytes.NewReader(meta),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		s.Log("unable to write record %s: %v", rec.Path, err)
		return errors.Wrapf(err, "unable to write record %s", rec.Path)
	}
	return nil
}

// Delete deletes the record at p or returns ErrAssetNotFound.
func (s *S3) Delete(p string) error {
	blobKey, metaKey, err := s.keys(p)
	if err != nil {
		return err
	}
	exists, err := s.exists(metaKey)
	if err != nil {
		return errors.Wrapf(err, "unable to check asset %s", p)
	}
	if !exists {
		return newErrAssetNotFound(p)
	}
	for _, key := range []string{metaKey, blobKey} {
		_, err := s.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			s.Log("unable to delete object %s: %v", key, err)
			return errors.Wrapf(err, "unable to delete object %s", key)
		}
	}
	return nil
}

func (s *S3) keys(p string) (string, string, error) {
	clean := path.Clean("/" + p)
	if clean == "/" || clean != "/"+strings.TrimPrefix(p, "/") {
		return "", "", &StorageDriverError{Path: p, Err: ErrInvalidPath}
	}
	clean = strings.TrimPrefix(clean, "/")
	return s.key(diskBlobDir, clean), s.key(diskMetaDir, clean+diskMetaExt), nil
}

func (s *S3) key(elem ...string) string {
	if s.prefix == "" {
		return path.Join(elem...)
	}
	return path.Join(append([]string{s.prefix}, elem...)...)
}

func (s *S3) read(key string) ([]byte, error) {
	out, err := s.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *S3) readRecord(key string) (*Record, error) {
	d, err := s.read(key)
	if err != nil {
		return nil, err
	}
	rec := &Record{}
	if err := json.Unmarshal(d, rec); err != nil {
		return nil, errors.Wrapf(err, "unable to unmarshal object %s", key)
	}
	return rec, nil
}

func (s *S3) exists(key string) (bool, error) {
	_, err := s.client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		var responseError *awshttp.ResponseError
		if errors.As(err, &responseError) && responseError.HTTPStatusCode() == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func isNoSuchKey(err error) bool {
	var nsk *types.NoSuchKey
	return errors.As(err, &nsk)
}
