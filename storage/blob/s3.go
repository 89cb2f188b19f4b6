// Copyright 2022 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package blob

import (
	"context"
	"io"

	"github.com/gorse-io/basket/config"
	"github.com/juju/errors"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3 stores files in an S3 compatible bucket.
type S3 struct {
	*minio.Client
	bucket string
	prefix string
}

func NewS3(cfg config.S3Config) (*S3, error) {
	minioClient, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &S3{
		Client: minioClient,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

func (s *S3) Open(name string) (io.ReadCloser, error) {
	object, err := s.Client.GetObject(context.Background(), s.bucket, join(s.prefix, name), minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Trace(err)
	}
	// GetObject is lazy, stat to report missing objects here
	if _, err = object.Stat(); err != nil {
		_ = object.Close()
		return nil, errors.Trace(err)
	}
	return object, nil
}

func (s *S3) Create(name string) (io.WriteCloser, chan struct{}, error) {
	u := newUploader(func(r io.Reader) error {
		_, err := s.Client.PutObject(context.Background(), s.bucket, join(s.prefix, name), r, -1, minio.PutObjectOptions{
			ContentType: "text/csv",
		})
		return errors.Trace(err)
	})
	return u, u.done, nil
}

func (s *S3) List() ([]string, error) {
	var names []string
	for object := range s.Client.ListObjects(context.Background(), s.bucket, minio.ListObjectsOptions{
		Prefix:    join(s.prefix, ""),
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, errors.Trace(object.Err)
		}
		names = append(names, trim(s.prefix, object.Key))
	}
	return names, nil
}

func (s *S3) Remove(name string) error {
	err := s.Client.RemoveObject(context.Background(), s.bucket, join(s.prefix, name), minio.RemoveObjectOptions{})
	return errors.Trace(err)
}
