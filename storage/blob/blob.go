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
	"io"
	"strings"

	"github.com/gorse-io/basket/config"
	"github.com/juju/errors"
)

// Store is an object storage holding the CSV files of import and export.
type Store interface {
	// Open a file for reading.
	Open(name string) (io.ReadCloser, error)
	// Create a file for writing. Close flushes the file and returns the upload error,
	// the done channel is closed afterwards.
	Create(name string) (io.WriteCloser, chan struct{}, error)
	// List names of all files.
	List() ([]string, error)
	Remove(name string) error
}

// Open creates the object storage chosen by cfg.Type.
func Open(cfg config.BlobConfig) (Store, error) {
	switch cfg.Type {
	case config.BlobPOSIX:
		return NewPOSIX(cfg.POSIX.Dir), nil
	case config.BlobS3:
		return NewS3(cfg.S3)
	case config.BlobGCS:
		return NewGCS(cfg.GCS)
	case config.BlobAzure:
		return NewAzureBlob(cfg.Azure)
	}
	return nil, errors.NotSupportedf("blob store %q", cfg.Type)
}

// uploader streams written bytes to upload running in the background.
type uploader struct {
	*io.PipeWriter
	done chan struct{}
	err  error
}

func newUploader(upload func(r io.Reader) error) *uploader {
	pr, pw := io.Pipe()
	u := &uploader{PipeWriter: pw, done: make(chan struct{})}
	go func() {
		defer close(u.done)
		u.err = upload(pr)
		// unblock writers if upload stopped early
		_ = pr.CloseWithError(io.ErrClosedPipe)
	}()
	return u
}

func (u *uploader) Close() error {
	if err := u.PipeWriter.Close(); err != nil {
		return errors.Trace(err)
	}
	<-u.done
	return errors.Trace(u.err)
}

func join(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

func trim(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return strings.TrimPrefix(strings.TrimPrefix(name, prefix), "/")
}
