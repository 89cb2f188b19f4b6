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
	"testing"

	"github.com/gorse-io/basket/config"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	store, err := Open(config.BlobConfig{Type: config.BlobPOSIX, POSIX: config.POSIXConfig{Dir: t.TempDir()}})
	assert.NoError(t, err)
	assert.IsType(t, &POSIX{}, store)

	_, err = Open(config.BlobConfig{Type: config.BlobAzure})
	assert.True(t, errors.Is(err, errors.NotValid))

	_, err = Open(config.BlobConfig{Type: "ftp"})
	assert.True(t, errors.Is(err, errors.NotSupported))
}

func TestJoinTrim(t *testing.T) {
	assert.Equal(t, "a.csv", join("", "a.csv"))
	assert.Equal(t, "blob/a.csv", join("blob", "a.csv"))
	assert.Equal(t, "blob/a.csv", join("/blob/", "a.csv"))
	assert.Equal(t, "blob/", join("blob", ""))
	assert.Equal(t, "a.csv", trim("blob", "blob/a.csv"))
	assert.Equal(t, "a.csv", trim("/blob/", "blob/a.csv"))
	assert.Equal(t, "a.csv", trim("", "a.csv"))
}

func TestUploaderError(t *testing.T) {
	u := newUploader(func(r io.Reader) error {
		return errors.New("quota exceeded")
	})
	<-u.done
	_, err := u.Write([]byte("hello"))
	assert.Error(t, err)
	err = u.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

// testStore writes, lists, reads and removes files.
func testStore(t *testing.T, store Store) {
	w, done, err := store.Create("orders.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte("order_id,user_id,item_id,timestamp\n"))
	assert.NoError(t, err)
	assert.NoError(t, w.Close())
	<-done

	w, done, err = store.Create("export/fbt.csv")
	require.NoError(t, err)
	_, err = w.Write([]byte("hello"))
	assert.NoError(t, err)
	assert.NoError(t, w.Close())
	<-done

	names, err := store.List()
	assert.NoError(t, err)
	assert.ElementsMatch(t, []string{"orders.csv", "export/fbt.csv"}, names)

	r, err := store.Open("export/fbt.csv")
	require.NoError(t, err)
	content, err := io.ReadAll(r)
	assert.NoError(t, err)
	assert.Equal(t, "hello", string(content))
	assert.NoError(t, r.Close())

	assert.NoError(t, store.Remove("orders.csv"))
	assert.NoError(t, store.Remove("export/fbt.csv"))
	names, err = store.List()
	assert.NoError(t, err)
	assert.Empty(t, names)
}
