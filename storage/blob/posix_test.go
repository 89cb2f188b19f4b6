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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPOSIX(t *testing.T) {
	testStore(t, NewPOSIX(filepath.Join(t.TempDir(), "blob")))
}

func TestPOSIXMissing(t *testing.T) {
	store := NewPOSIX(filepath.Join(t.TempDir(), "missing"))
	names, err := store.List()
	assert.NoError(t, err)
	assert.Empty(t, names)
	_, err = store.Open("orders.csv")
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestPOSIXRenameOnClose(t *testing.T) {
	dir := t.TempDir()
	store := NewPOSIX(dir)
	w, done, err := store.Create("orders.csv")
	assert.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "orders.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.NoError(t, w.Close())
	<-done
	content, err := os.ReadFile(filepath.Join(dir, "orders.csv"))
	assert.NoError(t, err)
	assert.Equal(t, "partial", string(content))
}
