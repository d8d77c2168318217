package keystore

import (
	"encoding/base64"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLookupMiss(t *testing.T) {
	m := NewMemory()
	_, ok := m.Lookup(KindHwCode, "0x8953")
	assert.False(t, ok)
}

func TestMemorySetThenLookup(t *testing.T) {
	m := NewMemory()
	m.Set(KindHwCode, "0x8953", []byte{1, 2, 3, 4})
	got, ok := m.Lookup(KindHwCode, "0x8953")
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)
}

func TestMemoryLookupIsolatesByKind(t *testing.T) {
	m := NewMemory()
	m.Set(KindHwCode, "shared-id", []byte("hw-key"))
	m.Set(KindProjID, "shared-id", []byte("proj-key"))

	hw, ok := m.Lookup(KindHwCode, "shared-id")
	require.True(t, ok)
	assert.Equal(t, []byte("hw-key"), hw)

	proj, ok := m.Lookup(KindProjID, "shared-id")
	require.True(t, ok)
	assert.Equal(t, []byte("proj-key"), proj)
}

func TestMemoryLookupReturnsCopy(t *testing.T) {
	m := NewMemory()
	m.Set(KindHwCode, "id", []byte{9, 9})
	got, _ := m.Lookup(KindHwCode, "id")
	got[0] = 0xFF
	got2, _ := m.Lookup(KindHwCode, "id")
	assert.Equal(t, byte(9), got2[0])
}

func TestMemoryConcurrentAccess(t *testing.T) {
	m := NewMemory()
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i%26))
			m.Set(KindHwCode, id, []byte{byte(i)})
			m.Lookup(KindHwCode, id)
		}(i)
	}
	wg.Wait()
}

func TestLoadFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys.json")

	key := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	content := `[{"kind":"hw_code","id":"0x8953","key":"` + base64.StdEncoding.EncodeToString(key) + `"}]`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	ks, err := LoadFile(path)
	require.NoError(t, err)

	got, ok := ks.Lookup(KindHwCode, "0x8953")
	require.True(t, ok)
	assert.Equal(t, key, got)

	_, ok = ks.Lookup(KindProjID, "0x8953")
	assert.False(t, ok)
}

func TestLoadFileRejectsUnknownKind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"kind":"bogus","id":"x","key":"AA=="}]`), 0o600))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFileRejectsBadBase64(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keys.json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"kind":"hw_code","id":"x","key":"not-base64!!"}]`), 0o600))

	_, err := LoadFile(path)
	assert.Error(t, err)
}

func TestLoadFileMissingReturnsError(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
