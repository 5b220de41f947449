package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStorage struct {
	objects map[string][]byte
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: make(map[string][]byte)}
}

func (m *memoryStorage) Bucket() string { return "test" }

func (m *memoryStorage) ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for k, v := range m.objects {
		if strings.HasPrefix(k, prefix) {
			out = append(out, ObjectInfo{Key: k, Size: int64(len(v))})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memoryStorage) OpenObject(ctx context.Context, key string) (io.ReadCloser, error) {
	b, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such key %s", key)
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memoryStorage) DownloadObject(ctx context.Context, key, destPath string) error {
	b, ok := m.objects[key]
	if !ok {
		return fmt.Errorf("no such key %s", key)
	}
	return os.WriteFile(destPath, b, 0o644)
}

func (m *memoryStorage) UploadFile(ctx context.Context, key, srcPath string) error {
	b, err := os.ReadFile(srcPath)
	if err != nil {
		return err
	}
	m.objects[key] = b
	return nil
}

func TestMirrorAndRestore(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStorage()

	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "forecaster.json"), []byte(`{"a":1}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "raw_data.csv"), []byte("date\n"), 0o644))

	names := []string{"forecaster.json", "raw_data.csv", "lead_time_predictor.json"}
	n, err := MirrorDir(ctx, store, src, "models/latest", names)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Contains(t, store.objects, "models/latest/forecaster.json")

	store.objects["models/latest/unrelated.txt"] = []byte("x")

	dst := t.TempDir()
	n, err = RestoreDir(ctx, store, "models/latest", dst, names)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	b, err := os.ReadFile(filepath.Join(dst, "forecaster.json"))
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(b))
	assert.NoFileExists(t, filepath.Join(dst, "unrelated.txt"))
}
