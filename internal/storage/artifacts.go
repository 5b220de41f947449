package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// MirrorDir uploads the named files from dir under prefix. Files that do not
// exist are skipped.
func MirrorDir(ctx context.Context, store ObjectStorage, dir, prefix string, names []string) (int, error) {
	uploaded := 0
	for _, name := range names {
		src := filepath.Join(dir, name)
		if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := store.UploadFile(ctx, path.Join(prefix, name), src); err != nil {
			return uploaded, err
		}
		uploaded++
	}
	return uploaded, nil
}

// RestoreDir downloads every object under prefix into dir, keeping only
// the base names listed in names.
func RestoreDir(ctx context.Context, store ObjectStorage, prefix, dir string, names []string) (int, error) {
	objects, err := store.ListObjects(ctx, strings.TrimSuffix(prefix, "/")+"/")
	if err != nil {
		return 0, err
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	restored := 0
	for _, obj := range objects {
		name := path.Base(obj.Key)
		if !wanted[name] {
			continue
		}
		if err := store.DownloadObject(ctx, obj.Key, filepath.Join(dir, name)); err != nil {
			return restored, fmt.Errorf("restore %s: %w", name, err)
		}
		restored++
	}
	return restored, nil
}
