package io

import (
	"os"
	"path/filepath"
)

// write data to name, creating parent directories when missing.
//
// The content lands under a temporary name in the same directory first
// and is renamed into place, so readers listing the directory never see
// a half-written file.
//
// args:
//   - name: filepath to be written.
//   - data: file content.
//   - fmod: os.FileMode for the file.
//   - dmod: os.FileMode for newly-created directories. Directories which
//     have existed are not effected with `dmod`.
func WriteFileAtomic(name string, data []byte, fmod os.FileMode, dmod os.FileMode) error {
	dir := filepath.Dir(name)
	if err := os.MkdirAll(dir, dmod); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(name)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(fmod); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), name)
}
