package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/xaenox/lingua-bot/internal/jsonx"
)

// ReadJSONFile decodes the document at path into v. A missing file leaves v
// untouched and reports false.
func ReadJSONFile(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error reading %s: %w", path, err)
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := jsonx.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("error decoding %s: %w", path, err)
	}
	return true, nil
}

// WriteJSONFile rewrites the whole document at path through a temporary file
// in the same directory.
func WriteJSONFile(path string, v interface{}) error {
	data, err := jsonx.MarshalIndent(v)
	if err != nil {
		return fmt.Errorf("error encoding %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
