package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
)

// DefaultPropertiesPath is where test suites persist a snapshot of their
// configuration before starting a pipeline that reads it from disk.
const DefaultPropertiesPath = "testdata/META-INF/chanflow.properties"

const propertiesHeader = "# file generated for testing purpose"

// WriteFile persists s as a flat key=value file at path. Any previous file is
// replaced and parent directories are created as needed. Values are
// stringified with fmt.Sprint.
func WriteFile(s Store, path string) error {
	if err := ClearFile(path); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("chanflow: create config dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("chanflow: create config file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, propertiesHeader)
	for key := range s.PropertyNames() {
		v, _ := s.Get(key)
		fmt.Fprintf(w, "%s=%s\n", key, escapeValue(fmt.Sprint(v)))
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("chanflow: write config file: %w", err)
	}
	return f.Sync()
}

// ClearFile removes the file at path if it is a regular file.
func ClearFile(path string) error {
	fi, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("chanflow: stat config file: %w", err)
	}
	if !fi.Mode().IsRegular() {
		return nil
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("chanflow: remove config file: %w", err)
	}
	return nil
}

// LoadFile reads one or more key=value files into a MapConfig. All values are
// strings; later files override earlier ones. Keys are inserted in sorted
// order.
func LoadFile(paths ...string) (*MapConfig, error) {
	if len(paths) == 0 {
		paths = []string{DefaultPropertiesPath}
	}
	merged := make(map[string]string)
	for _, p := range paths {
		m, err := godotenv.Read(p)
		if err != nil {
			return nil, fmt.Errorf("chanflow: load config %q: %w", p, err)
		}
		for k, v := range m {
			merged[k] = v
		}
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	c := NewMapConfig()
	for _, k := range keys {
		c.Put(k, merged[k])
	}
	return c, nil
}

// escapeValue keeps a value on one line.
func escapeValue(v string) string {
	return strings.NewReplacer("\\", "\\\\", "\n", "\\n", "\r", "\\r").Replace(v)
}
