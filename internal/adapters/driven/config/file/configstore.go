package file

import (
	"errors"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"github.com/samber/oops"

	"github.com/custodia-labs/sercha-rag/internal/core/domain"
	"github.com/custodia-labs/sercha-rag/internal/core/ports/driven"
)

// Ensure ConfigStore implements the interface.
var _ driven.ConfigStore = (*ConfigStore)(nil)

// FileName is the configuration file created inside the config directory.
const FileName = "config.toml"

// ConfigStore keeps settings in a TOML file.
//
// Values are addressed by dotted keys ("embedding.model", "pipeline.chunker.overlap")
// and written back as nested tables. A key may hold a value or be the prefix
// of other keys, never both.
type ConfigStore struct {
	mu     sync.RWMutex
	path   string
	values map[string]any
}

// DefaultDir returns ~/.sercha-rag.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", oops.Code("config.home").In("config").Wrapf(err, "locate home directory")
	}
	return filepath.Join(home, ".sercha-rag"), nil
}

// NewConfigStore opens the config file in dir, creating dir when missing.
// An empty dir selects DefaultDir.
func NewConfigStore(dir string) (*ConfigStore, error) {
	if dir == "" {
		d, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		dir = d
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, oops.Code("config.mkdir").In("config").With("dir", dir).Wrapf(err, "create config directory")
	}

	s := &ConfigStore{
		path:   filepath.Join(dir, FileName),
		values: make(map[string]any),
	}
	if err := s.Load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the configuration file path.
func (s *ConfigStore) Path() string {
	return s.path
}

// Get returns the raw value stored under key.
func (s *ConfigStore) Get(key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// GetString returns key as a string, or "" for a missing or non-string value.
func (s *ConfigStore) GetString(key string) string {
	v, _ := s.Get(key)
	str, _ := v.(string)
	return str
}

// GetInt returns key as an int. Floats with no fractional part are accepted
// since hand-edited files often write "768.0".
func (s *ConfigStore) GetInt(key string) int {
	v, _ := s.Get(key)
	switch n := v.(type) {
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		if n == math.Trunc(n) {
			return int(n)
		}
	}
	return 0
}

// GetFloat returns key as a float64, converting integers.
func (s *ConfigStore) GetFloat(key string) float64 {
	v, _ := s.Get(key)
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}

// GetStringSlice returns key as a list of strings. A lone string is treated
// as a one-element list; non-string array items are skipped.
func (s *ConfigStore) GetStringSlice(key string) []string {
	v, _ := s.Get(key)
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...)
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if str, ok := item.(string); ok {
				out = append(out, str)
			}
		}
		return out
	case string:
		if list == "" {
			return nil
		}
		return []string{list}
	}
	return nil
}

// Set stores value under key and writes the file.
func (s *ConfigStore) Set(key string, value any) error {
	if err := checkKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if other, clash := s.conflict(key); clash {
		return oops.Code("config.key_conflict").In("config").With("key", key, "existing", other).
			Wrapf(domain.ErrValidation, "key %q overlaps existing key %q", key, other)
	}

	prev, had := s.values[key]
	s.values[key] = value
	if err := s.write(); err != nil {
		if had {
			s.values[key] = prev
		} else {
			delete(s.values, key)
		}
		return err
	}
	return nil
}

// Save writes the current values to the file.
func (s *ConfigStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write()
}

// Load replaces the in-memory values with the file's contents. A missing
// file leaves the store empty.
func (s *ConfigStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.values = make(map[string]any)
		return nil
	}
	if err != nil {
		return oops.Code("config.read").In("config").With("path", s.path).Wrapf(err, "read config")
	}

	var tree map[string]any
	if err := toml.Unmarshal(raw, &tree); err != nil {
		return oops.Code("config.parse").In("config").With("path", s.path).Wrapf(err, "parse config")
	}

	values := make(map[string]any)
	flatten(values, "", tree)
	s.values = values
	return nil
}

// write encodes the values as nested tables and replaces the file atomically.
// Caller holds mu.
func (s *ConfigStore) write() error {
	raw, err := toml.Marshal(nest(s.values))
	if err != nil {
		return oops.Code("config.encode").In("config").Wrapf(err, "encode config")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), FileName+".*")
	if err != nil {
		return oops.Code("config.write").In("config").With("path", s.path).Wrapf(err, "write config")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return oops.Code("config.write").In("config").With("path", s.path).Wrapf(err, "write config")
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return oops.Code("config.write").In("config").With("path", s.path).Wrapf(err, "write config")
	}
	if err := tmp.Close(); err != nil {
		return oops.Code("config.write").In("config").With("path", s.path).Wrapf(err, "write config")
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return oops.Code("config.write").In("config").With("path", s.path).Wrapf(err, "replace config")
	}
	return nil
}

// conflict reports a stored key that is a dotted prefix of key, or that key
// is a prefix of. Caller holds mu.
func (s *ConfigStore) conflict(key string) (string, bool) {
	for existing := range s.values {
		if strings.HasPrefix(existing, key+".") || strings.HasPrefix(key, existing+".") {
			return existing, true
		}
	}
	return "", false
}

// checkKey rejects empty keys and empty path segments such as "a..b".
func checkKey(key string) error {
	if key == "" {
		return oops.Code("config.invalid_key").In("config").Wrapf(domain.ErrValidation, "config key is empty")
	}
	for _, part := range strings.Split(key, ".") {
		if part == "" {
			return oops.Code("config.invalid_key").In("config").With("key", key).
				Wrapf(domain.ErrValidation, "config key %q has an empty segment", key)
		}
	}
	return nil
}

// nest turns {"a.b": 1} into {"a": {"b": 1}}. Keys are visited in order so
// the output is deterministic.
func nest(values map[string]any) map[string]any {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	root := make(map[string]any)
	for _, key := range keys {
		parts := strings.Split(key, ".")
		table := root
		for _, part := range parts[:len(parts)-1] {
			child, ok := table[part].(map[string]any)
			if !ok {
				child = make(map[string]any)
				table[part] = child
			}
			table = child
		}
		table[parts[len(parts)-1]] = values[key]
	}
	return root
}

// flatten writes every leaf of tree into dst under its dotted key.
func flatten(dst map[string]any, prefix string, tree map[string]any) {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			flatten(dst, key, sub)
			continue
		}
		dst[key] = v
	}
}
