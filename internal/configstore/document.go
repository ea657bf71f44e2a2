package configstore

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoSection   = errors.New("no such section")
	ErrNoKey       = errors.New("no such key")
	ErrInvalidName = errors.New("invalid name")
)

// Entry is a single key/value pair of a section.
type Entry struct {
	Key   string
	Value string
}

// Section is a named group of settings. Keys are case-sensitive and keep
// their insertion order.
type Section struct {
	name   string
	keys   []string
	values map[string]string
}

func newSection(name string) *Section {
	return &Section{name: name, values: make(map[string]string)}
}

func (s *Section) Name() string { return s.name }

func (s *Section) Len() int { return len(s.keys) }

func (s *Section) Get(key string) (string, bool) {
	v, ok := s.values[key]
	return v, ok
}

func (s *Section) Has(key string) bool {
	_, ok := s.values[key]
	return ok
}

// Set stores value under key. A new key is appended after the existing
// ones; an existing key keeps its position. Surrounding whitespace is
// trimmed and line endings are normalized to \n, matching what a reload of
// the written file would produce.
func (s *Section) Set(key, value string) error {
	key = strings.TrimSpace(key)
	if err := validateKey(key); err != nil {
		return err
	}
	if _, ok := s.values[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.values[key] = normalizeValue(value)
	return nil
}

// Delete removes key and reports whether it was present.
func (s *Section) Delete(key string) bool {
	if _, ok := s.values[key]; !ok {
		return false
	}
	delete(s.values, key)
	for i, k := range s.keys {
		if k == key {
			s.keys = append(s.keys[:i], s.keys[i+1:]...)
			break
		}
	}
	return true
}

func (s *Section) Keys() []string {
	return append([]string(nil), s.keys...)
}

// Entries returns the pairs in stored order.
func (s *Section) Entries() []Entry {
	out := make([]Entry, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, Entry{Key: k, Value: s.values[k]})
	}
	return out
}

func (s *Section) clone() *Section {
	c := &Section{
		name:   s.name,
		keys:   append([]string(nil), s.keys...),
		values: make(map[string]string, len(s.values)),
	}
	for k, v := range s.values {
		c.values[k] = v
	}
	return c
}

// Document is the ordered set of sections persisted to the backing file.
type Document struct {
	sections []*Section
	index    map[string]*Section
}

func NewDocument() *Document {
	return &Document{index: make(map[string]*Section)}
}

func (d *Document) Section(name string) (*Section, bool) {
	s, ok := d.index[name]
	return s, ok
}

func (d *Document) HasSection(name string) bool {
	_, ok := d.index[name]
	return ok
}

// AddSection appends an empty section, or returns the existing one.
func (d *Document) AddSection(name string) (*Section, error) {
	if s, ok := d.index[name]; ok {
		return s, nil
	}
	if err := validateSectionName(name); err != nil {
		return nil, err
	}
	s := newSection(name)
	d.sections = append(d.sections, s)
	d.index[name] = s
	return s, nil
}

func (d *Document) RemoveSection(name string) bool {
	if _, ok := d.index[name]; !ok {
		return false
	}
	delete(d.index, name)
	for i, s := range d.sections {
		if s.name == name {
			d.sections = append(d.sections[:i], d.sections[i+1:]...)
			break
		}
	}
	return true
}

// Sections lists section names in stored order.
func (d *Document) Sections() []string {
	names := make([]string, 0, len(d.sections))
	for _, s := range d.sections {
		names = append(names, s.name)
	}
	return names
}

// Clear wipes every section.
func (d *Document) Clear() {
	d.sections = nil
	d.index = make(map[string]*Section)
}

// Get returns the value of key in section. ErrNoSection and ErrNoKey are
// distinct so callers can tell a missing section from a missing key.
func (d *Document) Get(section, key string) (string, error) {
	s, ok := d.index[section]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrNoSection, section)
	}
	v, ok := s.values[key]
	if !ok {
		return "", fmt.Errorf("%w: %q in section %q", ErrNoKey, key, section)
	}
	return v, nil
}

// GetOr returns the value of key in section or fallback.
func (d *Document) GetOr(section, key, fallback string) string {
	v, err := d.Get(section, key)
	if err != nil {
		return fallback
	}
	return v
}

// Set stores a value in an existing section.
func (d *Document) Set(section, key, value string) error {
	s, ok := d.index[section]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNoSection, section)
	}
	return s.Set(key, value)
}

func (d *Document) RemoveKey(section, key string) (bool, error) {
	s, ok := d.index[section]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrNoSection, section)
	}
	return s.Delete(key), nil
}

func (d *Document) Clone() *Document {
	c := NewDocument()
	for _, s := range d.sections {
		cs := s.clone()
		c.sections = append(c.sections, cs)
		c.index[cs.name] = cs
	}
	return c
}

// Equal reports whether both documents hold the same sections, keys,
// values and order.
func (d *Document) Equal(o *Document) bool {
	if len(d.sections) != len(o.sections) {
		return false
	}
	for i, s := range d.sections {
		os := o.sections[i]
		if s.name != os.name || len(s.keys) != len(os.keys) {
			return false
		}
		for j, k := range s.keys {
			if os.keys[j] != k || os.values[k] != s.values[k] {
				return false
			}
		}
	}
	return true
}

func validateSectionName(name string) error {
	if strings.TrimSpace(name) == "" || strings.ContainsAny(name, "]\r\n") {
		return fmt.Errorf("%w: section %q", ErrInvalidName, name)
	}
	return nil
}

// validateKey rejects keys that would not survive a write/read cycle.
func validateKey(key string) error {
	switch {
	case key == "":
		return fmt.Errorf("%w: empty key", ErrInvalidName)
	case strings.ContainsAny(key, "=:\r\n"):
		return fmt.Errorf("%w: key %q", ErrInvalidName, key)
	case strings.HasPrefix(key, "#"), strings.HasPrefix(key, ";"), strings.HasPrefix(key, "["):
		return fmt.Errorf("%w: key %q", ErrInvalidName, key)
	}
	return nil
}

// normalizeValue trims every line of v; the file format strips each
// continuation line on read.
func normalizeValue(v string) string {
	v = strings.ReplaceAll(v, "\r\n", "\n")
	v = strings.ReplaceAll(v, "\r", "\n")
	lines := strings.Split(v, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
