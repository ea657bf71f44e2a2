package config

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"eventsite/internal/configstore"
)

// defaultsFile is the TOML layout of SITE_DEFAULTS_FILE:
//
//	sections = ["SPONSORS"]
//
//	[[default]]
//	section = "HOME"
//	key = "text"
//	value = "Welcome to Summer Rave!"
type defaultsFile struct {
	Sections []string `toml:"sections"`
	Defaults []struct {
		Section string `toml:"section"`
		Key     string `toml:"key"`
		Value   string `toml:"value"`
	} `toml:"default"`
}

// LoadDefaults reads extra required sections and seed values. Entries keep
// the order of the file.
func LoadDefaults(path string) ([]string, []configstore.Default, error) {
	var f defaultsFile
	md, err := toml.DecodeFile(path, &f)
	if err != nil {
		return nil, nil, fmt.Errorf("read defaults file %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, nil, fmt.Errorf("defaults file %s: unknown keys %v", path, undecoded)
	}

	defaults := make([]configstore.Default, 0, len(f.Defaults))
	for i, d := range f.Defaults {
		if d.Section == "" || d.Key == "" {
			return nil, nil, fmt.Errorf("defaults file %s: entry %d needs section and key", path, i+1)
		}
		defaults = append(defaults, configstore.Default{Section: d.Section, Key: d.Key, Value: d.Value})
	}
	return f.Sections, defaults, nil
}
