package evidence

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxRulesFileSize = 1024 * 1024

// LoadRules reads a YAML rules file layered over DefaultRules.
//
// Map entries (types) merge with the defaults so a file may override a
// single document type; list entries (levels, authorities, ...) replace the
// default list when present.
func LoadRules(path string) (*Rules, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat rules file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("rules path %s is a directory", path)
	}
	if info.Size() > maxRulesFileSize {
		return nil, fmt.Errorf("rules file %s exceeds %d bytes", path, maxRulesFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules parses YAML rules layered over DefaultRules.
func ParseRules(data []byte) (*Rules, error) {
	k := koanf.New(".")
	if err := k.Load(rawbytes.Provider(data), yaml.Parser()); err != nil {
		return nil, fmt.Errorf("parsing rules: %w", err)
	}

	rules := DefaultRules()
	if err := k.Unmarshal("", rules); err != nil {
		return nil, fmt.Errorf("decoding rules: %w", err)
	}

	normalized := make(map[string]TypeRule, len(rules.Types))
	for name, rule := range rules.Types {
		normalized[NormalizeType(name)] = rule
	}
	rules.Types = normalized

	if err := rules.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules: %w", err)
	}
	return rules, nil
}
