// Package riskprofile holds the investor risk presets every analyst is
// framed with.
package riskprofile

import (
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

var ErrUnknownProfile = errors.New("unknown risk profile")

//go:embed profiles.yaml
var presetsYAML []byte

type Profile struct {
	Name                string  `yaml:"name"`
	Description         string  `yaml:"description"`
	PromptModifier      string  `yaml:"prompt_modifier"`
	VolatilityThreshold float64 `yaml:"volatility_threshold"`
}

// Title renders the name the way prompts show it, e.g. "RISK NEUTRAL".
func (p Profile) Title() string {
	return strings.ToUpper(strings.ReplaceAll(p.Name, "_", " "))
}

// ThresholdPercent is the volatility ceiling as a whole percentage.
func (p Profile) ThresholdPercent() int {
	return int(p.VolatilityThreshold*100 + 0.5)
}

func (p Profile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("profile name is required")
	}
	if p.VolatilityThreshold <= 0 || p.VolatilityThreshold > 1 {
		return fmt.Errorf("profile %s: volatility threshold %.2f outside (0,1]", p.Name, p.VolatilityThreshold)
	}
	return nil
}

// Set is an immutable collection of profiles keyed by name.
type Set struct {
	profiles map[string]Profile
}

type presetFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// Parse builds a Set from YAML in the embedded preset format.
func Parse(data []byte) (*Set, error) {
	var file presetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse risk profiles: %w", err)
	}
	if len(file.Profiles) == 0 {
		return nil, errors.New("no risk profiles defined")
	}
	set := &Set{profiles: make(map[string]Profile, len(file.Profiles))}
	for _, p := range file.Profiles {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := set.profiles[p.Name]; dup {
			return nil, fmt.Errorf("duplicate risk profile %s", p.Name)
		}
		p.PromptModifier = strings.TrimSpace(p.PromptModifier)
		set.profiles[p.Name] = p
	}
	return set, nil
}

var (
	defaultOnce sync.Once
	defaultSet  *Set
	defaultErr  error
)

// Presets returns the built-in profiles. The embedded file is parsed once.
func Presets() (*Set, error) {
	defaultOnce.Do(func() {
		defaultSet, defaultErr = Parse(presetsYAML)
	})
	return defaultSet, defaultErr
}

// Get looks a profile up by name. Unknown names are a configuration error.
func (s *Set) Get(name string) (Profile, error) {
	p, ok := s.profiles[name]
	if !ok {
		return Profile{}, fmt.Errorf("%w %q, available: %s", ErrUnknownProfile, name, strings.Join(s.Names(), ", "))
	}
	return p, nil
}

func (s *Set) Names() []string {
	names := make([]string, 0, len(s.profiles))
	for name := range s.profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Lookup resolves name against the built-in presets.
func Lookup(name string) (Profile, error) {
	set, err := Presets()
	if err != nil {
		return Profile{}, err
	}
	return set.Get(name)
}
