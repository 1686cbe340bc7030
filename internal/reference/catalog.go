package reference

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultSpeaker is used when a request names no speaker type.
const DefaultSpeaker = "male"

// ErrUnknownSpeaker is returned by Lookup for keys not in the catalog.
var ErrUnknownSpeaker = errors.New("unknown speaker type")

//go:embed profiles.yaml
var builtinProfiles []byte

// Vowel is one reference point on the F1/F2 plane.
type Vowel struct {
	Symbol string  `yaml:"vowel" json:"vowel"`
	F1     float64 `yaml:"f1" json:"f1"`
	F2     float64 `yaml:"f2" json:"f2"`
}

// PlotConfig describes the axes a client should draw for a speaker type.
type PlotConfig struct {
	F1Range    [2]float64 `yaml:"f1_range" json:"f1_range"`
	F2Range    [2]float64 `yaml:"f2_range" json:"f2_range"`
	InvertAxes bool       `yaml:"invert_axes" json:"invert_axes"`
}

// Profile is the reference table for one speaker type.
type Profile struct {
	Speaker string     `yaml:"key" json:"speaker_type"`
	Vowels  []Vowel    `yaml:"vowels" json:"vowel_references"`
	Plot    PlotConfig `yaml:"plot_config" json:"plot_config"`
}

// Catalog holds every speaker profile. It is built once and never modified,
// so it can be shared between goroutines without locking.
type Catalog struct {
	profiles map[string]*Profile
	order    []string
}

type document struct {
	Speakers []Profile `yaml:"speakers"`
}

// Builtin returns the catalog compiled into the binary.
func Builtin() (*Catalog, error) {
	return Parse(builtinProfiles)
}

// Load reads a catalog from path, or the builtin catalog when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Builtin()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read reference file %s: %w", path, err)
	}

	catalog, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("reference file %s: %w", path, err)
	}
	return catalog, nil
}

// Parse builds a catalog from YAML.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse reference tables: %w", err)
	}

	if len(doc.Speakers) == 0 {
		return nil, fmt.Errorf("no speaker profiles defined")
	}

	catalog := &Catalog{
		profiles: make(map[string]*Profile, len(doc.Speakers)),
		order:    make([]string, 0, len(doc.Speakers)),
	}

	for i := range doc.Speakers {
		profile := doc.Speakers[i]
		if err := profile.validate(); err != nil {
			return nil, fmt.Errorf("speaker %d: %w", i, err)
		}
		if _, exists := catalog.profiles[profile.Speaker]; exists {
			return nil, fmt.Errorf("duplicate speaker type %q", profile.Speaker)
		}
		catalog.profiles[profile.Speaker] = &profile
		catalog.order = append(catalog.order, profile.Speaker)
	}

	return catalog, nil
}

func (p *Profile) validate() error {
	if p.Speaker == "" {
		return fmt.Errorf("key cannot be empty")
	}
	if len(p.Vowels) == 0 {
		return fmt.Errorf("%s: no vowels defined", p.Speaker)
	}

	seen := make(map[string]bool, len(p.Vowels))
	for _, v := range p.Vowels {
		if v.Symbol == "" {
			return fmt.Errorf("%s: vowel symbol cannot be empty", p.Speaker)
		}
		if seen[v.Symbol] {
			return fmt.Errorf("%s: duplicate vowel %q", p.Speaker, v.Symbol)
		}
		seen[v.Symbol] = true
		if v.F1 <= 0 || v.F2 <= 0 {
			return fmt.Errorf("%s: vowel %q has non-positive formants", p.Speaker, v.Symbol)
		}
	}

	if p.Plot.F1Range[0] >= p.Plot.F1Range[1] || p.Plot.F2Range[0] >= p.Plot.F2Range[1] {
		return fmt.Errorf("%s: plot ranges must be increasing", p.Speaker)
	}
	return nil
}

// Lookup returns a copy of the profile for speaker. Unknown keys return
// ErrUnknownSpeaker and an empty profile.
func (c *Catalog) Lookup(speaker string) (Profile, error) {
	p, ok := c.profiles[speaker]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownSpeaker, speaker)
	}

	out := *p
	out.Vowels = append([]Vowel(nil), p.Vowels...)
	return out, nil
}

// Speakers returns the speaker keys in file order.
func (c *Catalog) Speakers() []string {
	return append([]string(nil), c.order...)
}
