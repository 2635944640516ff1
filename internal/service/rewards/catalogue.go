package rewards

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// Reward types.
const (
	RewardBoost     = "boost"
	RewardExtraLike = "extra_like"
	RewardHighlight = "highlight"
	RewardSuperlike = "superlike"
	RewardNothing   = "nothing"
)

// timed rewards expire after DurationMinutes; the rest are permanent.
var rewardKinds = map[string]struct{ timed bool }{
	RewardBoost:     {timed: true},
	RewardExtraLike: {},
	RewardHighlight: {timed: true},
	RewardSuperlike: {},
	RewardNothing:   {},
}

// Reward is one catalogue entry.
type Reward struct {
	Type            string `yaml:"type" json:"type"`
	Weight          int    `yaml:"weight" json:"-"`
	DurationMinutes int    `yaml:"durationMinutes" json:"durationMinutes,omitempty"`
	Label           string `yaml:"label" json:"label"`
}

// Timed reports whether the reward creates an expiring bonus.
func (r Reward) Timed() bool { return rewardKinds[r.Type].timed }

// Value is the number stored in reward_spins.reward_value: minutes for timed
// rewards, quantity otherwise.
func (r Reward) Value() int {
	switch {
	case r.Type == RewardNothing:
		return 0
	case r.Timed():
		return r.DurationMinutes
	default:
		return 1
	}
}

// Catalogue is an immutable weighted reward list.
type Catalogue struct {
	entries []Reward
	total   int
}

// DefaultCatalogue is used when no catalogue file is configured.
func DefaultCatalogue() *Catalogue {
	c, err := NewCatalogue([]Reward{
		{Type: RewardBoost, Weight: 25, DurationMinutes: 30, Label: "30 minute boost"},
		{Type: RewardExtraLike, Weight: 25, Label: "Extra like"},
		{Type: RewardHighlight, Weight: 20, DurationMinutes: 60, Label: "1 hour highlight"},
		{Type: RewardSuperlike, Weight: 15, Label: "Superlike"},
		{Type: RewardNothing, Weight: 15, Label: "Better luck next time"},
	})
	if err != nil {
		panic(err)
	}
	return c
}

// NewCatalogue validates entries and freezes them in order.
func NewCatalogue(entries []Reward) (*Catalogue, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("catalogue has no rewards")
	}
	c := &Catalogue{entries: make([]Reward, len(entries))}
	for i, r := range entries {
		kind, ok := rewardKinds[r.Type]
		if !ok {
			return nil, fmt.Errorf("reward at index %d has unknown type %q", i, r.Type)
		}
		if r.Weight <= 0 {
			return nil, fmt.Errorf("reward at index %d (%s) needs a positive weight", i, r.Type)
		}
		if kind.timed && r.DurationMinutes <= 0 {
			return nil, fmt.Errorf("reward at index %d (%s) needs durationMinutes", i, r.Type)
		}
		if r.Label == "" {
			r.Label = r.Type
		}
		c.entries[i] = r
		c.total += r.Weight
	}
	return c, nil
}

type catalogueFile struct {
	Rewards []Reward `yaml:"rewards"`
}

// LoadCatalogue reads a YAML catalogue. Relative paths resolve against the
// working directory.
func LoadCatalogue(path string) (*Catalogue, error) {
	if !filepath.IsAbs(path) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get working directory: %w", err)
		}
		path = filepath.Join(wd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", path, err)
	}

	var f catalogueFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", path, err)
	}
	return NewCatalogue(f.Rewards)
}

// CatalogueFromFile returns the default catalogue for an empty path.
func CatalogueFromFile(path string) (*Catalogue, error) {
	if path == "" {
		return DefaultCatalogue(), nil
	}
	return LoadCatalogue(path)
}

// Entries returns a copy of the rewards in catalogue order.
func (c *Catalogue) Entries() []Reward {
	return append([]Reward(nil), c.entries...)
}

// TotalWeight is the sum of all weights.
func (c *Catalogue) TotalWeight() int { return c.total }

// Pick maps draw ∈ [0, TotalWeight) to the first entry whose cumulative weight
// exceeds it. Out-of-range draws fall back to the last entry.
func (c *Catalogue) Pick(draw float64) Reward {
	cumulative := 0.0
	for _, r := range c.entries {
		cumulative += float64(r.Weight)
		if cumulative > draw {
			return r
		}
	}
	return c.entries[len(c.entries)-1]
}

// Source yields uniform values in [0, 1).
type Source interface {
	Float64() float64
}

// Select draws one reward from src.
func (c *Catalogue) Select(src Source) Reward {
	return c.Pick(src.Float64() * float64(c.total))
}
