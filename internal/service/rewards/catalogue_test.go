package rewards_test

import (
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oggyb/muzz-engagement/internal/service/rewards"
)

func TestPick_WalksCumulativeWeights(t *testing.T) {
	c := rewards.DefaultCatalogue()
	require.Equal(t, 100, c.TotalWeight())

	cases := map[float64]string{
		0:     rewards.RewardBoost,
		24.99: rewards.RewardBoost,
		25:    rewards.RewardExtraLike,
		49.99: rewards.RewardExtraLike,
		50:    rewards.RewardHighlight,
		70:    rewards.RewardSuperlike,
		85:    rewards.RewardNothing,
		99.99: rewards.RewardNothing,
		// out of range falls back to the last entry
		100:         rewards.RewardNothing,
		math.Inf(1): rewards.RewardNothing,
		math.NaN():  rewards.RewardNothing,
	}
	for draw, want := range cases {
		assert.Equal(t, want, c.Pick(draw).Type, "draw=%v", draw)
	}
}

// Selection frequencies match the weights (chi-square, 4 dof, p=0.001 → 18.47).
func TestSelect_ConvergesToWeights(t *testing.T) {
	c := rewards.DefaultCatalogue()
	src := rand.New(rand.NewPCG(42, 1024))

	const trials = 100_000
	counts := map[string]int{}
	for i := 0; i < trials; i++ {
		counts[c.Select(src).Type]++
	}

	chi2 := 0.0
	for _, r := range c.Entries() {
		expected := float64(trials) * float64(r.Weight) / float64(c.TotalWeight())
		diff := float64(counts[r.Type]) - expected
		chi2 += diff * diff / expected
	}
	assert.Less(t, chi2, 18.47, "counts=%v", counts)
}

func TestNewCatalogue_Validation(t *testing.T) {
	_, err := rewards.NewCatalogue(nil)
	assert.Error(t, err)

	_, err = rewards.NewCatalogue([]rewards.Reward{{Type: "jackpot", Weight: 1}})
	assert.ErrorContains(t, err, "unknown type")

	_, err = rewards.NewCatalogue([]rewards.Reward{{Type: rewards.RewardExtraLike, Weight: 0}})
	assert.ErrorContains(t, err, "positive weight")

	_, err = rewards.NewCatalogue([]rewards.Reward{{Type: rewards.RewardBoost, Weight: 5}})
	assert.ErrorContains(t, err, "durationMinutes")
}

func TestLoadCatalogue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rewards.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rewards:
  - type: boost
    weight: 3
    durationMinutes: 15
    label: Quick boost
  - type: nothing
    weight: 1
`), 0o600))

	c, err := rewards.LoadCatalogue(path)
	require.NoError(t, err)
	assert.Equal(t, 4, c.TotalWeight())

	entries := c.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, 15, entries[0].Value())
	assert.Equal(t, "nothing", entries[1].Label)

	_, err = rewards.LoadCatalogue(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	def, err := rewards.CatalogueFromFile("")
	require.NoError(t, err)
	assert.Len(t, def.Entries(), 5)
}

func TestReward_Value(t *testing.T) {
	for _, r := range rewards.DefaultCatalogue().Entries() {
		switch r.Type {
		case rewards.RewardBoost:
			assert.Equal(t, 30, r.Value())
		case rewards.RewardHighlight:
			assert.Equal(t, 60, r.Value())
		case rewards.RewardNothing:
			assert.Equal(t, 0, r.Value())
		default:
			assert.Equal(t, 1, r.Value())
		}
	}
}
