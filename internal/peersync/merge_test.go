package peersync

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeBest(t *testing.T) {
	tests := []struct {
		name   string
		local  string
		remote string
		want   string
	}{
		{
			name:   "numbers keep the larger value",
			local:  `{"xp":120,"level":3}`,
			remote: `{"xp":90,"level":4}`,
			want:   `{"xp":120,"level":4}`,
		},
		{
			name:   "arrays become a sorted union",
			local:  `{"completedSkills":["loops","arrays"]}`,
			remote: `{"completedSkills":["arrays","maps"]}`,
			want:   `{"completedSkills":["arrays","loops","maps"]}`,
		},
		{
			name:   "objects merge recursively",
			local:  `{"skills":{"go":2},"name":"Ada"}`,
			remote: `{"skills":{"go":1,"sql":5}}`,
			want:   `{"skills":{"go":2,"sql":5},"name":"Ada"}`,
		},
		{
			name:   "differing strings keep the later canonical form",
			local:  `{"title":"apprentice"}`,
			remote: `{"title":"journeyman"}`,
			want:   `{"title":"journeyman"}`,
		},
		{
			name:   "null yields",
			local:  `{"badge":null}`,
			remote: `{"badge":"gold"}`,
			want:   `{"badge":"gold"}`,
		},
		{
			name:   "mixed types pick one side",
			local:  `{"v":1}`,
			remote: `{"v":"1"}`,
			want:   `{"v":1}`,
		},
		{
			name:   "top-level scalars",
			local:  `7`,
			remote: `9`,
			want:   `9`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergeBest(raw(tt.local), raw(tt.remote))
			assert.JSONEq(t, tt.want, string(got))

			swapped := MergeBest(raw(tt.remote), raw(tt.local))
			assert.JSONEq(t, string(got), string(swapped), "merge must not depend on argument order")
		})
	}
}

func TestMergeBestInvalidInput(t *testing.T) {
	assert.Nil(t, MergeBest(raw(`{`), raw(`{}`)))
	assert.Nil(t, MergeBest(raw(`{}`), raw(``)))
}

func TestMergeBestThroughPolicy(t *testing.T) {
	policy := ConflictPolicy{Strategy: StrategyMerge, Resolver: MergeBest}
	local := entry(`{"xp":10,"tags":["a"]}`, 2, 100)
	remote := entry(`{"xp":20,"tags":["b"]}`, 2, 50)

	got, outcome := policy.Resolve(local, remote, 500)
	assert.Equal(t, Merged, outcome)
	assert.JSONEq(t, `{"xp":20,"tags":["a","b"]}`, string(got.Data))
	assert.Equal(t, int64(3), got.Version)
	assert.Equal(t, int64(500), got.Timestamp)
}
