package postprocess

import (
	"testing"

	"github.com/nvr-ai/go-targeting/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func box(class int, conf, x1, y1, x2, y2 float32) common.BoundingBox {
	return common.BoundingBox{ClassID: class, Confidence: conf, X1: x1, Y1: y1, X2: x2, Y2: y2}
}

func TestApplyGreedyNMS(t *testing.T) {
	tests := []struct {
		name     string
		config   NMSConfig
		input    []common.BoundingBox
		expected []float32
	}{
		{
			name:     "empty",
			config:   DefaultNMSConfig(),
			input:    nil,
			expected: []float32{},
		},
		{
			name:   "suppresses heavy overlap",
			config: NMSConfig{IoUThreshold: 0.5, ClassAware: true},
			input: []common.BoundingBox{
				box(0, 0.6, 0, 0, 100, 100),
				box(0, 0.9, 2, 2, 102, 102),
				box(0, 0.7, 300, 300, 400, 400),
			},
			expected: []float32{0.9, 0.7},
		},
		{
			name:   "class aware keeps overlapping boxes of other classes",
			config: NMSConfig{IoUThreshold: 0.5, ClassAware: true},
			input: []common.BoundingBox{
				box(0, 0.9, 0, 0, 100, 100),
				box(1, 0.8, 0, 0, 100, 100),
			},
			expected: []float32{0.9, 0.8},
		},
		{
			name:   "class agnostic suppresses across classes",
			config: NMSConfig{IoUThreshold: 0.5},
			input: []common.BoundingBox{
				box(0, 0.9, 0, 0, 100, 100),
				box(1, 0.8, 0, 0, 100, 100),
			},
			expected: []float32{0.9},
		},
		{
			name:   "overlap at threshold is kept",
			config: NMSConfig{IoUThreshold: 0.25, ClassAware: true},
			input: []common.BoundingBox{
				box(0, 0.9, 0, 0, 100, 100),
				box(0, 0.8, 25, 25, 75, 75),
			},
			expected: []float32{0.9, 0.8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ApplyGreedyNMS(tt.input, tt.config)
			require.NotNil(t, out)

			scores := make([]float32, len(out))
			for i, b := range out {
				scores[i] = b.Confidence
			}
			assert.Equal(t, tt.expected, scores)
		})
	}
}

func TestSortByConfidenceIsStable(t *testing.T) {
	in := []common.BoundingBox{
		{Label: "a", Confidence: 0.5},
		{Label: "b", Confidence: 0.9},
		{Label: "c", Confidence: 0.5},
	}
	SortByConfidence(in)
	assert.Equal(t, []string{"b", "a", "c"}, []string{in[0].Label, in[1].Label, in[2].Label})
}
