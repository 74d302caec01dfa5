package yolov8

import (
	"testing"

	"github.com/nvr-ai/go-targeting/models"
	"github.com/nvr-ai/go-targeting/models/postprocess"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// head builds an attribute-major output from one row per anchor.
func head(rows [][]float32) []float32 {
	attrs, anchors := len(rows[0]), len(rows)
	out := make([]float32, attrs*anchors)
	for a, row := range rows {
		for i, v := range row {
			out[i*anchors+a] = v
		}
	}
	return out
}

func params() Params {
	return Params{
		InputWidth:  640,
		InputHeight: 640,
		ImageWidth:  1280,
		ImageHeight: 320,
		Confidence:  0.25,
		Classes:     models.NewOutputClassSet(models.ModelFamilyDataset, []string{"weed", "crop"}),
	}
}

func TestCandidates(t *testing.T) {
	output := head([][]float32{
		{320, 320, 100, 50, 0.9, 0.1},
		{100, 100, 20, 20, 0.1, 0.2},
		{500, 200, 40, 60, 0.3, 0.6},
	})

	boxes, err := Candidates(output, []int64{1, 6, 3}, params())
	require.NoError(t, err)
	require.Len(t, boxes, 2)

	assert.Equal(t, "weed", boxes[0].Label)
	assert.Equal(t, 0, boxes[0].ClassID)
	assert.InDelta(t, 0.9, boxes[0].Confidence, 1e-6)
	assert.InDelta(t, 540, boxes[0].X1, 1e-3)
	assert.InDelta(t, 147.5, boxes[0].Y1, 1e-3)
	assert.InDelta(t, 740, boxes[0].X2, 1e-3)
	assert.InDelta(t, 172.5, boxes[0].Y2, 1e-3)

	assert.Equal(t, "crop", boxes[1].Label)
	assert.Equal(t, 1, boxes[1].ClassID)
	assert.InDelta(t, 960, boxes[1].X1, 1e-3)
	assert.InDelta(t, 85, boxes[1].Y1, 1e-3)
}

func TestCandidatesDoesNotModifyOutput(t *testing.T) {
	output := head([][]float32{
		{320, 320, 100, 50, 0.9, 0.1},
		{100, 100, 20, 20, 0.1, 0.2},
	})
	original := append([]float32(nil), output...)

	_, err := Candidates(output, []int64{1, 6, 2}, params())
	require.NoError(t, err)
	assert.Equal(t, original, output)
}

func TestCandidatesUnknownClassGetsGeneratedLabel(t *testing.T) {
	p := params()
	p.Classes = models.NewOutputClassSet(models.ModelFamilyDataset, []string{"weed"})

	boxes, err := Candidates(head([][]float32{{10, 10, 4, 4, 0.1, 0.8}}), []int64{6, 1}, p)
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.Equal(t, "class_1", boxes[0].Label)
}

func TestDecodeAppliesNMS(t *testing.T) {
	output := head([][]float32{
		{320, 320, 100, 100, 0.7, 0},
		{322, 322, 100, 100, 0.9, 0},
		{100, 100, 50, 50, 0.5, 0},
	})

	boxes, err := Decode(output, []int64{1, 6, 3}, params(), postprocess.DefaultNMSConfig())
	require.NoError(t, err)
	require.Len(t, boxes, 2)
	assert.InDelta(t, 0.9, boxes[0].Confidence, 1e-6)
	assert.InDelta(t, 0.5, boxes[1].Confidence, 1e-6)
}

func TestDecodeNoDetections(t *testing.T) {
	boxes, err := Decode(head([][]float32{{1, 1, 1, 1, 0.01, 0.02}}), []int64{1, 6, 1}, params(), postprocess.DefaultNMSConfig())
	require.NoError(t, err)
	assert.NotNil(t, boxes)
	assert.Empty(t, boxes)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		output []float32
		shape  []int64
		mutate func(*Params)
	}{
		{"bad rank", make([]float32, 6), []int64{1, 1, 6, 1}, nil},
		{"no class scores", make([]float32, 4), []int64{1, 4, 1}, nil},
		{"short output", make([]float32, 5), []int64{1, 6, 1}, nil},
		{"zero image size", make([]float32, 6), []int64{1, 6, 1}, func(p *Params) { p.ImageWidth = 0 }},
		{"missing classes", make([]float32, 6), []int64{1, 6, 1}, func(p *Params) { p.Classes = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := params()
			if tt.mutate != nil {
				tt.mutate(&p)
			}
			_, err := Decode(tt.output, tt.shape, p, postprocess.DefaultNMSConfig())
			assert.Error(t, err)
		})
	}
}

func TestLimit(t *testing.T) {
	boxes, err := Candidates(head([][]float32{
		{10, 10, 2, 2, 0.9, 0},
		{50, 50, 2, 2, 0.8, 0},
		{90, 90, 2, 2, 0.7, 0},
	}), []int64{1, 6, 3}, params())
	require.NoError(t, err)

	assert.Len(t, Limit(boxes, 2), 2)
	assert.Len(t, Limit(boxes, 0), 3)
}
