package shaper

import (
	"encoding/json"
	"testing"

	"github.com/nvr-ai/go-targeting/common"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeRequest(t *testing.T, body string) []TargetInput {
	t.Helper()
	var req TargetRequest
	require.NoError(t, json.Unmarshal([]byte(body), &req))
	return req.Detections
}

func TestFormatTargetsNumbersSequentially(t *testing.T) {
	set, err := New().Shape(ImageSize{Width: 100, Height: 100}, []common.BoundingBox{
		raw("weed", 0.9, 0, 0, 10, 10),
		raw("weed", 0.8, 20, 20, 40, 40),
		raw("weed", 0.7, 50, 50, 90, 90),
	})
	require.NoError(t, err)

	file, err := FormatTargets(TargetsFromSet(set))
	require.NoError(t, err)

	assert.Equal(t, 3, file.TotalTargets)
	ids := make([]int, len(file.Targets))
	for i, target := range file.Targets {
		ids[i] = target.TargetID
		assert.Equal(t, set.Detections[i].Center, target.PixelCoordinates)
		assert.Equal(t, set.Detections[i].TargetCoordinates, target.TargetCoordinates)
		assert.Equal(t, set.Detections[i].Confidence, target.Confidence)
	}
	assert.Equal(t, []int{1, 2, 3}, ids)
}

func TestFormatTargetsFromJSON(t *testing.T) {
	in := decodeRequest(t, `{"detections": [{
		"id": "client-side",
		"class": "weed",
		"confidence": 0,
		"bbox": {"x1": 1, "y1": 2, "x2": 3, "y2": 4, "width": 2, "height": 2},
		"center": {"x": 320, "y": 240, "x_normalized": 0.5, "y_normalized": 0.5},
		"target_coordinates": {"x": 500, "y": 500, "unit": "laser_units"}
	}]}`)

	file, err := FormatTargets(in)
	require.NoError(t, err)

	raw, err := json.Marshal(file)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"total_targets": 1,
		"targets": [{
			"target_id": 1,
			"class": "weed",
			"confidence": 0,
			"pixel_coordinates": {"x": 320, "y": 240, "x_normalized": 0.5, "y_normalized": 0.5},
			"laser_coordinates": {"x": 500, "y": 500, "unit": "laser_units"}
		}]
	}`, string(raw))
}

func TestFormatTargetsCoordinateNames(t *testing.T) {
	tests := []struct {
		name string
		body string
		want TargetCoordinates
	}{
		{
			name: "target_coordinates",
			body: `{"class": "weed", "confidence": 0.5, "center": {"x": 1, "y": 1}, "target_coordinates": {"x": 10, "y": 20, "unit": "laser_units"}}`,
			want: TargetCoordinates{X: 10, Y: 20, Unit: "laser_units"},
		},
		{
			name: "laser_coordinates",
			body: `{"class": "weed", "confidence": 0.5, "center": {"x": 1, "y": 1}, "laser_coordinates": {"x": 30, "y": 40, "unit": "laser_units"}}`,
			want: TargetCoordinates{X: 30, Y: 40, Unit: "laser_units"},
		},
		{
			name: "both prefers target_coordinates",
			body: `{"class": "weed", "confidence": 0.5, "center": {"x": 1, "y": 1}, "target_coordinates": {"x": 1, "y": 2, "unit": "mm"}, "laser_coordinates": {"x": 3, "y": 4, "unit": "laser_units"}}`,
			want: TargetCoordinates{X: 1, Y: 2, Unit: "mm"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file, err := FormatTargets(decodeRequest(t, `{"detections": [`+tt.body+`]}`))
			require.NoError(t, err)
			require.Len(t, file.Targets, 1)
			assert.Equal(t, tt.want, file.Targets[0].TargetCoordinates)
		})
	}
}

func TestFormatTargetsRoundTripsShapedSet(t *testing.T) {
	set, err := New().Shape(ImageSize{Width: 200, Height: 100}, []common.BoundingBox{raw("weed", 0.5, 10, 10, 30, 50)})
	require.NoError(t, err)

	body, err := json.Marshal(set)
	require.NoError(t, err)

	file, err := FormatTargets(decodeRequest(t, string(body)))
	require.NoError(t, err)
	require.Len(t, file.Targets, 1)
	assert.Equal(t, TargetCoordinates{X: 100, Y: 300, Unit: "laser_units"}, file.Targets[0].TargetCoordinates)
}

func TestFormatTargetsEmpty(t *testing.T) {
	for _, body := range []string{`{"detections": []}`, `{}`} {
		file, err := FormatTargets(decodeRequest(t, body))
		require.NoError(t, err)

		raw, err := json.Marshal(file)
		require.NoError(t, err)
		assert.JSONEq(t, `{"total_targets": 0, "targets": []}`, string(raw))
	}
}

func TestFormatTargetsMissingField(t *testing.T) {
	complete := `{"class": "weed", "confidence": 0.9, "center": {"x": 1, "y": 1}, "target_coordinates": {"x": 1, "y": 1}}`

	tests := []struct {
		name  string
		bad   string
		field string
	}{
		{"class", `{"confidence": 0.9, "center": {"x": 1, "y": 1}, "target_coordinates": {"x": 1, "y": 1}}`, "class"},
		{"confidence", `{"class": "weed", "center": {"x": 1, "y": 1}, "laser_coordinates": {"x": 1, "y": 1}}`, "confidence"},
		{"center", `{"class": "weed", "confidence": 0.9, "target_coordinates": {"x": 1, "y": 1}}`, "center"},
		{"target coordinates", `{"class": "weed", "confidence": 0.9, "center": {"x": 1, "y": 1}}`, "target_coordinates"},
		{"null coordinates", `{"class": "weed", "confidence": 0.9, "center": {"x": 1, "y": 1}, "target_coordinates": null, "laser_coordinates": null}`, "target_coordinates"},
		{"null class", `{"class": null, "confidence": 0.9, "center": {"x": 1, "y": 1}, "target_coordinates": {"x": 1, "y": 1}}`, "class"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := decodeRequest(t, `{"detections": [`+complete+`,`+tt.bad+`]}`)

			file, err := FormatTargets(in)
			require.Error(t, err)
			assert.Empty(t, file.Targets, "no partial output")

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, 1, verr.Index)
			assert.Equal(t, tt.field, verr.Field)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestFormatTargetsAcceptsEmptyClass(t *testing.T) {
	in := decodeRequest(t, `{"detections": [{"class": "", "confidence": 0.5, "center": {}, "target_coordinates": {}}]}`)
	file, err := FormatTargets(in)
	require.NoError(t, err)
	assert.Equal(t, "", file.Targets[0].Class)
}
