package shaper

import (
	"strings"

	"github.com/pkg/errors"
)

// DefaultScale maps normalized coordinates onto a 0..1000 grid.
const DefaultScale = 1000

// DefaultUnit is the unit reported with target coordinates.
const DefaultUnit = "laser_units"

// CoordinateTransform maps a detection center to target coordinates.
type CoordinateTransform interface {
	Transform(c Center) TargetCoordinates
}

// GridTransform scales normalized coordinates uniformly: trunc(n * Scale).
type GridTransform struct {
	Scale float64
	Unit  string
}

// DefaultTransform returns the 0..1000 laser_units grid.
func DefaultTransform() GridTransform {
	return GridTransform{Scale: DefaultScale, Unit: DefaultUnit}
}

// Transform implements CoordinateTransform.
func (g GridTransform) Transform(c Center) TargetCoordinates {
	return TargetCoordinates{
		X:    trunc(c.XNormalized * g.Scale),
		Y:    trunc(c.YNormalized * g.Scale),
		Unit: g.Unit,
	}
}

// AffineTransform maps normalized coordinates with a per-axis scale and offset,
// for rigs whose working area is calibrated against the camera frame.
type AffineTransform struct {
	ScaleX, ScaleY   float64
	OffsetX, OffsetY float64
	Unit             string
}

// Transform implements CoordinateTransform.
func (a AffineTransform) Transform(c Center) TargetCoordinates {
	return TargetCoordinates{
		X:    trunc(c.XNormalized*a.ScaleX + a.OffsetX),
		Y:    trunc(c.YNormalized*a.ScaleY + a.OffsetY),
		Unit: a.Unit,
	}
}

// TransformKind selects a CoordinateTransform implementation.
type TransformKind string

const (
	TransformGrid   TransformKind = "grid"
	TransformAffine TransformKind = "affine"
)

// TransformConfig is the configuration form of a CoordinateTransform.
type TransformConfig struct {
	Kind    TransformKind `json:"kind" yaml:"kind"`
	Scale   float64       `json:"scale" yaml:"scale"`
	ScaleX  float64       `json:"scale_x" yaml:"scale_x"`
	ScaleY  float64       `json:"scale_y" yaml:"scale_y"`
	OffsetX float64       `json:"offset_x" yaml:"offset_x"`
	OffsetY float64       `json:"offset_y" yaml:"offset_y"`
	Unit    string        `json:"unit" yaml:"unit"`
}

// NewTransform builds the transform described by config.
//
// Arguments:
//   - config: The transform configuration. An empty kind selects grid; a zero
//     scale selects DefaultScale and an empty unit selects DefaultUnit.
//
// Returns:
//   - CoordinateTransform: The transform.
//   - error: An error for an unknown kind or a negative scale.
func NewTransform(config TransformConfig) (CoordinateTransform, error) {
	unit := config.Unit
	if unit == "" {
		unit = DefaultUnit
	}

	switch TransformKind(strings.ToLower(string(config.Kind))) {
	case "", TransformGrid:
		scale := config.Scale
		if scale == 0 {
			scale = DefaultScale
		}
		if scale < 0 {
			return nil, errors.Errorf("grid scale must be positive, got %v", config.Scale)
		}
		return GridTransform{Scale: scale, Unit: unit}, nil

	case TransformAffine:
		if config.ScaleX <= 0 || config.ScaleY <= 0 {
			return nil, errors.Errorf("affine scales must be positive, got %v and %v", config.ScaleX, config.ScaleY)
		}
		return AffineTransform{
			ScaleX:  config.ScaleX,
			ScaleY:  config.ScaleY,
			OffsetX: config.OffsetX,
			OffsetY: config.OffsetY,
			Unit:    unit,
		}, nil
	}

	return nil, errors.Errorf("unknown transform kind %q", config.Kind)
}
