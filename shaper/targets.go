package shaper

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
)

// TargetInput is one detection as sent back by a client for export.
// Fields other than these, such as a client-side id, are ignored.
type TargetInput struct {
	Class             *string            `json:"class" validate:"required"`
	Confidence        *float64           `json:"confidence" validate:"required"`
	Center            *Center            `json:"center" validate:"required"`
	TargetCoordinates *TargetCoordinates `json:"target_coordinates" validate:"required"`
}

// UnmarshalJSON accepts the target coordinates as target_coordinates or
// laser_coordinates. target_coordinates wins when both are present.
func (t *TargetInput) UnmarshalJSON(data []byte) error {
	type plain TargetInput
	var aux struct {
		plain
		LaserCoordinates *TargetCoordinates `json:"laser_coordinates"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*t = TargetInput(aux.plain)
	if t.TargetCoordinates == nil {
		t.TargetCoordinates = aux.LaserCoordinates
	}
	return nil
}

// TargetRequest is the body of a coordinate export.
type TargetRequest struct {
	Detections []TargetInput `json:"detections"`
}

// Target is one numbered entry of a TargetFile.
type Target struct {
	TargetID          int               `json:"target_id"`
	Class             string            `json:"class"`
	Confidence        float64           `json:"confidence"`
	PixelCoordinates  Center            `json:"pixel_coordinates"`
	TargetCoordinates TargetCoordinates `json:"laser_coordinates"`
}

// TargetFile is the document handed to the actuator.
type TargetFile struct {
	TotalTargets int      `json:"total_targets"`
	Targets      []Target `json:"targets"`
}

// ValidationError reports the first invalid record of a target request.
type ValidationError struct {
	Index int
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("detection %d: missing required field %q", e.Index, e.Field)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

var validate = validator.New()

// FormatTargets numbers detections for the actuator.
//
// Arguments:
//   - in: Detections in the order they should be targeted.
//
// Returns:
//   - TargetFile: Targets with sequential 1-based ids. Targets is empty, never nil, without input.
//   - error: A *ValidationError for the first record with a missing field. No partial output is returned.
func FormatTargets(in []TargetInput) (TargetFile, error) {
	targets := make([]Target, 0, len(in))

	for i := range in {
		if err := validate.Struct(&in[i]); err != nil {
			return TargetFile{}, validationError(i, err)
		}

		targets = append(targets, Target{
			TargetID:          i + 1,
			Class:             *in[i].Class,
			Confidence:        *in[i].Confidence,
			PixelCoordinates:  *in[i].Center,
			TargetCoordinates: *in[i].TargetCoordinates,
		})
	}

	return TargetFile{TotalTargets: len(targets), Targets: targets}, nil
}

// TargetsFromSet builds export input from a freshly shaped set.
func TargetsFromSet(set DetectionSet) []TargetInput {
	in := make([]TargetInput, len(set.Detections))
	for i := range set.Detections {
		d := set.Detections[i]
		in[i] = TargetInput{
			Class:             &d.Class,
			Confidence:        &d.Confidence,
			Center:            &d.Center,
			TargetCoordinates: &d.TargetCoordinates,
		}
	}
	return in
}

var jsonNames = map[string]string{
	"Class":             "class",
	"Confidence":        "confidence",
	"Center":            "center",
	"TargetCoordinates": "target_coordinates",
}

func validationError(index int, err error) error {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		field := fieldErrs[0].StructField()
		if name, ok := jsonNames[field]; ok {
			field = name
		}
		return &ValidationError{Index: index, Field: field, Err: err}
	}
	return &ValidationError{Index: index, Field: "record", Err: err}
}
