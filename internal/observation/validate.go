package observation

import (
	"strings"

	"github.com/sensorhub/annotator/internal/errors"
)

var (
	// ErrSpeciesRequired blocks submission of a row without a species.
	ErrSpeciesRequired = errors.NewStd("species is required")
	// ErrInvalidNumber blocks submission of a row whose count is below one.
	ErrInvalidNumber = errors.NewStd("number must be a positive integer")
	// ErrInvalidBox is returned for malformed bounding boxes.
	ErrInvalidBox = errors.NewStd("invalid bounding box")
)

// Validate runs the client-side checks that must pass before o is sent to the backend.
func (o Observation) Validate() error {
	if strings.TrimSpace(o.SpeciesName) == "" {
		return errors.New(ErrSpeciesRequired).
			Component("observation").
			Category(errors.CategoryValidation).
			Context("observation_id", o.ID).
			Build()
	}
	if o.Number < 1 {
		return errors.New(ErrInvalidNumber).
			Component("observation").
			Category(errors.CategoryValidation).
			Context("observation_id", o.ID).
			Context("number", o.Number).
			Build()
	}
	return o.BoundingBox.Validate()
}
