// Package observation defines the observation record exchanged with the
// backend and the local row wrapper the editor works on.
package observation

import (
	"slices"
	"time"
)

// Source is the provenance of an observation.
type Source string

const (
	SourceHuman Source = "human"
	SourceAI    Source = "ai"
)

// Observation is one annotated subject on one or more data files, as the backend sees it.
type Observation struct {
	ID                  string      `json:"id"` // empty until persisted
	ObsDT               time.Time   `json:"obs_dt"`
	SpeciesName         string      `json:"species_name"`
	SpeciesCommonName   string      `json:"species_common_name"`
	Number              int         `json:"number"`
	Sex                 string      `json:"sex"`
	Lifestage           string      `json:"lifestage"`
	Behavior            string      `json:"behavior"`
	Source              Source      `json:"source"`
	BoundingBox         BoundingBox `json:"bounding_box"`
	DataFiles           []int64     `json:"data_files"`
	ValidationRequested bool        `json:"validation_requested"`
	ValidationOf        string      `json:"validation_of,omitempty"`
	UserIsOwner         bool        `json:"user_is_owner"`
}

// Payload is the writable subset of an Observation sent on create and update.
// The id travels in the URL and ownership is decided by the backend.
type Payload struct {
	ObsDT               time.Time   `json:"obs_dt"`
	SpeciesName         string      `json:"species_name"`
	SpeciesCommonName   string      `json:"species_common_name"`
	Number              int         `json:"number"`
	Sex                 string      `json:"sex"`
	Lifestage           string      `json:"lifestage"`
	Behavior            string      `json:"behavior"`
	Source              Source      `json:"source"`
	BoundingBox         BoundingBox `json:"bounding_box"`
	DataFiles           []int64     `json:"data_files"`
	ValidationRequested bool        `json:"validation_requested"`
	ValidationOf        string      `json:"validation_of,omitempty"`
}

// Payload returns the writable fields of o.
func (o Observation) Payload() Payload {
	return Payload{
		ObsDT:               o.ObsDT.UTC(),
		SpeciesName:         o.SpeciesName,
		SpeciesCommonName:   o.SpeciesCommonName,
		Number:              o.Number,
		Sex:                 o.Sex,
		Lifestage:           o.Lifestage,
		Behavior:            o.Behavior,
		Source:              o.Source,
		BoundingBox:         o.BoundingBox,
		DataFiles:           nonNil(o.DataFiles),
		ValidationRequested: o.ValidationRequested,
		ValidationOf:        o.ValidationOf,
	}
}

// IsPersisted reports whether the backend has assigned an id.
func (o Observation) IsPersisted() bool {
	return o.ID != ""
}

// Clone returns a deep copy of o.
func (o Observation) Clone() Observation {
	o.DataFiles = slices.Clone(o.DataFiles)
	return o
}

// Local is an Observation plus the editor-only state that never reaches the backend.
type Local struct {
	Observation
	Edited bool `json:"edited"` // differs from the last synced value
	Index  int  `json:"index"`  // position in the row list
}

// Strip drops the local-only fields for transmission.
func (l Local) Strip() Observation {
	return l.Observation.Clone()
}

// Clone returns a deep copy of l.
func (l Local) Clone() Local {
	l.Observation = l.Observation.Clone()
	return l
}

// FileRef identifies the data file the editor is annotating.
type FileRef struct {
	ID         int64     `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Template returns the default row for a new annotation on file.
func Template(file FileRef, source Source) Observation {
	if source == "" {
		source = SourceHuman
	}
	return Observation{
		ObsDT:       file.RecordedAt.UTC(),
		Number:      1,
		Source:      source,
		DataFiles:   []int64{file.ID},
		UserIsOwner: true,
	}
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return slices.Clone(ids)
}
