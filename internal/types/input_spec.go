package types

import (
	"maps"

	"github.com/go-playground/validator/v10"
)

// InputSpec describes the content one pipeline run must produce
type InputSpec struct {
	Topic         string            `json:"topic" yaml:"topic" validate:"required,min=1,max=500"`
	PrimaryFormat Format            `json:"primary_format" yaml:"primary_format" validate:"required,oneof=markdown html jsonld"`
	Length        Length            `json:"length" yaml:"length" validate:"required,oneof=short medium long"`
	Style         map[string]string `json:"style,omitempty" yaml:"style,omitempty"`
}

// NewInputSpec builds an InputSpec with its own copy of the style map,
// so later changes to the caller's map are not observed by the run.
func NewInputSpec(topic string, primary Format, length Length, style map[string]string) InputSpec {
	return InputSpec{
		Topic:         topic,
		PrimaryFormat: primary,
		Length:        length,
		Style:         maps.Clone(style),
	}
}

// Validate validates the InputSpec using the validator.
func (s *InputSpec) Validate() error {
	validate := validator.New()
	return validate.Struct(s)
}

// GenerationRequest is what the external content provider receives
type GenerationRequest struct {
	Topic        string            `json:"topic"`
	Format       Format            `json:"format"`
	Style        map[string]string `json:"style,omitempty"`
	LengthTarget int               `json:"length_target"` // words
}
