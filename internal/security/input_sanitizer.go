package security

import "github.com/microcosm-cc/bluemonday"

// InputSanitizerService strips markup from technician-entered free text
// (report observations, rejection reasons) before it reaches the backing
// store. Repair reports are plain text; any HTML in them is hostile or
// accidental, so the policy keeps nothing.
type InputSanitizerService interface {
	// Sanitize removes all HTML tags and attributes from the input.
	// Idempotent: the same input always yields the same output.
	Sanitize(raw string) string
}

// inputSanitizer implements InputSanitizerService over a bluemonday
// strict policy.
type inputSanitizer struct {
	policy *bluemonday.Policy
}

// NewInputSanitizer builds an InputSanitizerService.
func NewInputSanitizer() *inputSanitizer {
	return &inputSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize strips all markup from raw.
func (s *inputSanitizer) Sanitize(raw string) string {
	return s.policy.Sanitize(raw)
}
