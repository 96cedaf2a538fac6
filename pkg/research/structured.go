package research

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// queryOutput is the contract of the GenerateQuery call: key "query" is
// required, the others are informational.
type queryOutput struct {
	Query     string `mapstructure:"query"`
	Aspect    string `mapstructure:"aspect"`
	Rationale string `mapstructure:"rationale"`
}

// reflectionOutput is the contract of the Reflect call.
type reflectionOutput struct {
	KnowledgeGap  string `mapstructure:"knowledge_gap"`
	FollowUpQuery string `mapstructure:"follow_up_query"`
}

// decodeStructured checks that every required key holds a non-blank string
// and decodes raw into out.
func decodeStructured(raw map[string]any, out any, required ...string) error {
	if raw == nil {
		return fmt.Errorf("%w: empty object", ErrMalformedModelOutput)
	}
	for _, key := range required {
		v, ok := raw[key]
		if !ok {
			return fmt.Errorf("%w: missing key %q", ErrMalformedModelOutput, key)
		}
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return fmt.Errorf("%w: key %q must be a non-empty string", ErrMalformedModelOutput, key)
		}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(raw); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedModelOutput, err)
	}
	return nil
}
