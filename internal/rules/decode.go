package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Format is the encoding of a rule definition document.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath guesses a document format from a file name.
func FormatFromPath(path string) Format {
	lower := strings.ToLower(path)
	if strings.HasSuffix(lower, ".yaml") || strings.HasSuffix(lower, ".yml") {
		return FormatYAML
	}
	return FormatJSON
}

// Definitions is a rule definition document: the unit that is validated
// and loaded as a set.
type Definitions struct {
	Eligibility []domain.EligibilityRule `json:"eligibility,omitempty"`
	Preapproval []domain.PreapprovalRule `json:"preapproval,omitempty"`
}

// Len returns the total number of rules in the document.
func (d *Definitions) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Eligibility) + len(d.Preapproval)
}

// DecodeDefinitions parses a rule document. YAML is converted to its JSON
// form first so that both formats go through the same closed-set decoders.
// Malformed documents are reported as a ValidationError.
func DecodeDefinitions(data []byte, format Format) (*Definitions, error) {
	if format == FormatYAML {
		converted, err := yamlToJSON(data)
		if err != nil {
			return nil, &domain.ValidationError{Message: fmt.Sprintf("malformed yaml: %v", err)}
		}
		data = converted
	}

	var defs Definitions
	if err := decodeStrict(data, &defs); err != nil {
		return nil, &domain.ValidationError{Message: fmt.Sprintf("malformed rule document: %v", err)}
	}
	return &defs, nil
}

// decodeStrict decodes JSON keeping numbers exact and rejecting unknown keys.
func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func yamlToJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	normalized, err := normalizeYAML(doc)
	if err != nil {
		return nil, err
	}
	if normalized == nil {
		normalized = map[string]any{}
	}
	return json.Marshal(normalized)
}

// normalizeYAML rewrites the generic YAML tree into values encoding/json
// accepts: string-keyed maps and RFC 3339 strings for timestamps.
func normalizeYAML(v any) (any, error) {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			n, err := normalizeYAML(child)
			if err != nil {
				return nil, err
			}
			out[k] = n
		}
		return out, nil
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			key, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("mapping key %v is not a string", k)
			}
			n, err := normalizeYAML(child)
			if err != nil {
				return nil, err
			}
			out[key] = n
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			n, err := normalizeYAML(child)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case time.Time:
		if val.Equal(domain.NewDate(val).Time) {
			return val.Format(time.DateOnly), nil
		}
		return val.Format(time.RFC3339), nil
	default:
		return val, nil
	}
}
