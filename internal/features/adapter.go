package features

// Kind identifies how a raw value is encoded into the feature vector.
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindBoolean     Kind = "boolean"
	KindCategorical Kind = "categorical"
)

// FieldSpec describes one feature a sub-model requires.
type FieldSpec struct {
	Name       string   `json:"name"`
	Kind       Kind     `json:"kind"`
	Default    float64  `json:"default"`
	Categories []string `json:"categories,omitempty"`
}

// Schema is the ordered set of features a sub-model was trained on.
// Order matters: the encoded vector is positional.
type Schema struct {
	Fields []FieldSpec `json:"fields"`
}

// Names returns the feature names in schema order.
func (s Schema) Names() []string {
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		names[i] = f.Name
	}
	return names
}

// Prepare encodes a request into the vector the schema describes.
// Missing or malformed values are filled with the field default and
// reported via the completeness fraction and the missing list, so the
// orchestrator can scale that sub-model's weight down instead of
// failing the request.
func Prepare(req Request, schema Schema) (vec []float64, completeness float64, missing []string) {
	if len(schema.Fields) == 0 {
		return nil, 1.0, nil
	}

	vec = make([]float64, len(schema.Fields))
	for i, f := range schema.Fields {
		v, ok := encodeField(req, f)
		if !ok {
			vec[i] = f.Default
			missing = append(missing, f.Name)
			continue
		}
		vec[i] = v
	}

	completeness = 1.0 - float64(len(missing))/float64(len(schema.Fields))
	return vec, completeness, missing
}

func encodeField(req Request, f FieldSpec) (float64, bool) {
	raw, present := req.Raw[f.Name]
	if !present || raw == nil {
		return 0, false
	}

	switch f.Kind {
	case KindCategorical:
		s, ok := raw.(string)
		if !ok {
			return 0, false
		}
		return encodeCategory(normalizeKey(s), f.Categories)
	case KindBoolean:
		if b, ok := raw.(bool); ok {
			if b {
				return 1, true
			}
			return 0, true
		}
		// Numeric truthiness is accepted for booleans serialized as 0/1.
		if n, ok := toNumeric(raw); ok {
			if n != 0 {
				return 1, true
			}
			return 0, true
		}
		return 0, false
	default:
		return toNumeric(raw)
	}
}

// encodeCategory maps a category to its index scaled into [0,1], the
// encoding the offline training pipeline uses. Unknown categories are
// treated as missing rather than guessed.
func encodeCategory(value string, categories []string) (float64, bool) {
	if len(categories) == 0 {
		return 0, false
	}
	for i, c := range categories {
		if normalizeKey(c) == value {
			if len(categories) == 1 {
				return 0, true
			}
			return float64(i) / float64(len(categories)-1), true
		}
	}
	return 0, false
}
