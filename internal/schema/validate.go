package schema

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// syntax backs the url and email kinds.
var syntax = validator.New()

// Validator checks and normalizes property maps for one label or edge type.
// Compiled once at startup; safe for concurrent use.
type Validator struct {
	label string
	props map[string]PropertyDef
	open  bool // edge with no declared properties: accept any map
}

func compileValidator(label string, props map[string]PropertyDef, open bool) (*Validator, error) {
	if open {
		return &Validator{label: label, open: true}, nil
	}
	for name, def := range props {
		if err := checkDef(name, def); err != nil {
			return nil, err
		}
	}
	return &Validator{label: label, props: props}, nil
}

// checkDef validates one PropertyDef at compile time. Failures here are fatal
// at startup, not per-mutation.
func checkDef(name string, def PropertyDef) error {
	switch def.Kind {
	case KindString, KindNumber, KindBoolean, KindDate, KindURL, KindEmail, KindStringList, KindJSON:
	case KindEnum:
		if len(def.Values) == 0 {
			return fmt.Errorf("property %q: enum declares no values", name)
		}
	default:
		return fmt.Errorf("property %q: unknown kind %q", name, def.Kind)
	}
	if def.Default != nil {
		if _, fe := checkValue(name, def, def.Default); fe != nil {
			return fmt.Errorf("property %q: default value invalid: %s", name, fe.Message)
		}
	}
	return nil
}

// Validate returns the normalized property map (defaults applied, enum
// members canonicalized, numbers in canonical form) or a *ValidationError
// listing every offending path.
func (v *Validator) Validate(props map[string]interface{}) (map[string]interface{}, error) {
	if v.open {
		return NormalizeProps(props), nil
	}

	var fields []FieldError
	out := make(map[string]interface{}, len(v.props))

	// Strict mode: unknown top-level keys are rejected
	for key := range props {
		if _, ok := v.props[key]; !ok {
			fields = append(fields, FieldError{Path: key, Message: "unknown property"})
		}
	}

	for name, def := range v.props {
		raw, present := props[name]
		if !present {
			if def.Default != nil {
				// Defaults already passed checkDef at compile time
				norm, _ := checkValue(name, def, def.Default)
				out[name] = norm
			} else if def.Required {
				fields = append(fields, FieldError{Path: name, Message: "required property missing"})
			}
			continue
		}
		norm, fe := checkValue(name, def, raw)
		if fe != nil {
			fields = append(fields, *fe)
			continue
		}
		out[name] = norm
	}

	if len(fields) > 0 {
		sort.Slice(fields, func(i, j int) bool { return fields[i].Path < fields[j].Path })
		return nil, &ValidationError{Label: v.label, Fields: fields}
	}
	return out, nil
}

func checkValue(path string, def PropertyDef, raw interface{}) (interface{}, *FieldError) {
	switch def.Kind {
	case KindString:
		s, ok := raw.(string)
		if !ok {
			return nil, typeError(path, "string", raw)
		}
		return s, nil

	case KindNumber:
		n, ok := NormalizeNumber(raw)
		if !ok {
			return nil, typeError(path, "number", raw)
		}
		return n, nil

	case KindBoolean:
		b, ok := raw.(bool)
		if !ok {
			return nil, typeError(path, "boolean", raw)
		}
		return b, nil

	case KindDate:
		s, ok := raw.(string)
		if !ok {
			return nil, typeError(path, "date string", raw)
		}
		if !validDate(s) {
			return nil, &FieldError{Path: path, Message: fmt.Sprintf("%q is not an ISO-8601 date or date-time", s)}
		}
		return s, nil

	case KindURL:
		s, ok := raw.(string)
		if !ok {
			return nil, typeError(path, "url string", raw)
		}
		if err := syntax.Var(s, "url"); err != nil {
			return nil, &FieldError{Path: path, Message: fmt.Sprintf("%q is not a valid url", s)}
		}
		return s, nil

	case KindEmail:
		s, ok := raw.(string)
		if !ok {
			return nil, typeError(path, "email string", raw)
		}
		if err := syntax.Var(s, "email"); err != nil {
			return nil, &FieldError{Path: path, Message: fmt.Sprintf("%q is not a valid email address", s)}
		}
		return s, nil

	case KindEnum:
		s, ok := raw.(string)
		if !ok {
			return nil, typeError(path, "enum string", raw)
		}
		for _, member := range def.Values {
			if strings.EqualFold(member, s) {
				// Canonicalize to the declared member casing
				return member, nil
			}
		}
		return nil, &FieldError{Path: path, Message: fmt.Sprintf("%q is not one of [%s]", s, strings.Join(def.Values, ", "))}

	case KindStringList:
		switch list := raw.(type) {
		case []string:
			out := make([]interface{}, len(list))
			for i, s := range list {
				out[i] = s
			}
			return out, nil
		case []interface{}:
			out := make([]interface{}, len(list))
			for i, el := range list {
				s, ok := el.(string)
				if !ok {
					return nil, &FieldError{Path: fmt.Sprintf("%s[%d]", path, i), Message: fmt.Sprintf("expected string, got %T", el)}
				}
				out[i] = s
			}
			return out, nil
		default:
			return nil, typeError(path, "list of strings", raw)
		}

	case KindJSON:
		// json accepts anything; normalize containers for deep comparability
		return NormalizeValue(raw), nil
	}

	return nil, &FieldError{Path: path, Message: fmt.Sprintf("unknown kind %q", def.Kind)}
}

func typeError(path, want string, got interface{}) *FieldError {
	return &FieldError{Path: path, Message: fmt.Sprintf("expected %s, got %T", want, got)}
}

// validDate accepts ISO-8601 dates and RFC3339 date-times with offset.
func validDate(s string) bool {
	if _, err := time.Parse("2006-01-02", s); err == nil {
		return true
	}
	if _, err := time.Parse(time.RFC3339, s); err == nil {
		return true
	}
	return false
}
