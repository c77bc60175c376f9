package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
)

// String resolves names to a string. Scalars are formatted; a missing field
// yields def.
func String(p Payload, names []string, def string) string {
	switch v := Resolve(p, names, nil).(type) {
	case nil:
		return def
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

// Int resolves names to an int. Numeric strings are accepted; other shapes
// are an error so the caller can report a malformed event.
func Int(p Payload, names []string, def int) (int, error) {
	v := Resolve(p, names, nil)
	if v == nil {
		return def, nil
	}
	switch x := v.(type) {
	case int:
		return x, nil
	case int8:
		return int(x), nil
	case int16:
		return int(x), nil
	case int32:
		return int(x), nil
	case int64:
		return int(x), nil
	case uint:
		return int(x), nil
	case uint8:
		return int(x), nil
	case uint16:
		return int(x), nil
	case uint32:
		return int(x), nil
	case uint64:
		return int(x), nil
	case float32:
		return floatToInt(float64(x), names)
	case float64:
		return floatToInt(x, names)
	case json.Number:
		if n, err := x.Int64(); err == nil {
			return int(n), nil
		}
		f, err := x.Float64()
		if err != nil {
			return 0, fmt.Errorf("field %s: %w", names[0], err)
		}
		return floatToInt(f, names)
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return def, nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("field %s: not a number: %q", names[0], x)
		}
		return n, nil
	}
	return 0, fmt.Errorf("field %s: unexpected %T", names[0], v)
}

func floatToInt(f float64, names []string) (int, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("field %s: not a finite number", names[0])
	}
	return int(f), nil
}

// Sub resolves names to a nested payload such as the user or gift object.
func Sub(p Payload, names []string) (Payload, bool) {
	v := Resolve(p, names, nil)
	if v == nil {
		return Payload{}, false
	}
	return Of(v)
}

// structAttrs exposes exported struct fields as an attribute bag. A field
// matches by its Go name, by its name with the first letter lowered, or by
// its json tag.
type structAttrs struct {
	v reflect.Value
}

// Struct wraps a struct or pointer to struct as an attribute bag.
func Struct(v any) (Attrs, bool) {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil, false
	}
	return structAttrs{v: rv}, true
}

func (s structAttrs) Attr(name string) (any, bool) {
	if name == "" {
		return nil, false
	}
	t := s.v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		if f.Name == name || lowerFirst(f.Name) == name || jsonName(f) == name {
			return s.v.Field(i).Interface(), true
		}
	}
	return nil, false
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

func jsonName(f reflect.StructField) string {
	tag := f.Tag.Get("json")
	if tag == "" || tag == "-" {
		return ""
	}
	name, _, _ := strings.Cut(tag, ",")
	return name
}
