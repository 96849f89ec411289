package pipestate

import (
	"encoding/json"
	"reflect"
	"time"
)

// Sanitize recursively converts an arbitrary Go value into JSON-serializable
// primitives (map[string]any, []any, float64, bool, string, nil); every
// integer type is converted to float64.
// time.Time and other json.Marshaler implementations are rendered via their
// own marshaling (time.Time as RFC3339) rather than reflected field-by-field,
// since their fields are otherwise unexported and would sanitize to `{}`.
// Everything else unknown falls back to its fmt string form. This is the
// orchestrator's only serialization boundary; running it twice must be a
// no-op.
func Sanitize(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case bool, string, float64, float32, int, int32, int64, uint, uint8, uint32, uint64, nil:
		return normalizeNumber(val)
	case time.Time:
		return val.Format(time.RFC3339)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = Sanitize(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = Sanitize(elem)
		}
		return out
	}

	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Ptr && rv.IsNil() {
		return nil
	}

	if m, ok := v.(json.Marshaler); ok {
		if data, err := m.MarshalJSON(); err == nil {
			var decoded any
			if err := json.Unmarshal(data, &decoded); err == nil {
				return Sanitize(decoded)
			}
		}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
		return Sanitize(rv.Elem().Interface())
	case reflect.Struct:
		return sanitizeStruct(rv)
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		for _, key := range rv.MapKeys() {
			out[toStringKey(key)] = Sanitize(rv.MapIndex(key).Interface())
		}
		return out
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			out[i] = Sanitize(rv.Index(i).Interface())
		}
		return out
	case reflect.String:
		return rv.String()
	case reflect.Bool:
		return rv.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	default:
		return rv.String()
	}
}

func sanitizeStruct(rv reflect.Value) any {
	out := make(map[string]any)
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := field.Tag.Get("json")
		if tag == "-" {
			continue
		}
		name := field.Name
		if tag != "" {
			for j := 0; j < len(tag); j++ {
				if tag[j] == ',' {
					name = tag[:j]
					break
				}
				if j == len(tag)-1 {
					name = tag
				}
			}
			if name == "" {
				name = field.Name
			}
		}
		out[name] = Sanitize(rv.Field(i).Interface())
	}
	return out
}

func toStringKey(v reflect.Value) string {
	if v.Kind() == reflect.String {
		return v.String()
	}
	return reflect.ValueOf(Sanitize(v.Interface())).String()
}

func normalizeNumber(v any) any {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case uint:
		return float64(n)
	case uint8:
		return float64(n)
	case uint32:
		return float64(n)
	case uint64:
		return float64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}
