package util

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
)

const (
	safeJSONMaxDepth  = 6
	safeJSONMaxBytes  = 16384
	safeJSONMaxString = 512
	safeJSONMaxItems  = 50
)

// SafeJSON serializes arbitrary debug state with depth, size, and
// cycle bounds so diagnostic capture can never take the pipeline down.
// It never returns an error; unserializable values degrade to markers.
func SafeJSON(v any) string {
	seen := map[uintptr]bool{}
	reduced := reduceValue(reflect.ValueOf(v), 0, seen)
	b, err := json.Marshal(reduced)
	if err != nil {
		return fmt.Sprintf(`{"_unserializable":%q}`, err.Error())
	}
	if len(b) > safeJSONMaxBytes {
		return string(b[:safeJSONMaxBytes-1]) + `…`
	}
	return string(b)
}

func reduceValue(v reflect.Value, depth int, seen map[uintptr]bool) any {
	if !v.IsValid() {
		return nil
	}
	if depth > safeJSONMaxDepth {
		return "…depth…"
	}
	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		if v.Kind() == reflect.Pointer {
			p := v.Pointer()
			if seen[p] {
				return "…cycle…"
			}
			seen[p] = true
			defer delete(seen, p)
		}
		return reduceValue(v.Elem(), depth, seen)
	case reflect.String:
		s := v.String()
		if len(s) > safeJSONMaxString {
			return s[:safeJSONMaxString] + "…"
		}
		return s
	case reflect.Slice, reflect.Array:
		if v.Kind() == reflect.Slice && v.IsNil() {
			return nil
		}
		n := v.Len()
		if n > safeJSONMaxItems {
			n = safeJSONMaxItems
		}
		out := make([]any, 0, n)
		for i := 0; i < n; i++ {
			out = append(out, reduceValue(v.Index(i), depth+1, seen))
		}
		if v.Len() > n {
			out = append(out, fmt.Sprintf("…%d more…", v.Len()-n))
		}
		return out
	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		keys := v.MapKeys()
		strKeys := make([]string, 0, len(keys))
		byKey := make(map[string]reflect.Value, len(keys))
		for _, k := range keys {
			ks := fmt.Sprintf("%v", k.Interface())
			strKeys = append(strKeys, ks)
			byKey[ks] = v.MapIndex(k)
		}
		sort.Strings(strKeys)
		if len(strKeys) > safeJSONMaxItems {
			strKeys = strKeys[:safeJSONMaxItems]
		}
		out := make(map[string]any, len(strKeys))
		for _, ks := range strKeys {
			out[ks] = reduceValue(byKey[ks], depth+1, seen)
		}
		return out
	case reflect.Struct:
		t := v.Type()
		out := make(map[string]any, t.NumField())
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			name := f.Name
			if tag, ok := f.Tag.Lookup("json"); ok {
				tagName := strings.Split(tag, ",")[0]
				if tagName == "-" {
					continue
				}
				if tagName != "" {
					name = tagName
				}
			}
			out[name] = reduceValue(v.Field(i), depth+1, seen)
		}
		return out
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return fmt.Sprintf("…%s…", v.Kind())
	default:
		return v.Interface()
	}
}
