package profile

import "encoding/json"

// deepMerge overlays src onto dst and returns the result. Nested objects
// merge key-by-key; any other value (including arrays) in src replaces
// the corresponding value in dst outright. dst is never mutated in
// place; deepMerge always returns a fresh map so a cached ancestor
// object can be reused safely across invocations.
func deepMerge(dst, src map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, sv := range src {
		if dv, ok := out[k]; ok {
			dm, dIsMap := dv.(map[string]interface{})
			sm, sIsMap := sv.(map[string]interface{})
			if dIsMap && sIsMap {
				out[k] = deepMerge(dm, sm)
				continue
			}
		}
		out[k] = sv
	}
	return out
}

// foldChain applies deepMerge across objs left to right: the ancestor
// chain root -> ... -> leaf, where later/deeper entries win on scalar
// conflicts and merge recursively on nested objects.
func foldChain(objs []map[string]interface{}) map[string]interface{} {
	result := map[string]interface{}{}
	for _, o := range objs {
		result = deepMerge(result, o)
	}
	return result
}

func substituteDeep(v interface{}, lookup func(string) (string, bool)) (interface{}, error) {
	switch t := v.(type) {
	case string:
		return substitute(t, lookup)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, vv := range t {
			sv, err := substituteDeep(vv, lookup)
			if err != nil {
				return nil, err
			}
			out[k] = sv
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, vv := range t {
			sv, err := substituteDeep(vv, lookup)
			if err != nil {
				return nil, err
			}
			out[i] = sv
		}
		return out, nil
	default:
		return v, nil
	}
}

func stringMap(v interface{}) map[string]string {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return nil
	}
	out := make(map[string]string, len(obj))
	for k, vv := range obj {
		switch t := vv.(type) {
		case string:
			out[k] = t
		default:
			out[k] = toString(t)
		}
	}
	return out
}

func toString(v interface{}) string {
	if v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return jsonStringify(t)
	}
}

func jsonStringify(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
