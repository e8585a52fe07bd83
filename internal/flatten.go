package internal

import "strconv"

// Flatten returns a single-level copy of data for rule evaluation. Nested
// keys are joined with "." and list items get an index suffix, so
// {"pull_request": {"labels": [{"name": "bug"}]}} yields
// "pull_request.labels[0].name". A list is also kept whole under its own key
// and under key+"[]", which lets contains() test membership.
func Flatten(data map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(data))
	for key, value := range data {
		flattenInto(out, key, value)
	}
	return out
}

func flattenInto(out map[string]interface{}, path string, value interface{}) {
	switch typed := value.(type) {
	case map[string]interface{}:
		for key, child := range typed {
			flattenInto(out, path+"."+key, child)
		}
	case []interface{}:
		out[path] = typed
		out[path+"[]"] = typed
		for i, child := range typed {
			flattenInto(out, path+"["+strconv.Itoa(i)+"]", child)
		}
	default:
		out[path] = value
	}
}
