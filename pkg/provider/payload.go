package provider

import "github.com/tidwall/gjson"

// ErrorPayload reports whether v, the "error" field of a backend result or
// event, holds an error, and returns its text: the string itself for JSON
// strings, the raw JSON otherwise. Absent, null, false and empty-string
// values mean no error.
func ErrorPayload(v gjson.Result) (string, bool) {
	switch {
	case !v.Exists(), v.Type == gjson.Null, v.Type == gjson.False:
		return "", false
	case v.Type == gjson.String:
		return v.Str, v.Str != ""
	}
	return v.Raw, true
}
