// Package jsonx wraps Sonic for the JSON documents the bot keeps on disk and
// in the remote store.
package jsonx

import "github.com/bytedance/sonic"

// api keeps non-ASCII text readable in stored documents and sorts map keys
// so rewritten files diff cleanly.
var api = sonic.Config{
	EscapeHTML:     false,
	SortMapKeys:    true,
	ValidateString: true,
}.Froze()

func Marshal(v interface{}) ([]byte, error) {
	return api.Marshal(v)
}

// MarshalIndent is Marshal with two-space indentation, used for files.
func MarshalIndent(v interface{}) ([]byte, error) {
	return api.MarshalIndent(v, "", "  ")
}

func Unmarshal(data []byte, v interface{}) error {
	return api.Unmarshal(data, v)
}
