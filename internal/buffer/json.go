package buffer

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// arrayJSON is the snapshot form of an Array: its kind and base64 little-endian payload.
type arrayJSON struct {
	Kind string `json:"kind"`
	Data string `json:"data"`
}

// JSON wraps an Array so it can sit in a JSON document.
type JSON struct {
	Array Array
}

// MarshalJSON implements json.Marshaler. A nil array encodes as null.
func (j JSON) MarshalJSON() ([]byte, error) {
	if j.Array == nil {
		return []byte("null"), nil
	}
	return json.Marshal(arrayJSON{
		Kind: j.Array.Kind().String(),
		Data: base64.StdEncoding.EncodeToString(Bytes(j.Array)),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (j *JSON) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		j.Array = nil
		return nil
	}
	var raw arrayJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	kind, err := ParseKind(raw.Kind)
	if err != nil {
		return err
	}
	data, err := base64.StdEncoding.DecodeString(raw.Data)
	if err != nil {
		return fmt.Errorf("array data: %w", err)
	}
	arr, err := FromBytes(kind, data)
	if err != nil {
		return err
	}
	j.Array = arr
	return nil
}
