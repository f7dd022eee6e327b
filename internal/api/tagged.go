// Package api defines the wire types of the client websocket protocol.
// Every union is serialized as an externally tagged JSON object with
// exactly one key, e.g. {"Kill": {...}} or {"Authenticated": null}.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// taggedMarshal emits {"<tag>": <body>}. A nil body yields {"<tag>": null},
// the form unit variants take on the wire.
func taggedMarshal(tag string, body any) ([]byte, error) {
	inner, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	name, err := json.Marshal(tag)
	if err != nil {
		return nil, err
	}
	buf.Write(name)
	buf.WriteByte(':')
	buf.Write(inner)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// taggedUnmarshal extracts the single tag and its body. Bare string forms
// ("GetPlayers") are accepted for unit variants alongside the object form.
func taggedUnmarshal(data []byte) (string, json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var tag string
		if err := json.Unmarshal(trimmed, &tag); err != nil {
			return "", nil, err
		}
		return tag, json.RawMessage("null"), nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", nil, err
	}
	if len(raw) != 1 {
		return "", nil, fmt.Errorf("tagged value must have exactly one key, got %d", len(raw))
	}
	for tag, body := range raw {
		return tag, body, nil
	}
	panic("unreachable")
}
