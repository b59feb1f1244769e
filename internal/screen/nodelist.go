package screen

import (
	"bytes"
	"encoding/json"
	"log"
)

// NodeList is an ordered list of nodes. Decoding is lenient per element:
// entries that are not JSON objects are dropped with a warning instead of
// failing the whole document.
type NodeList []*ComponentNode

func (l *NodeList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*l = nil
		return nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(trimmed, &raws); err != nil {
		return err
	}
	out := make(NodeList, 0, len(raws))
	for i, raw := range raws {
		if !isObject(raw) {
			log.Printf("screen: skipping non-object node at index %d: %s", i, abbreviate(raw))
			continue
		}
		var node ComponentNode
		if err := json.Unmarshal(raw, &node); err != nil {
			log.Printf("screen: skipping malformed node at index %d: %v", i, err)
			continue
		}
		out = append(out, &node)
	}
	*l = out
	return nil
}

func isObject(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func abbreviate(raw []byte) string {
	const max = 64
	if len(raw) <= max {
		return string(raw)
	}
	return string(raw[:max]) + "..."
}
