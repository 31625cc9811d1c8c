package generation

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// imageURLKeys are the object keys inspected, in order, when the terminal
// output is a JSON object.
var imageURLKeys = []string{"image_url", "url", "image"}

// ExtractReference decodes the terminal payload's output field into a single
// image reference. The field is a union of three shapes: an object carrying an
// image-url key, a bare string, or a non-empty array of strings (first element
// wins). Any other shape, or an empty result, is an ErrOutputFormat.
func ExtractReference(output json.RawMessage) (string, error) {
	raw := bytes.TrimSpace(output)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("%w: empty or missing result", ErrOutputFormat)
	}

	switch raw[0] {
	case '{':
		return extractFromObject(raw)
	case '"':
		var ref string
		if err := json.Unmarshal(raw, &ref); err != nil {
			return "", fmt.Errorf("%w: %v", ErrOutputFormat, err)
		}
		if ref == "" {
			return "", fmt.Errorf("%w: empty output string", ErrOutputFormat)
		}
		return ref, nil
	case '[':
		return extractFromList(raw)
	default:
		return "", fmt.Errorf("%w: unexpected output shape %s", ErrOutputFormat, truncate(string(raw), 64))
	}
}

func extractFromObject(raw []byte) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return "", fmt.Errorf("%w: %v", ErrOutputFormat, err)
	}
	for _, key := range imageURLKeys {
		val, ok := fields[key]
		if !ok {
			continue
		}
		var ref string
		if err := json.Unmarshal(val, &ref); err != nil {
			continue
		}
		if ref != "" {
			return ref, nil
		}
	}
	return "", fmt.Errorf("%w: no image url key in output object", ErrOutputFormat)
}

func extractFromList(raw []byte) (string, error) {
	var refs []string
	if err := json.Unmarshal(raw, &refs); err != nil {
		return "", fmt.Errorf("%w: %v", ErrOutputFormat, err)
	}
	if len(refs) == 0 || refs[0] == "" {
		return "", fmt.Errorf("%w: empty output list", ErrOutputFormat)
	}
	return refs[0], nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
