package reconcile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// StructuredDoc is a successfully parsed structured result.
type StructuredDoc struct {
	// Raw is the document as valid JSON, in its original key order
	Raw json.RawMessage
	// ItemNames are the items[].name strings in document order (untrimmed,
	// possibly blank); nil when the document has no items array.
	ItemNames []string
}

// StructuredParseError reports a structured result that is not valid JSON.
// It is an expected condition and is rendered, not propagated.
type StructuredParseError struct {
	Raw string
	Err error
}

func (e *StructuredParseError) Error() string {
	return fmt.Sprintf("structured result is not valid JSON: %v", e.Err)
}

func (e *StructuredParseError) Unwrap() error {
	return e.Err
}

// ParseStructured parses the structured result. Already-decoded values are
// used as they are. An absent result returns a zero doc and a nil error.
func ParseStructured(sr StructuredResult) (StructuredDoc, error) {
	var raw []byte
	switch sr.Kind {
	case StructuredAbsent:
		return StructuredDoc{}, nil
	case StructuredValue:
		raw = sr.Value
	case StructuredEncoded:
		raw = []byte(strings.TrimSpace(sr.Encoded))
		var parsed interface{}
		if err := json.Unmarshal(raw, &parsed); err != nil {
			return StructuredDoc{}, &StructuredParseError{Raw: sr.Encoded, Err: err}
		}
	}

	return StructuredDoc{
		Raw:       append(json.RawMessage(nil), raw...),
		ItemNames: itemNames(raw),
	}, nil
}

// itemNames reads items[].name from an object document. Entries that are not
// objects or whose name is not a string are skipped.
func itemNames(raw []byte) []string {
	var doc map[string]json.RawMessage
	if json.Unmarshal(raw, &doc) != nil || doc == nil {
		return nil
	}
	rawItems, ok := doc["items"]
	if !ok {
		return nil
	}
	var items []json.RawMessage
	if json.Unmarshal(rawItems, &items) != nil {
		return nil
	}

	names := make([]string, 0, len(items))
	for _, it := range items {
		var fields map[string]json.RawMessage
		if json.Unmarshal(it, &fields) != nil || fields == nil {
			continue
		}
		if name := stringField(fields, "name"); name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Pretty returns the document indented by two spaces.
func (d StructuredDoc) Pretty() string {
	if len(d.Raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, d.Raw, "", "  "); err != nil {
		return string(d.Raw)
	}
	return buf.String()
}
