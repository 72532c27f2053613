package storage

import (
	"encoding/json"
	"errors"
	"fmt"
)

// encodeMeta renders a metadata mapping as the JSON document stored in an
// object's meta file. A nil mapping encodes as an empty object.
func encodeMeta(meta map[string]any) ([]byte, error) {
	if meta == nil {
		meta = map[string]any{}
	}
	doc, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: meta not encodable: %v", ErrInvalidArgument, err)
	}
	return doc, nil
}

// metaDecoders is the ordered chain of supported meta encodings. Each
// decoder reports whether the document matched its shape; the first match
// wins. A document that matches a shape but fails to parse is a hard
// failure, as is a document that matches no shape at all.
var metaDecoders = []struct {
	name   string
	decode func(doc []byte) (map[string]any, bool, error)
}{
	{name: "object", decode: decodeObjectMeta},
	{name: "legacy-wrapped", decode: decodeLegacyMeta},
}

// decodeMeta parses a meta document through the decoder chain.
func decodeMeta(doc []byte) (map[string]any, error) {
	for _, dec := range metaDecoders {
		meta, ok, err := dec.decode(doc)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMetaDecode, dec.name, err)
		}
		if ok {
			return meta, nil
		}
	}
	return nil, fmt.Errorf("%w: document matches no supported encoding", ErrMetaDecode)
}

// decodeObjectMeta handles the current encoding: the document is the JSON
// object itself.
func decodeObjectMeta(doc []byte) (map[string]any, bool, error) {
	var meta map[string]any
	if err := json.Unmarshal(doc, &meta); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			// Valid JSON of another shape; let the next decoder try.
			return nil, false, nil
		}
		return nil, false, err
	}
	if meta == nil {
		// JSON null parses into a nil map without error.
		return nil, false, nil
	}
	return meta, true, nil
}

// decodeLegacyMeta handles documents written by older engines: a JSON
// string whose value is the serialized object, needing one extra unwrap.
func decodeLegacyMeta(doc []byte) (map[string]any, bool, error) {
	var wrapped string
	if err := json.Unmarshal(doc, &wrapped); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var meta map[string]any
	if err := json.Unmarshal([]byte(wrapped), &meta); err != nil {
		return nil, false, fmt.Errorf("unwrap wrapped document: %v", err)
	}
	if meta == nil {
		return nil, false, fmt.Errorf("wrapped document is not an object")
	}
	return meta, true, nil
}
