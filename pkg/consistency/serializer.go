package consistency

import (
	"bytes"
	"reflect"

	"github.com/fxamacker/cbor/v2"
	gojson "github.com/goccy/go-json"
)

// Serializer reduces a value to the tree form the evaluator walks:
// map[string]any for objects, []any for sequences and scalars otherwise.
// The raw encoding is returned too; its length drives the choice between a
// full and a hashed comparison.
type Serializer interface {
	Name() string
	Tree(v any) (tree any, raw []byte, err error)
}

// JSONSerializer goes through the value's JSON encoding, so json struct tags
// and custom MarshalJSON methods decide what is compared. Numbers stay as
// their literal text in the tree.
type JSONSerializer struct{}

func (JSONSerializer) Name() string {
	return "json"
}

func (JSONSerializer) Tree(v any) (any, []byte, error) {
	raw, err := gojson.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	dec := gojson.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, raw, err
	}
	return tree, raw, nil
}

// CBORSerializer goes through the value's CBOR encoding. Use it for results
// whose types only know how to marshal themselves to CBOR, as values read
// from SurrealDB often do.
type CBORSerializer struct {
	dm cbor.DecMode
}

func NewCBORSerializer() (*CBORSerializer, error) {
	dm, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		return nil, err
	}
	return &CBORSerializer{dm: dm}, nil
}

func (*CBORSerializer) Name() string {
	return "cbor"
}

func (s *CBORSerializer) Tree(v any) (any, []byte, error) {
	raw, err := cbor.Marshal(v)
	if err != nil {
		return nil, nil, err
	}
	var tree any
	if err := s.dm.Unmarshal(raw, &tree); err != nil {
		return nil, raw, err
	}
	return tree, raw, nil
}

// canonical encodes a tree so that equal trees produce equal bytes. Map keys
// are written sorted.
func canonical(tree any) ([]byte, error) {
	return gojson.Marshal(tree)
}
