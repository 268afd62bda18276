// Package consistency decides whether a destination result carries the same
// data as the source result of the same call.
//
// Equality is lenient and asymmetric. The destination may have fields the
// source does not; every non-null source field must be present in the
// destination with an equivalent value. A missing field and a null field are
// the same. Objects are unordered; sequences are positional unless the
// operation declares them unordered.
//
// When either encoded result is larger than the full-diff threshold,
// sequences are compared through an xxhash multiset of their elements' canonical
// encodings and the message reports counts instead of paths. The pass/fail
// outcome does not depend on the threshold.
package consistency

import (
	"fmt"
	"reflect"

	"github.com/surrealdb/migrator/pkg/constants"
)

// Rules are the per-operation comparison settings.
type Rules struct {
	UnorderedArrays bool
	Fields          FieldRules
}

// Result is computed fresh for every comparison.
type Result struct {
	Operation string
	Passed    bool
	// Divergence is the human-readable description of what differs. It is
	// empty when the results agree or when no structural diff was available.
	Divergence  string
	Differences []Difference
	// Summarized is set when sequences were compared by hash.
	Summarized bool
	// SourcePayload and DestinationPayload are the filtered encodings of both
	// results, for the detailed log record.
	SourcePayload      []byte
	DestinationPayload []byte
	// SerializationErr is set when the results could not be reduced to trees
	// and were compared with reflect.DeepEqual instead.
	SerializationErr error
}

type Evaluator struct {
	serializer       Serializer
	maxFullDiffBytes int
}

type Option func(*Evaluator)

func WithSerializer(s Serializer) Option {
	return func(e *Evaluator) {
		e.serializer = s
	}
}

// WithMaxFullDiffBytes sets the encoded size above which sequences are
// compared by hash.
func WithMaxFullDiffBytes(n int) Option {
	return func(e *Evaluator) {
		e.maxFullDiffBytes = n
	}
}

func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		serializer:       JSONSerializer{},
		maxFullDiffBytes: constants.DefaultMaxFullDiffBytes,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compare checks destination against source for operation.
func (e *Evaluator) Compare(operation string, rules Rules, source, destination any) Result {
	res := Result{Operation: operation}

	srcTree, srcRaw, err := e.serializer.Tree(source)
	if err != nil {
		return e.fallback(res, source, destination, fmt.Errorf("serialize source with %s: %w", e.serializer.Name(), err))
	}
	dstTree, dstRaw, err := e.serializer.Tree(destination)
	if err != nil {
		return e.fallback(res, source, destination, fmt.Errorf("serialize destination with %s: %w", e.serializer.Name(), err))
	}

	if !rules.Fields.Empty() {
		srcTree = rules.Fields.Apply(srcTree)
		dstTree = rules.Fields.Apply(dstTree)
	}

	d := &differ{
		unordered: rules.UnorderedArrays,
		hashed:    len(srcRaw) > e.maxFullDiffBytes || len(dstRaw) > e.maxFullDiffBytes,
	}
	d.walk("", srcTree, dstTree)

	res.Passed = len(d.diffs) == 0
	res.Summarized = d.hashed
	if res.Passed {
		return res
	}
	res.Differences = d.diffs
	res.Divergence = describe(operation, d.diffs)
	res.SourcePayload = payload(srcTree)
	res.DestinationPayload = payload(dstTree)
	return res
}

func (e *Evaluator) fallback(res Result, source, destination any, err error) Result {
	res.SerializationErr = err
	res.Passed = reflect.DeepEqual(source, destination)
	return res
}

func payload(tree any) []byte {
	b, err := canonical(tree)
	if err != nil {
		return []byte(fmt.Sprintf("%v", tree))
	}
	return b
}
