package consistency

import (
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
	gojson "github.com/goccy/go-json"
)

// Difference is one place where the destination does not carry what the
// source has.
type Difference struct {
	Path        string
	Source      any
	Destination any
	// Missing is set when the destination has no value at Path.
	Missing bool
	// Detail replaces the value rendering, e.g. for length mismatches or
	// summarized sequences.
	Detail string
}

type differ struct {
	unordered bool
	hashed    bool
	diffs     []Difference
}

func (d *differ) add(diff Difference) {
	d.diffs = append(d.diffs, diff)
}

// equal runs a lenient comparison without recording anything.
func (d *differ) equal(src, dst any) bool {
	sub := &differ{unordered: d.unordered, hashed: d.hashed}
	sub.walk("", src, dst)
	return len(sub.diffs) == 0
}

func (d *differ) walk(path string, src, dst any) {
	if src == nil {
		if dst != nil {
			d.add(Difference{Path: path, Source: nil, Destination: dst})
		}
		return
	}
	if dst == nil {
		d.add(Difference{Path: path, Source: src, Missing: true})
		return
	}

	switch s := src.(type) {
	case map[string]any:
		dm, ok := dst.(map[string]any)
		if !ok {
			d.add(Difference{Path: path, Source: src, Destination: dst})
			return
		}
		d.walkObject(path, s, dm)
	case []any:
		da, ok := dst.([]any)
		if !ok {
			d.add(Difference{Path: path, Source: src, Destination: dst})
			return
		}
		d.walkSequence(path, s, da)
	default:
		if !scalarEqual(src, dst) {
			d.add(Difference{Path: path, Source: src, Destination: dst})
		}
	}
}

func (d *differ) walkObject(path string, src, dst map[string]any) {
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		sv := src[k]
		// A missing field and an explicit null are the same thing.
		if sv == nil {
			continue
		}
		d.walk(joinKey(path, k), sv, dst[k])
	}
}

func (d *differ) walkSequence(path string, src, dst []any) {
	if len(src) != len(dst) {
		d.add(Difference{
			Path:        path,
			Source:      len(src),
			Destination: len(dst),
			Detail:      fmt.Sprintf("source has %d elements, destination has %d", len(src), len(dst)),
		})
		return
	}
	switch {
	case d.unordered:
		d.matchMultiset(path, src, dst)
	case d.hashed:
		d.comparePositionsHashed(path, src, dst)
	default:
		for i := range src {
			d.walk(joinIndex(path, i), src[i], dst[i])
		}
	}
}

func (d *differ) comparePositionsHashed(path string, src, dst []any) {
	differing := 0
	for i := range src {
		if hs, ok := hashOf(src[i]); ok {
			if hd, ok := hashOf(dst[i]); ok && hs == hd {
				continue
			}
		}
		if !d.equal(src[i], dst[i]) {
			differing++
		}
	}
	if differing > 0 {
		d.add(Difference{
			Path:   path,
			Detail: fmt.Sprintf("%d of %d elements differ", differing, len(src)),
		})
	}
}

// matchMultiset pairs every source element with a distinct destination
// element it is leniently equal to. Lenient equality is not symmetric, so
// a first-fit pairing can strand an element another assignment would have
// matched; pairs are grown along augmenting paths until the matching is
// maximum. In hashed mode identical encodings seed the matching, which only
// saves pairwise walks: the result has the same size either way.
func (d *differ) matchMultiset(path string, src, dst []any) {
	m := newMatcher(d, src, dst)

	if d.hashed {
		pool := make(map[uint64][]int, len(dst))
		for j, elem := range dst {
			if h, ok := hashOf(elem); ok {
				pool[h] = append(pool[h], j)
			}
		}
		for i, elem := range src {
			h, ok := hashOf(elem)
			if !ok || len(pool[h]) == 0 {
				continue
			}
			j := pool[h][0]
			pool[h] = pool[h][1:]
			m.edges[i*len(dst)+j] = edgeYes
			m.pair(i, j)
		}
	}

	missing := 0
	for i := range src {
		if m.srcTo[i] >= 0 {
			continue
		}
		if m.augment(i, make([]bool, len(dst))) {
			continue
		}
		missing++
		if !d.hashed {
			d.add(Difference{
				Path:   joinIndex(path, i),
				Source: src[i],
				Detail: "no equivalent element in destination for " + render(src[i]),
			})
		}
	}
	if d.hashed && missing > 0 {
		d.add(Difference{
			Path:   path,
			Detail: fmt.Sprintf("%d of %d elements have no equivalent in destination", missing, len(src)),
		})
	}
}

const (
	edgeUnknown byte = iota
	edgeYes
	edgeNo
)

// matcher is a bipartite matching between source and destination elements.
// Edges are walked lazily and remembered, since each one is a full lenient
// comparison.
type matcher struct {
	d        *differ
	src, dst []any
	edges    []byte
	srcTo    []int
	dstTo    []int
}

func newMatcher(d *differ, src, dst []any) *matcher {
	m := &matcher{
		d:     d,
		src:   src,
		dst:   dst,
		edges: make([]byte, len(src)*len(dst)),
		srcTo: make([]int, len(src)),
		dstTo: make([]int, len(dst)),
	}
	for i := range m.srcTo {
		m.srcTo[i] = -1
	}
	for j := range m.dstTo {
		m.dstTo[j] = -1
	}
	return m
}

func (m *matcher) edge(i, j int) bool {
	k := i*len(m.dst) + j
	if m.edges[k] == edgeUnknown {
		m.edges[k] = edgeNo
		if m.d.equal(m.src[i], m.dst[j]) {
			m.edges[k] = edgeYes
		}
	}
	return m.edges[k] == edgeYes
}

func (m *matcher) pair(i, j int) {
	m.srcTo[i] = j
	m.dstTo[j] = i
}

// augment looks for a destination for source i, moving already paired
// source elements to other destinations when that frees one up.
func (m *matcher) augment(i int, seen []bool) bool {
	for j := range m.dst {
		if seen[j] || !m.edge(i, j) {
			continue
		}
		seen[j] = true
		if m.dstTo[j] < 0 || m.augment(m.dstTo[j], seen) {
			m.pair(i, j)
			return true
		}
	}
	return false
}

func hashOf(tree any) (uint64, bool) {
	b, err := canonical(tree)
	if err != nil {
		return 0, false
	}
	return xxhash.Sum64(b), true
}

func scalarEqual(a, b any) bool {
	if ra, ok := number(a); ok {
		rb, ok := number(b)
		return ok && ra.Cmp(rb) == 0
	}
	return reflect.DeepEqual(a, b)
}

// number returns the exact value of a numeric scalar. JSON trees carry
// numbers as their literal text and CBOR trees as int64 or uint64, so large
// identifiers are never rounded through float64.
func number(v any) (*big.Rat, bool) {
	if n, ok := v.(gojson.Number); ok {
		return new(big.Rat).SetString(string(n))
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return new(big.Rat).SetInt64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return new(big.Rat).SetInt(new(big.Int).SetUint64(rv.Uint())), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false
		}
		return new(big.Rat).SetFloat64(f), true
	default:
		return nil, false
	}
}

func joinKey(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func joinIndex(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}
