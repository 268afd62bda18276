// Package properties implements the flat, dotted key/value configuration the
// timeout policy and decision providers are driven by.
//
// Keys look like `migrator.timeout.CountryFacade.GetCountry`. Nested TOML tables
// and YAML mappings are flattened into the same dotted form, so
//
//	[migrator.timeout.CountryFacade]
//	GetCountry = 500
//
// and `migrator.timeout.CountryFacade.GetCountry=500` in an env file describe
// the same property.
package properties

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Properties is an immutable set of dotted keys mapped to string values.
type Properties struct {
	values map[string]string
}

// Source is what consumers of configuration depend on.
type Source interface {
	Lookup(key string) (string, bool)
}

// FromMap copies m into a new Properties.
func FromMap(m map[string]string) *Properties {
	values := make(map[string]string, len(m))
	for k, v := range m {
		values[k] = v
	}
	return &Properties{values: values}
}

// Empty returns a Properties with no keys.
func Empty() *Properties {
	return &Properties{values: map[string]string{}}
}

// LoadTOML reads a TOML file and flattens its tables into dotted keys.
func LoadTOML(path string) (*Properties, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("properties load failed (%s): %w", path, err)
	}
	return ParseTOML(string(data))
}

// ParseTOML flattens a TOML document into dotted keys.
func ParseTOML(doc string) (*Properties, error) {
	var tree map[string]any
	if _, err := toml.Decode(doc, &tree); err != nil {
		return nil, fmt.Errorf("properties parse failed: %w", err)
	}
	p := Empty()
	flatten("", tree, p.values)
	return p, nil
}

// LoadYAML reads a YAML file and flattens its mappings into dotted keys.
func LoadYAML(path string) (*Properties, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("properties load failed (%s): %w", path, err)
	}
	return ParseYAML(data)
}

// ParseYAML flattens a YAML document into dotted keys.
func ParseYAML(doc []byte) (*Properties, error) {
	var tree map[string]any
	if err := yaml.Unmarshal(doc, &tree); err != nil {
		return nil, fmt.Errorf("properties parse failed: %w", err)
	}
	p := Empty()
	flatten("", tree, p.values)
	return p, nil
}

// LoadEnvFile reads a KEY=value file. Keys are kept verbatim.
func LoadEnvFile(path string) (*Properties, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("properties load failed (%s): %w", path, err)
	}
	return &Properties{values: values}, nil
}

func flatten(prefix string, node any, out map[string]string) {
	switch v := node.(type) {
	case map[string]any:
		for k, child := range v {
			flatten(join(prefix, k), child, out)
		}
	case map[any]any:
		for k, child := range v {
			flatten(join(prefix, fmt.Sprint(k)), child, out)
		}
	case nil:
		out[prefix] = ""
	default:
		out[prefix] = fmt.Sprint(v)
	}
}

func join(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// Merge returns a new Properties where keys of later sets override earlier ones.
func Merge(sets ...*Properties) *Properties {
	p := Empty()
	for _, s := range sets {
		if s == nil {
			continue
		}
		for k, v := range s.values {
			p.values[k] = v
		}
	}
	return p
}

func (p *Properties) Lookup(key string) (string, bool) {
	v, ok := p.values[key]
	return v, ok
}

// Get returns the value for key or def when it is missing.
func (p *Properties) Get(key, def string) string {
	if v, ok := p.values[key]; ok {
		return v
	}
	return def
}

// Int parses the value for key. ok is false when the key is missing;
// err is set when the key exists but does not parse.
func (p *Properties) Int(key string) (n int64, ok bool, err error) {
	v, ok := p.values[key]
	if !ok {
		return 0, false, nil
	}
	n, err = strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, true, fmt.Errorf("property %s: %w", key, err)
	}
	return n, true, nil
}

// Bool parses the value for key with strconv.ParseBool semantics.
func (p *Properties) Bool(key string) (b bool, ok bool, err error) {
	v, ok := p.values[key]
	if !ok {
		return false, false, nil
	}
	b, err = strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, true, fmt.Errorf("property %s: %w", key, err)
	}
	return b, true, nil
}

// Duration accepts either a Go duration string or a bare integer of milliseconds.
func (p *Properties) Duration(key string) (d time.Duration, ok bool, err error) {
	v, ok := p.values[key]
	if !ok {
		return 0, false, nil
	}
	v = strings.TrimSpace(v)
	if ms, perr := strconv.ParseInt(v, 10, 64); perr == nil {
		return time.Duration(ms) * time.Millisecond, true, nil
	}
	d, err = time.ParseDuration(v)
	if err != nil {
		return 0, true, fmt.Errorf("property %s: %w", key, err)
	}
	return d, true, nil
}

// Keys returns every key in lexical order.
func (p *Properties) Keys() []string {
	keys := make([]string, 0, len(p.values))
	for k := range p.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Sub returns the properties under prefix with the prefix and its dot removed.
func (p *Properties) Sub(prefix string) *Properties {
	sub := Empty()
	dotted := prefix + "."
	for k, v := range p.values {
		if strings.HasPrefix(k, dotted) {
			sub.values[strings.TrimPrefix(k, dotted)] = v
		}
	}
	return sub
}

func (p *Properties) Len() int {
	return len(p.values)
}
