package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/google/go-cmp/cmp"
	"gopkg.in/yaml.v3"
)

var _ interface {
	json.Marshaler
	json.Unmarshaler
	yaml.Unmarshaler
} = (*Params)(nil)

// Param is one item of Params.
type Param struct {
	Key   string
	Value any

	deleted bool
}

// P may be used to build a Param inline: NewParams(P("a", 1), P("b", "c")).
func P(key string, value any) Param {
	return Param{Key: key, Value: value}
}

// Params is an order-preserving mapping from parameter name to value, used
// for request bodies. Values may be strings, numbers, bools, slices, maps or
// nested *Params; they are kept exactly as set.
type Params struct {
	items []Param
	index map[string]int
}

// NewParams returns Params holding items, in order. A repeated key keeps its
// first position and its last value.
func NewParams(items ...Param) *Params {
	p := &Params{
		items: make([]Param, 0, len(items)),
		index: make(map[string]int, len(items)),
	}
	for _, it := range items {
		p.Set(it.Key, it.Value)
	}
	return p
}

// ParamsFromMap copies m into Params with keys in ascending order.
func ParamsFromMap(m map[string]any) *Params {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	p := NewParams()
	for _, k := range keys {
		p.Set(k, m[k])
	}
	return p
}

// Len returns the number of items.
func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.index)
}

// Get retrieves the value for key, and reports if it was found.
func (p *Params) Get(key string) (any, bool) {
	if p == nil {
		return nil, false
	}
	idx, ok := p.index[key]
	if !ok {
		return nil, false
	}
	return p.items[idx].Value, true
}

// Contains reports if key is present.
func (p *Params) Contains(key string) bool {
	if p == nil {
		return false
	}
	_, ok := p.index[key]
	return ok
}

// Set sets the value for key. An existing key keeps its position; a new key
// is appended.
func (p *Params) Set(key string, value any) {
	// new(Params) leaves index nil.
	if p.index == nil {
		p.index = make(map[string]int, 1)
	}

	if idx, exists := p.index[key]; exists {
		p.items[idx].Value = value
		return
	}

	p.index[key] = len(p.items)
	p.items = append(p.items, Param{Key: key, Value: value})
}

// Delete removes key. It does nothing if key is absent.
func (p *Params) Delete(key string) {
	if p == nil {
		return
	}
	idx, ok := p.index[key]
	if !ok {
		return
	}
	p.items[idx].deleted = true
	delete(p.index, key)

	if len(p.items) >= 2*len(p.index) {
		p.compact()
	}
}

func (p *Params) compact() {
	items := make([]Param, 0, len(p.index))
	for _, it := range p.items {
		if it.deleted {
			continue
		}
		p.index[it.Key] = len(items)
		items = append(items, Param{Key: it.Key, Value: it.Value})
	}
	p.items = items
}

// Keys returns the keys in order.
func (p *Params) Keys() []string {
	keys := make([]string, 0, p.Len())
	p.Range(func(k string, _ any) error {
		keys = append(keys, k)
		return nil
	})
	return keys
}

// Range calls f for each item in order. If f returns an error, Range stops
// and returns it.
func (p *Params) Range(f func(key string, value any) error) error {
	if p.Len() == 0 {
		return nil
	}
	for _, it := range p.items {
		if it.deleted {
			continue
		}
		if err := f(it.Key, it.Value); err != nil {
			return err
		}
	}
	return nil
}

// EqualParams reports if a and b hold the same items in the same order.
// Values are compared with go-cmp.
func EqualParams(a, b *Params) bool {
	if a == nil || b == nil {
		return a.Len() == b.Len()
	}
	if a.Len() != b.Len() {
		return false
	}
	ak, bk := a.Keys(), b.Keys()
	for i := range ak {
		if ak[i] != bk[i] {
			return false
		}
		av, _ := a.Get(ak[i])
		bv, _ := b.Get(bk[i])
		if !cmp.Equal(av, bv, cmp.Comparer(EqualParams)) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes p as a JSON object in order.
func (p *Params) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	err := p.Range(func(k string, v any) error {
		if b.Len() > 1 {
			b.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return err
		}
		value, err := json.Marshal(v)
		if err != nil {
			return err
		}
		b.Write(key)
		b.WriteByte(':')
		b.Write(value)
		return nil
	})
	if err != nil {
		return nil, err
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object, keeping key order. JSON is YAML, so
// this goes through yaml.v3.
func (p *Params) UnmarshalJSON(b []byte) error {
	return yaml.Unmarshal(b, p)
}

// UnmarshalYAML decodes a mapping node. Nested mappings become *Params and
// sequences become []any.
func (p *Params) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.DocumentNode && len(n.Content) == 1 {
		n = n.Content[0]
	}
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d, col %d: body must be a mapping", n.Line, n.Column)
	}
	v, err := decodeYAML(make(map[*yaml.Node]bool), n)
	if err != nil {
		return err
	}
	*p = *v.(*Params)
	return nil
}

func decodeYAML(seen map[*yaml.Node]bool, n *yaml.Node) (any, error) {
	if n == nil {
		return nil, nil
	}

	// An alias that points at one of its own parents never terminates.
	if seen[n] {
		return nil, fmt.Errorf("line %d, col %d: infinite recursion", n.Line, n.Column)
	}
	seen[n] = true
	defer delete(seen, n)

	switch n.Kind {
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return nil, err
		}
		return v, nil

	case yaml.SequenceNode:
		v := make([]any, 0, len(n.Content))
		for _, c := range n.Content {
			cv, err := decodeYAML(seen, c)
			if err != nil {
				return nil, err
			}
			v = append(v, cv)
		}
		return v, nil

	case yaml.MappingNode:
		m := NewParams()
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			if key.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d, col %d: parameter names must be scalars", key.Line, key.Column)
			}
			v, err := decodeYAML(seen, val)
			if err != nil {
				return nil, err
			}
			m.Set(key.Value, v)
		}
		return m, nil

	case yaml.AliasNode:
		return decodeYAML(seen, n.Alias)

	case yaml.DocumentNode:
		switch len(n.Content) {
		case 0:
			return nil, nil
		case 1:
			return decodeYAML(seen, n.Content[0])
		default:
			return nil, fmt.Errorf("line %d, col %d: document contains more than 1 content item (%d)", n.Line, n.Column, len(n.Content))
		}

	default:
		return nil, fmt.Errorf("line %d, col %d: unsupported kind %x", n.Line, n.Column, n.Kind)
	}
}

// Encode renders p as an application/x-www-form-urlencoded body, in order.
// Strings pass through, numbers and bools are formatted, and anything else
// (slices, maps, nested Params) is sent as JSON, which is how the Graph API
// accepts structured parameters.
func (p *Params) Encode() (string, error) {
	var b strings.Builder
	err := p.Range(func(k string, v any) error {
		s, err := formValue(v)
		if err != nil {
			return fmt.Errorf("encoding parameter %q: %w", k, err)
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(k))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(s))
		return nil
	})
	return b.String(), err
}

func formValue(v any) (string, error) {
	switch tv := v.(type) {
	case nil:
		return "", nil
	case string:
		return tv, nil
	case bool:
		return strconv.FormatBool(tv), nil
	case int:
		return strconv.Itoa(tv), nil
	case int64:
		return strconv.FormatInt(tv, 10), nil
	case float64:
		return strconv.FormatFloat(tv, 'f', -1, 64), nil
	case fmt.Stringer:
		return tv.String(), nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
