// Package filter implements the filter expression engine.
//
// A filter is a tree of and/or groups over (model, field, op, value)
// leaves, serialized as JSON:
//
//	{"and": [{"model": "Incident", "field": "title", "op": "==", "value": "x"}]}
//
// The same tree evaluates two ways: in memory against a candidate object,
// and lowered onto a database query. Both modes agree on operator
// semantics.
package filter

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// Op is a leaf comparison operator.
type Op string

const (
	OpEq    Op = "=="
	OpNe    Op = "!="
	OpLt    Op = "<"
	OpGt    Op = ">"
	OpLe    Op = "<="
	OpGe    Op = ">="
	OpIn    Op = "in"
	OpNotIn Op = "not_in"
	OpLike  Op = "like"
	OpILike Op = "ilike"
)

var validOps = map[Op]bool{
	OpEq: true, OpNe: true, OpLt: true, OpGt: true, OpLe: true, OpGe: true,
	OpIn: true, OpNotIn: true, OpLike: true, OpILike: true,
}

// Field names are snake_case column identifiers. Anything else is
// rejected before the tree can reach SQL lowering.
var identRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Leaf is one comparison against a model field.
type Leaf struct {
	Model string      `json:"model"`
	Field string      `json:"field"`
	Op    Op          `json:"op"`
	Value interface{} `json:"value"`
}

// Node is one tree node: exactly one of And, Or, or Leaf is set.
type Node struct {
	And  []*Node `json:"and,omitempty"`
	Or   []*Node `json:"or,omitempty"`
	Leaf *Leaf   `json:"-"`
}

// MarshalJSON renders leaves flat rather than under a key.
func (n *Node) MarshalJSON() ([]byte, error) {
	if n.Leaf != nil {
		return json.Marshal(n.Leaf)
	}
	type group struct {
		And []*Node `json:"and,omitempty"`
		Or  []*Node `json:"or,omitempty"`
	}
	return json.Marshal(group{And: n.And, Or: n.Or})
}

// UnmarshalJSON accepts either a group or a flat leaf object.
func (n *Node) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	if groupRaw, ok := raw["and"]; ok {
		return json.Unmarshal(groupRaw, &n.And)
	}
	if groupRaw, ok := raw["or"]; ok {
		return json.Unmarshal(groupRaw, &n.Or)
	}

	var leaf Leaf
	if err := json.Unmarshal(data, &leaf); err != nil {
		return err
	}
	n.Leaf = &leaf
	return nil
}

// Parse decodes and validates a filter expression from JSON.
func Parse(data []byte) (*Node, error) {
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}
	if err := n.Validate(); err != nil {
		return nil, err
	}
	return &n, nil
}

// ParseMap decodes a filter expression from an already-unmarshaled map,
// the form stored in JSONB columns.
func ParseMap(expr map[string]interface{}) (*Node, error) {
	data, err := json.Marshal(expr)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Validate checks structural soundness: every node is exactly one of
// group/leaf, every leaf has model, field, and a known op.
func (n *Node) Validate() error {
	set := 0
	if len(n.And) > 0 {
		set++
	}
	if len(n.Or) > 0 {
		set++
	}
	if n.Leaf != nil {
		set++
	}
	if set != 1 {
		return fmt.Errorf("filter node must be exactly one of and/or/leaf")
	}
	for _, child := range append(n.And, n.Or...) {
		if err := child.Validate(); err != nil {
			return err
		}
	}
	if n.Leaf != nil {
		if n.Leaf.Model == "" || n.Leaf.Field == "" {
			return fmt.Errorf("filter leaf requires model and field")
		}
		if !identRe.MatchString(n.Leaf.Field) {
			return fmt.Errorf("invalid filter field %q", n.Leaf.Field)
		}
		if !validOps[n.Leaf.Op] {
			return fmt.Errorf("unknown filter op %q", n.Leaf.Op)
		}
	}
	return nil
}

// Leaves returns every leaf in the tree, depth first.
func (n *Node) Leaves() []*Leaf {
	if n.Leaf != nil {
		return []*Leaf{n.Leaf}
	}
	var out []*Leaf
	for _, child := range append(n.And, n.Or...) {
		out = append(out, child.Leaves()...)
	}
	return out
}
