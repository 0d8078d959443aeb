package filter

import (
	"fmt"
	"strings"
)

// Candidate is the in-memory evaluation subject: model name → field name →
// value. A field value may be a []interface{} when the subject carries
// several values for one attribute (e.g. the entities on a signal
// instance); a leaf then matches if any element matches.
type Candidate map[string]map[string]interface{}

// Set records one attribute on the candidate.
func (c Candidate) Set(model, field string, value interface{}) {
	if c[model] == nil {
		c[model] = make(map[string]interface{})
	}
	c[model][field] = value
}

// Add appends one value to a multi-valued attribute.
func (c Candidate) Add(model, field string, value interface{}) {
	if c[model] == nil {
		c[model] = make(map[string]interface{})
	}
	switch existing := c[model][field].(type) {
	case nil:
		c[model][field] = []interface{}{value}
	case []interface{}:
		c[model][field] = append(existing, value)
	default:
		c[model][field] = []interface{}{existing, value}
	}
}

// Eval evaluates the tree against the candidate. A leaf referencing an
// attribute the candidate lacks is false.
func (n *Node) Eval(c Candidate) bool {
	switch {
	case len(n.And) > 0:
		for _, child := range n.And {
			if !child.Eval(c) {
				return false
			}
		}
		return true
	case len(n.Or) > 0:
		for _, child := range n.Or {
			if child.Eval(c) {
				return true
			}
		}
		return false
	case n.Leaf != nil:
		return n.Leaf.eval(c)
	}
	return false
}

func (l *Leaf) eval(c Candidate) bool {
	fields, ok := c[l.Model]
	if !ok {
		return false
	}
	value, ok := fields[l.Field]
	if !ok {
		return false
	}
	if values, multi := value.([]interface{}); multi {
		for _, v := range values {
			if compare(v, l.Op, l.Value) {
				return true
			}
		}
		return false
	}
	return compare(value, l.Op, l.Value)
}

func compare(have interface{}, op Op, want interface{}) bool {
	switch op {
	case OpEq:
		return equal(have, want)
	case OpNe:
		return !equal(have, want)
	case OpLt, OpGt, OpLe, OpGe:
		return ordered(have, op, want)
	case OpIn:
		return contains(want, have)
	case OpNotIn:
		return !contains(want, have)
	case OpLike:
		return like(have, want, false)
	case OpILike:
		return like(have, want, true)
	}
	return false
}

func equal(a, b interface{}) bool {
	if fa, oka := toFloat(a); oka {
		if fb, okb := toFloat(b); okb {
			return fa == fb
		}
	}
	// String comparison trims trailing whitespace on both sides.
	if sa, oka := a.(string); oka {
		if sb, okb := b.(string); okb {
			return strings.TrimRight(sa, " \t\n") == strings.TrimRight(sb, " \t\n")
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func ordered(a interface{}, op Op, b interface{}) bool {
	fa, oka := toFloat(a)
	fb, okb := toFloat(b)
	if oka && okb {
		switch op {
		case OpLt:
			return fa < fb
		case OpGt:
			return fa > fb
		case OpLe:
			return fa <= fb
		case OpGe:
			return fa >= fb
		}
		return false
	}
	sa := strings.TrimRight(fmt.Sprintf("%v", a), " \t\n")
	sb := strings.TrimRight(fmt.Sprintf("%v", b), " \t\n")
	switch op {
	case OpLt:
		return sa < sb
	case OpGt:
		return sa > sb
	case OpLe:
		return sa <= sb
	case OpGe:
		return sa >= sb
	}
	return false
}

func contains(list interface{}, item interface{}) bool {
	values, ok := list.([]interface{})
	if !ok {
		return false
	}
	for _, v := range values {
		if equal(item, v) {
			return true
		}
	}
	return false
}

// like implements %-wildcard matching. The pattern is split on % and each
// fragment must appear in order; anchored fragments must match at the
// start/end.
func like(have, pattern interface{}, insensitive bool) bool {
	s := fmt.Sprintf("%v", have)
	p := fmt.Sprintf("%v", pattern)
	if insensitive {
		s = strings.ToLower(s)
		p = strings.ToLower(p)
	}

	parts := strings.Split(p, "%")
	if len(parts) == 1 {
		return s == p
	}

	if parts[0] != "" {
		if !strings.HasPrefix(s, parts[0]) {
			return false
		}
		s = s[len(parts[0]):]
	}
	last := parts[len(parts)-1]
	if last != "" {
		if !strings.HasSuffix(s, last) {
			return false
		}
		s = s[:len(s)-len(last)]
	}
	for _, frag := range parts[1 : len(parts)-1] {
		if frag == "" {
			continue
		}
		idx := strings.Index(s, frag)
		if idx < 0 {
			return false
		}
		s = s[idx+len(frag):]
	}
	return true
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}
