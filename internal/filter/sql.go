package filter

import (
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// JoinSpec describes how to reach one model's table from the schema's base
// table.
type JoinSpec struct {
	Table string // physical table name
	Join  string // JOIN clause; empty for the base table itself
}

// Schema maps the model names a filter may reference onto tables and join
// clauses for one base model.
type Schema struct {
	Base  string
	Joins map[string]JoinSpec
}

// IncidentSchema lowers filters whose base subject is an incident.
var IncidentSchema = Schema{
	Base: "Incident",
	Joins: map[string]JoinSpec{
		"Incident": {Table: "incidents"},
		"IncidentType": {
			Table: "incident_types",
			Join:  "JOIN incident_types ON incident_types.id = incidents.type_id",
		},
		"IncidentPriority": {
			Table: "incident_priorities",
			Join:  "JOIN incident_priorities ON incident_priorities.id = incidents.priority_id",
		},
		"IncidentSeverity": {
			Table: "incident_severities",
			Join:  "JOIN incident_severities ON incident_severities.id = incidents.severity_id",
		},
		"Project": {
			Table: "projects",
			Join:  "JOIN projects ON projects.id = incidents.project_id",
		},
		"Tag": {
			Table: "tags",
			Join: "JOIN incident_tags ON incident_tags.incident_id = incidents.id " +
				"JOIN tags ON tags.id = incident_tags.tag_id",
		},
	},
}

// CaseSchema lowers filters whose base subject is a case.
var CaseSchema = Schema{
	Base: "Case",
	Joins: map[string]JoinSpec{
		"Case": {Table: "cases"},
		"CaseType": {
			Table: "case_types",
			Join:  "JOIN case_types ON case_types.id = cases.type_id",
		},
		"CasePriority": {
			Table: "case_priorities",
			Join:  "JOIN case_priorities ON case_priorities.id = cases.priority_id",
		},
		"CaseSeverity": {
			Table: "case_severities",
			Join:  "JOIN case_severities ON case_severities.id = cases.severity_id",
		},
		"Project": {
			Table: "projects",
			Join:  "JOIN projects ON projects.id = cases.project_id",
		},
		"Tag": {
			Table: "tags",
			Join: "JOIN case_tags ON case_tags.case_id = cases.id " +
				"JOIN tags ON tags.id = case_tags.tag_id",
		},
	},
}

// SignalInstanceSchema lowers filters whose base subject is a signal
// instance, with entities reachable through the association table.
var SignalInstanceSchema = Schema{
	Base: "SignalInstance",
	Joins: map[string]JoinSpec{
		"SignalInstance": {Table: "signal_instances"},
		"Signal": {
			Table: "signals",
			Join:  "JOIN signals ON signals.id = signal_instances.signal_id",
		},
		"Entity": {
			Table: "entities",
			Join: "JOIN assoc_signal_instance_entities asie ON asie.signal_instance_id = signal_instances.id " +
				"JOIN entities ON entities.id = asie.entity_id",
		},
		"EntityType": {
			Table: "entity_types",
			Join: "JOIN assoc_signal_instance_entities asie ON asie.signal_instance_id = signal_instances.id " +
				"JOIN entities ON entities.id = asie.entity_id " +
				"JOIN entity_types ON entity_types.id = entities.entity_type_id",
		},
	},
}

// Lower rewrites the tree into a parameterized condition plus the set of
// join clauses it needs. Joins are deduplicated: a model referenced twice
// yields one join clause.
func Lower(n *Node, schema Schema) (cond string, args []interface{}, joins []string, err error) {
	v := &lowerer{schema: schema, seenJoins: make(map[string]bool)}
	cond, args, err = v.visit(n)
	if err != nil {
		return "", nil, nil, err
	}
	return cond, args, v.joins, nil
}

// Apply lowers the tree onto an existing gorm query.
func Apply(db *gorm.DB, n *Node, schema Schema) (*gorm.DB, error) {
	cond, args, joins, err := Lower(n, schema)
	if err != nil {
		return nil, err
	}
	q := db
	for _, j := range joins {
		q = q.Joins(j)
	}
	return q.Where(cond, args...), nil
}

type lowerer struct {
	schema    Schema
	seenJoins map[string]bool
	joins     []string
}

func (v *lowerer) visit(n *Node) (string, []interface{}, error) {
	switch {
	case len(n.And) > 0:
		return v.visitGroup(n.And, " AND ")
	case len(n.Or) > 0:
		return v.visitGroup(n.Or, " OR ")
	case n.Leaf != nil:
		return v.visitLeaf(n.Leaf)
	}
	return "", nil, fmt.Errorf("empty filter node")
}

func (v *lowerer) visitGroup(children []*Node, sep string) (string, []interface{}, error) {
	conds := make([]string, 0, len(children))
	var args []interface{}
	for _, child := range children {
		c, a, err := v.visit(child)
		if err != nil {
			return "", nil, err
		}
		conds = append(conds, c)
		args = append(args, a...)
	}
	return "(" + strings.Join(conds, sep) + ")", args, nil
}

func (v *lowerer) visitLeaf(l *Leaf) (string, []interface{}, error) {
	spec, ok := v.schema.Joins[l.Model]
	if !ok {
		return "", nil, fmt.Errorf("model %q not joinable from %s", l.Model, v.schema.Base)
	}
	// Field becomes part of the SQL text, so it must be a bare column
	// identifier even when the tree was built without Parse.
	if !identRe.MatchString(l.Field) {
		return "", nil, fmt.Errorf("invalid filter field %q", l.Field)
	}
	if spec.Join != "" && !v.seenJoins[l.Model] {
		v.seenJoins[l.Model] = true
		v.joins = append(v.joins, spec.Join)
	}

	col := spec.Table + "." + l.Field

	switch l.Op {
	case OpEq, OpNe:
		op := "="
		if l.Op == OpNe {
			op = "<>"
		}
		if _, isStr := l.Value.(string); isStr {
			return fmt.Sprintf("RTRIM(%s) %s RTRIM(?)", col, op), []interface{}{l.Value}, nil
		}
		return fmt.Sprintf("%s %s ?", col, op), []interface{}{l.Value}, nil
	case OpLt, OpGt, OpLe, OpGe:
		return fmt.Sprintf("%s %s ?", col, l.Op), []interface{}{l.Value}, nil
	case OpIn:
		return fmt.Sprintf("%s IN ?", col), []interface{}{toSlice(l.Value)}, nil
	case OpNotIn:
		return fmt.Sprintf("%s NOT IN ?", col), []interface{}{toSlice(l.Value)}, nil
	case OpLike:
		// GLOB-free portable case-sensitive match; Postgres LIKE is
		// case-sensitive already.
		return fmt.Sprintf("%s LIKE ?", col), []interface{}{l.Value}, nil
	case OpILike:
		return fmt.Sprintf("LOWER(%s) LIKE LOWER(?)", col), []interface{}{l.Value}, nil
	}
	return "", nil, fmt.Errorf("unknown filter op %q", l.Op)
}

func toSlice(v interface{}) []interface{} {
	if s, ok := v.([]interface{}); ok {
		return s
	}
	return []interface{}{v}
}
