package policy

import (
	"encoding/json"
	"fmt"

	"github.com/pulsefit/pulsefit-iam/internal/shared"
)

// Operator names a logical or comparison node in a condition tree.
type Operator string

const (
	OpAnd         Operator = "and"
	OpOr          Operator = "or"
	OpNot         Operator = "not"
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
)

// Category names the attribute namespace a leaf resolves against. The set is
// closed: evaluation dispatches on it exhaustively.
type Category string

const (
	CategorySubject     Category = "subject"
	CategoryResource    Category = "resource"
	CategoryAction      Category = "action"
	CategoryEnvironment Category = "environment"
)

func (o Operator) valid() bool {
	switch o {
	case OpAnd, OpOr, OpNot, OpEquals, OpContains, OpGreaterThan, OpLessThan:
		return true
	}
	return false
}

func (c Category) valid() bool {
	switch c {
	case CategorySubject, CategoryResource, CategoryAction, CategoryEnvironment:
		return true
	}
	return false
}

// Condition is a node of the boolean condition tree: either a Node combining
// operands under an operator, or a Leaf naming an attribute.
type Condition interface {
	Validate() error
	isCondition()
}

// Node applies an operator over ordered operands.
type Node struct {
	Op       Operator
	Operands []Condition
}

func (Node) isCondition() {}

// Validate enforces the operand-count invariants recursively.
func (n Node) Validate() error {
	switch n.Op {
	case OpAnd, OpOr:
		if len(n.Operands) == 0 {
			return shared.NewValidationError("condition", string(n.Op)+" requires at least one operand")
		}
	case OpNot:
		if len(n.Operands) != 1 {
			return shared.NewValidationError("condition", "not requires exactly one operand")
		}
	case OpEquals, OpContains, OpGreaterThan, OpLessThan:
		if len(n.Operands) != 2 {
			return shared.NewValidationError("condition", string(n.Op)+" requires exactly two operands")
		}
	default:
		return shared.NewValidationError("condition", "unknown operator "+string(n.Op))
	}
	for _, op := range n.Operands {
		if err := op.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Leaf resolves to an attribute value. When a literal Value is present it
// short-circuits attribute resolution entirely.
type Leaf struct {
	Category  Category
	Attribute string
	Value     any
	HasValue  bool
}

func (Leaf) isCondition() {}

// Validate checks the leaf references a known category or carries a literal.
func (l Leaf) Validate() error {
	if l.HasValue {
		return nil
	}
	if !l.Category.valid() {
		return shared.NewValidationError("condition", "unknown category "+string(l.Category))
	}
	if l.Attribute == "" {
		return shared.NewValidationError("condition", "attribute path required")
	}
	return nil
}

// Conditions persist inside JSONB policy documents. Nodes serialize as
// {"operator": ..., "operands": [...]}, leaves as
// {"category": ..., "attribute": ..., "value"?: ...}.

type nodeDoc struct {
	Operator Operator          `json:"operator"`
	Operands []json.RawMessage `json:"operands"`
}

type leafDoc struct {
	Category  Category         `json:"category"`
	Attribute string           `json:"attribute"`
	Value     *json.RawMessage `json:"value,omitempty"`
}

// MarshalJSON encodes the node document.
func (n Node) MarshalJSON() ([]byte, error) {
	operands := make([]json.RawMessage, len(n.Operands))
	for i, op := range n.Operands {
		raw, err := marshalCondition(op)
		if err != nil {
			return nil, err
		}
		operands[i] = raw
	}
	return json.Marshal(nodeDoc{Operator: n.Op, Operands: operands})
}

// MarshalJSON encodes the leaf document.
func (l Leaf) MarshalJSON() ([]byte, error) {
	doc := leafDoc{Category: l.Category, Attribute: l.Attribute}
	if l.HasValue {
		raw, err := json.Marshal(l.Value)
		if err != nil {
			return nil, err
		}
		msg := json.RawMessage(raw)
		doc.Value = &msg
	}
	return json.Marshal(doc)
}

func marshalCondition(c Condition) (json.RawMessage, error) {
	switch v := c.(type) {
	case Node:
		return v.MarshalJSON()
	case Leaf:
		return v.MarshalJSON()
	case *Node:
		return v.MarshalJSON()
	case *Leaf:
		return v.MarshalJSON()
	default:
		return nil, fmt.Errorf("policy: unsupported condition type %T", c)
	}
}

// DecodeCondition parses a stored condition document back into the tagged
// union. The presence of "operator" selects the node variant.
func DecodeCondition(raw json.RawMessage) (Condition, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("policy: decode condition: %w", err)
	}
	if _, isNode := probe["operator"]; isNode {
		var doc nodeDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("policy: decode condition node: %w", err)
		}
		if !doc.Operator.valid() {
			return nil, fmt.Errorf("policy: decode condition: unknown operator %q", doc.Operator)
		}
		node := Node{Op: doc.Operator, Operands: make([]Condition, len(doc.Operands))}
		for i, op := range doc.Operands {
			child, err := DecodeCondition(op)
			if err != nil {
				return nil, err
			}
			node.Operands[i] = child
		}
		return node, nil
	}
	var doc leafDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("policy: decode condition leaf: %w", err)
	}
	leaf := Leaf{Category: doc.Category, Attribute: doc.Attribute}
	if doc.Value != nil {
		var value any
		if err := json.Unmarshal(*doc.Value, &value); err != nil {
			return nil, fmt.Errorf("policy: decode condition literal: %w", err)
		}
		leaf.Value = value
		leaf.HasValue = true
	} else if !leaf.Category.valid() {
		return nil, fmt.Errorf("policy: decode condition: unknown category %q", leaf.Category)
	}
	return leaf, nil
}
