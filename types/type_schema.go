package types

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
)

// Schema is the field-name to type mapping a stream commits to for one
// invocation. Field order is the order in which fields were first seen.
// Once frozen it rejects further changes.
type Schema struct {
	mu         sync.RWMutex
	order      []string
	properties map[string]*Property
	frozen     bool
}

func NewSchema() *Schema {
	return &Schema{
		properties: make(map[string]*Property),
	}
}

// UpsertField records an observed type for the column, widening an existing
// property instead of replacing it.
func (s *Schema) UpsertField(column string, typ DataType, nullable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.frozen {
		return fmt.Errorf("schema is frozen, cannot add field [%s]", column)
	}

	p, found := s.properties[column]
	if !found {
		p = &Property{Type: NewSet[DataType]()}
		s.properties[column] = p
		s.order = append(s.order, column)
	}
	p.Type.Insert(typ)
	if nullable {
		p.Type.Insert(Null)
	}
	return nil
}

// Freeze makes the schema immutable and returns it.
func (s *Schema) Freeze() *Schema {
	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()
	return s
}

func (s *Schema) Frozen() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frozen
}

// Fields returns the field names in schema order.
func (s *Schema) Fields() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Schema) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *Schema) GetType(column string) (DataType, error) {
	p, found := s.GetProperty(column)
	if !found {
		return "", fmt.Errorf("column [%s] missing from type schema", column)
	}
	return p.DataType(), nil
}

func (s *Schema) GetProperty(column string) (*Property, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, found := s.properties[column]
	return p, found
}

// MarshalJSON renders the schema as a JSON schema object with properties in
// schema order.
func (s *Schema) MarshalJSON() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var buf bytes.Buffer
	buf.WriteString(`{"type":"object","properties":{`)
	for i, column := range s.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(column)
		if err != nil {
			return nil, err
		}
		prop, err := json.Marshal(s.properties[column])
		if err != nil {
			return nil, fmt.Errorf("failed to marshal property %s: %s", column, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(prop)
	}
	buf.WriteString("}}")
	return buf.Bytes(), nil
}

// Property is a dto for schema properties representation
type Property struct {
	Type *Set[DataType]
}

func (p *Property) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string][]string{
		"type": p.DataType().JSONSchemaTypes(p.Nullable()),
	})
}

// returns datatype according to typecast tree if multiple type present
func (p *Property) DataType() DataType {
	var types []DataType
	for _, t := range p.Type.Array() {
		// remove null, to not mess up with tree
		if t != Null {
			types = append(types, t)
		}
	}

	// if only null was present
	if len(types) == 0 {
		return Null
	}

	commonType := types[0]
	for idx := 1; idx < len(types); idx++ {
		commonType = GetCommonAncestorType(commonType, types[idx])
	}
	return commonType
}

func (p *Property) Nullable() bool {
	return p.Type.Exists(Null)
}

// Tree that is being used for typecasting

type typeNode struct {
	t     DataType
	left  *typeNode
	right *typeNode
}

var typecastTree = &typeNode{
	t: String,
	left: &typeNode{
		t: Float64,
		left: &typeNode{
			t: Int64,
			left: &typeNode{
				t: Bool,
			},
		},
	},
}

// GetCommonAncestorType returns lowest common ancestor type
func GetCommonAncestorType(t1, t2 DataType) DataType {
	if t1 == t2 {
		return t1
	}
	return lowestCommonAncestor(typecastTree, t1, t2)
}

func lowestCommonAncestor(
	root *typeNode,
	t1, t2 DataType,
) DataType {
	wt1, t1Exist := TypeWeights[t1]
	wt2, t2Exist := TypeWeights[t2]
	// object, array and any do not widen into scalars
	if !t1Exist || !t2Exist {
		return Any
	}

	node := root
	for node != nil {
		rootW := TypeWeights[node.t]
		if wt1 > rootW && wt2 > rootW {
			node = node.right
		} else if wt1 < rootW && wt2 < rootW {
			node = node.left
		} else {
			// We have found the split point, i.e. the LCA node.
			return node.t
		}
	}
	return Unknown
}
