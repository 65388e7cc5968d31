// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package query

// Operator names a predicate kind. String returns the PostgREST operator.
type Operator int

const (
	OpEq Operator = iota
	OpNeq
	OpGt
	OpGte
	OpLt
	OpLte
	OpLike
	OpILike
	OpIs
	OpIn
)

var operatorNames = [...]string{
	OpEq:    "eq",
	OpNeq:   "neq",
	OpGt:    "gt",
	OpGte:   "gte",
	OpLt:    "lt",
	OpLte:   "lte",
	OpLike:  "like",
	OpILike: "ilike",
	OpIs:    "is",
	OpIn:    "in",
}

func (o Operator) String() string {
	if o < 0 || int(o) >= len(operatorNames) {
		return "unknown"
	}
	return operatorNames[o]
}

// Operation is one recorded predicate. Value is the operand for every operator
// except OpIn, whose operands are in Values.
type Operation struct {
	Operator Operator
	Column   string
	Value    interface{}
	Values   []interface{}
}

// FilterTarget receives predicates one at a time. Each call is a complete,
// already-scoped predicate; implementations AND them together.
type FilterTarget interface {
	Eq(column string, value interface{})
	Neq(column string, value interface{})
	Gt(column string, value interface{})
	Gte(column string, value interface{})
	Lt(column string, value interface{})
	Lte(column string, value interface{})
	Like(column, pattern string)
	ILike(column, pattern string)
	Is(column string, value interface{})
	In(column string, values ...interface{})
}

// FilterBuilder records predicates in call order. Its methods return nothing so
// it can be filled from inside a Where block.
//
// A FilterBuilder belongs to one query. Do not share it between queries.
type FilterBuilder struct {
	ops []Operation
}

var _ FilterTarget = (*FilterBuilder)(nil)

// NewFilter returns an empty builder.
func NewFilter() *FilterBuilder {
	return &FilterBuilder{}
}

func (b *FilterBuilder) add(op Operator, column string, value interface{}) {
	b.ops = append(b.ops, Operation{Operator: op, Column: column, Value: value})
}

func (b *FilterBuilder) Eq(column string, value interface{}) {
	b.add(OpEq, column, value)
}

func (b *FilterBuilder) Neq(column string, value interface{}) {
	b.add(OpNeq, column, value)
}

func (b *FilterBuilder) Gt(column string, value interface{}) {
	b.add(OpGt, column, value)
}

func (b *FilterBuilder) Gte(column string, value interface{}) {
	b.add(OpGte, column, value)
}

func (b *FilterBuilder) Lt(column string, value interface{}) {
	b.add(OpLt, column, value)
}

func (b *FilterBuilder) Lte(column string, value interface{}) {
	b.add(OpLte, column, value)
}

func (b *FilterBuilder) Like(column, pattern string) {
	b.add(OpLike, column, pattern)
}

func (b *FilterBuilder) ILike(column, pattern string) {
	b.add(OpILike, column, pattern)
}

// Is records an exact match against null, true or false.
func (b *FilterBuilder) Is(column string, value interface{}) {
	b.add(OpIs, column, value)
}

// IsNull is Is(column, nil).
func (b *FilterBuilder) IsNull(column string) {
	b.Is(column, nil)
}

// In records set membership. The values are copied.
func (b *FilterBuilder) In(column string, values ...interface{}) {
	cp := make([]interface{}, len(values))
	copy(cp, values)
	b.ops = append(b.ops, Operation{Operator: OpIn, Column: column, Values: cp})
}

// Len returns the number of recorded predicates. A nil builder has none.
func (b *FilterBuilder) Len() int {
	if b == nil {
		return 0
	}
	return len(b.ops)
}

// Operations returns a copy of the recorded predicates in call order.
func (b *FilterBuilder) Operations() []Operation {
	if b == nil {
		return nil
	}
	out := make([]Operation, len(b.ops))
	copy(out, b.ops)
	return out
}

// Apply replays every predicate against target as a separate call, in the order
// recorded. It never groups predicates, so the same builder works for reads and
// for update/delete targets alike.
func (b *FilterBuilder) Apply(target FilterTarget) {
	if b == nil || target == nil {
		return
	}
	for _, op := range b.ops {
		switch op.Operator {
		case OpEq:
			target.Eq(op.Column, op.Value)
		case OpNeq:
			target.Neq(op.Column, op.Value)
		case OpGt:
			target.Gt(op.Column, op.Value)
		case OpGte:
			target.Gte(op.Column, op.Value)
		case OpLt:
			target.Lt(op.Column, op.Value)
		case OpLte:
			target.Lte(op.Column, op.Value)
		case OpLike:
			target.Like(op.Column, op.Value.(string))
		case OpILike:
			target.ILike(op.Column, op.Value.(string))
		case OpIs:
			target.Is(op.Column, op.Value)
		case OpIn:
			target.In(op.Column, op.Values...)
		}
	}
}
