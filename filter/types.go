// Package filter parses the filter pushdown JSON that the DuckDB Airport
// extension sends with the endpoints action, and renders parsed expressions
// back to SQL text for diagnostics.
//
// Parse returns a FilterPushdown: a list of expressions that are implicitly
// AND-ed, plus the column names their bindings refer to.
//
//	fp, err := filter.Parse(scanOpts.Filter)
//	if err != nil {
//	    return err
//	}
//	for _, expr := range fp.Filters {
//	    log.Println(filter.Format(expr, fp.ColumnBindings))
//	}
//
// Expression classes that a pushdown consumer has no use for (aggregates,
// windows, subqueries, CASE) are parsed as UnsupportedExpression so that a
// filter containing them still parses.
package filter

import "strconv"

// ExpressionClass identifies the category of expression.
type ExpressionClass string

const (
	ClassBoundCast        ExpressionClass = "BOUND_CAST"
	ClassBoundColumnRef   ExpressionClass = "BOUND_COLUMN_REF"
	ClassBoundComparison  ExpressionClass = "BOUND_COMPARISON"
	ClassBoundConjunction ExpressionClass = "BOUND_CONJUNCTION"
	ClassBoundConstant    ExpressionClass = "BOUND_CONSTANT"
	ClassBoundFunction    ExpressionClass = "BOUND_FUNCTION"
	ClassBoundOperator    ExpressionClass = "BOUND_OPERATOR"
	ClassBoundBetween     ExpressionClass = "BOUND_BETWEEN"
)

// ExpressionType identifies the specific operation.
type ExpressionType string

const (
	TypeCompareEqual              ExpressionType = "COMPARE_EQUAL"
	TypeCompareNotEqual           ExpressionType = "COMPARE_NOTEQUAL"
	TypeCompareLessThan           ExpressionType = "COMPARE_LESSTHAN"
	TypeCompareGreaterThan        ExpressionType = "COMPARE_GREATERTHAN"
	TypeCompareLessThanOrEqual    ExpressionType = "COMPARE_LESSTHANOREQUALTO"
	TypeCompareGreaterThanOrEqual ExpressionType = "COMPARE_GREATERTHANOREQUALTO"
	TypeCompareIn                 ExpressionType = "COMPARE_IN"
	TypeCompareNotIn              ExpressionType = "COMPARE_NOT_IN"
	TypeCompareDistinctFrom       ExpressionType = "COMPARE_DISTINCT_FROM"
	TypeCompareNotDistinctFrom    ExpressionType = "COMPARE_NOT_DISTINCT_FROM"
	TypeCompareBetween            ExpressionType = "COMPARE_BETWEEN"

	TypeConjunctionAnd ExpressionType = "CONJUNCTION_AND"
	TypeConjunctionOr  ExpressionType = "CONJUNCTION_OR"

	TypeOperatorNot       ExpressionType = "OPERATOR_NOT"
	TypeOperatorIsNull    ExpressionType = "OPERATOR_IS_NULL"
	TypeOperatorIsNotNull ExpressionType = "OPERATOR_IS_NOT_NULL"

	TypeValueConstant  ExpressionType = "VALUE_CONSTANT"
	TypeBoundColumnRef ExpressionType = "BOUND_COLUMN_REF"
	TypeBoundFunction  ExpressionType = "BOUND_FUNCTION"
	TypeCast           ExpressionType = "OPERATOR_CAST"
)

// Expression is implemented by every parsed node.
// Use a type switch to reach the concrete node.
type Expression interface {
	Class() ExpressionClass
	Type() ExpressionType
	Alias() string

	expressionMarker()
}

// BaseExpression holds the fields every node carries.
type BaseExpression struct {
	ExprClass ExpressionClass
	ExprType  ExpressionType
	ExprAlias string
}

func (b *BaseExpression) Class() ExpressionClass { return b.ExprClass }
func (b *BaseExpression) Type() ExpressionType   { return b.ExprType }
func (b *BaseExpression) Alias() string          { return b.ExprAlias }
func (b *BaseExpression) expressionMarker()      {}

// ColumnBinding identifies a column by table and column index.
type ColumnBinding struct {
	TableIndex  int `json:"table_index"`
	ColumnIndex int `json:"column_index"`
}

// FilterPushdown is the parsed form of the pushdown JSON.
type FilterPushdown struct {
	// Filters are implicitly AND-ed.
	Filters []Expression

	// ColumnBindings maps binding column indexes to column names.
	ColumnBindings []string
}

// ColumnName resolves the column a reference is bound to.
func (fp *FilterPushdown) ColumnName(ref *ColumnRefExpression) (string, error) {
	return columnName(fp.ColumnBindings, ref)
}

func columnName(bindings []string, ref *ColumnRefExpression) (string, error) {
	i := ref.Binding.ColumnIndex
	if i < 0 || i >= len(bindings) {
		return "", &ColumnBindingError{Index: i, Max: len(bindings)}
	}
	return bindings[i], nil
}

// ColumnName resolves ref against bindings.
func ColumnName(bindings []string, ref *ColumnRefExpression) (string, error) {
	return columnName(bindings, ref)
}

// ColumnBindingError reports a binding index outside the column list.
type ColumnBindingError struct {
	Index int
	Max   int
}

func (e *ColumnBindingError) Error() string {
	return "invalid column binding index: " + itoa(e.Index) + " (columns: " + itoa(e.Max) + ")"
}

func itoa(i int) string { return strconv.Itoa(i) }

// ComparisonExpression is a binary comparison.
type ComparisonExpression struct {
	BaseExpression
	Left  Expression
	Right Expression
}

// ConjunctionExpression is an n-ary AND or OR.
type ConjunctionExpression struct {
	BaseExpression
	Children []Expression
}

// ConstantExpression is a literal.
type ConstantExpression struct {
	BaseExpression
	Value Value
}

// ColumnRefExpression references a column through the binding list.
type ColumnRefExpression struct {
	BaseExpression
	Binding    ColumnBinding
	ReturnType LogicalType
}

// FunctionExpression is a scalar function call.
type FunctionExpression struct {
	BaseExpression
	Name       string
	Children   []Expression
	ReturnType LogicalType
}

// CastExpression converts its child to ReturnType.
type CastExpression struct {
	BaseExpression
	Child      Expression
	ReturnType LogicalType
	TryCast    bool
}

// BetweenExpression is Input BETWEEN Lower AND Upper.
type BetweenExpression struct {
	BaseExpression
	Input          Expression
	Lower          Expression
	Upper          Expression
	LowerInclusive bool
	UpperInclusive bool
}

// OperatorExpression is NOT, IS NULL, IS NOT NULL, or another n-ary operator.
type OperatorExpression struct {
	BaseExpression
	Children []Expression
}

// UnsupportedExpression stands in for any node class not modeled above.
type UnsupportedExpression struct {
	BaseExpression
}

// NewComparison returns a comparison node.
func NewComparison(typ ExpressionType, left, right Expression) *ComparisonExpression {
	return &ComparisonExpression{
		BaseExpression: BaseExpression{ExprClass: ClassBoundComparison, ExprType: typ},
		Left:           left,
		Right:          right,
	}
}

// NewConjunction returns an AND or OR node.
func NewConjunction(typ ExpressionType, children ...Expression) *ConjunctionExpression {
	return &ConjunctionExpression{
		BaseExpression: BaseExpression{ExprClass: ClassBoundConjunction, ExprType: typ},
		Children:       children,
	}
}

// NewColumnRef returns a reference to binding index i.
func NewColumnRef(i int) *ColumnRefExpression {
	return &ColumnRefExpression{
		BaseExpression: BaseExpression{ExprClass: ClassBoundColumnRef, ExprType: TypeBoundColumnRef},
		Binding:        ColumnBinding{ColumnIndex: i},
	}
}

// NewConstant returns a literal node.
func NewConstant(v Value) *ConstantExpression {
	return &ConstantExpression{
		BaseExpression: BaseExpression{ExprClass: ClassBoundConstant, ExprType: TypeValueConstant},
		Value:          v,
	}
}

// NewOperator returns an operator node such as NOT.
func NewOperator(typ ExpressionType, children ...Expression) *OperatorExpression {
	return &OperatorExpression{
		BaseExpression: BaseExpression{ExprClass: ClassBoundOperator, ExprType: typ},
		Children:       children,
	}
}

// NewUnsupported returns a placeholder node.
func NewUnsupported(class ExpressionClass, typ ExpressionType) *UnsupportedExpression {
	return &UnsupportedExpression{
		BaseExpression: BaseExpression{ExprClass: class, ExprType: typ},
	}
}
