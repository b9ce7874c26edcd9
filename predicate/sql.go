package predicate

import (
	"errors"
	"strconv"
	"strings"

	"github.com/xwb1989/sqlparser"

	"github.com/hugr-lab/conntrack-airport/filter"
)

var errNotAPredicate = errors.New("input is not a single WHERE predicate")

// CompileSQL compiles the text of a WHERE clause, without the WHERE keyword.
// Empty or whitespace-only text compiles to the all-match filter.
func (c *Compiler) CompileSQL(where string) (*Pushdown, error) {
	fp, err := ParseSQL(where)
	if err != nil {
		return nil, err
	}
	return c.Compile(fp)
}

// ParseSQL parses the text of a WHERE clause into the same expression form
// the DuckDB pushdown JSON produces, so both front ends share one compiler.
func ParseSQL(where string) (*filter.FilterPushdown, error) {
	if strings.TrimSpace(where) == "" {
		return &filter.FilterPushdown{}, nil
	}

	stmt, err := sqlparser.Parse("select * from Connections where " + where)
	if err != nil {
		return nil, newParseError(where, err)
	}
	sel, ok := stmt.(*sqlparser.Select)
	if !ok || sel.Where == nil || sel.Limit != nil || sel.Lock != "" ||
		len(sel.OrderBy) > 0 || len(sel.GroupBy) > 0 || sel.Having != nil {
		return nil, newParseError(where, errNotAPredicate)
	}

	t := &sqlTranslator{index: map[string]int{}}
	expr := t.expr(sel.Where.Expr)
	return &filter.FilterPushdown{
		Filters:        []filter.Expression{expr},
		ColumnBindings: t.names,
	}, nil
}

type sqlTranslator struct {
	names []string
	index map[string]int
}

func (t *sqlTranslator) column(name string) *filter.ColumnRefExpression {
	i, ok := t.index[name]
	if !ok {
		i = len(t.names)
		t.names = append(t.names, name)
		t.index[name] = i
	}
	return filter.NewColumnRef(i)
}

var sqlComparisons = map[string]filter.ExpressionType{
	sqlparser.EqualStr:         filter.TypeCompareEqual,
	sqlparser.NotEqualStr:      filter.TypeCompareNotEqual,
	sqlparser.LessThanStr:      filter.TypeCompareLessThan,
	sqlparser.GreaterThanStr:   filter.TypeCompareGreaterThan,
	sqlparser.LessEqualStr:     filter.TypeCompareLessThanOrEqual,
	sqlparser.GreaterEqualStr:  filter.TypeCompareGreaterThanOrEqual,
	sqlparser.NullSafeEqualStr: filter.TypeCompareNotDistinctFrom,
}

func (t *sqlTranslator) expr(e sqlparser.Expr) filter.Expression {
	switch e := e.(type) {
	case *sqlparser.AndExpr:
		return filter.NewConjunction(filter.TypeConjunctionAnd, t.expr(e.Left), t.expr(e.Right))

	case *sqlparser.OrExpr:
		return filter.NewConjunction(filter.TypeConjunctionOr, t.expr(e.Left), t.expr(e.Right))

	case *sqlparser.NotExpr:
		return filter.NewOperator(filter.TypeOperatorNot, t.expr(e.Expr))

	case *sqlparser.ParenExpr:
		return t.expr(e.Expr)

	case *sqlparser.ComparisonExpr:
		typ, ok := sqlComparisons[e.Operator]
		if !ok {
			return unsupportedSQL(e)
		}
		return filter.NewComparison(typ, t.expr(e.Left), t.expr(e.Right))

	case *sqlparser.RangeCond:
		between := &filter.BetweenExpression{
			BaseExpression: filter.BaseExpression{
				ExprClass: filter.ClassBoundBetween,
				ExprType:  filter.TypeCompareBetween,
			},
			Input:          t.expr(e.Left),
			Lower:          t.expr(e.From),
			Upper:          t.expr(e.To),
			LowerInclusive: true,
			UpperInclusive: true,
		}
		if e.Operator == sqlparser.NotBetweenStr {
			return filter.NewOperator(filter.TypeOperatorNot, between)
		}
		return between

	case *sqlparser.IsExpr:
		switch e.Operator {
		case sqlparser.IsNullStr:
			return filter.NewOperator(filter.TypeOperatorIsNull, t.expr(e.Expr))
		case sqlparser.IsNotNullStr:
			return filter.NewOperator(filter.TypeOperatorIsNotNull, t.expr(e.Expr))
		}
		return unsupportedSQL(e)

	case *sqlparser.ColName:
		return t.column(e.Name.String())

	case *sqlparser.SQLVal:
		return literal(e)

	case *sqlparser.UnaryExpr:
		if v, ok := e.Expr.(*sqlparser.SQLVal); ok && e.Operator == sqlparser.UMinusStr && v.Type == sqlparser.IntVal {
			return literal(sqlparser.NewIntVal(append([]byte("-"), v.Val...)))
		}
		return unsupportedSQL(e)

	case *sqlparser.NullVal:
		return filter.NewConstant(filter.NullValue())

	case sqlparser.BoolVal:
		return filter.NewConstant(filter.Value{
			Type: filter.LogicalType{ID: filter.TypeIDBoolean},
			Data: bool(e),
		})
	}
	return unsupportedSQL(e)
}

func literal(v *sqlparser.SQLVal) filter.Expression {
	text := string(v.Val)
	switch v.Type {
	case sqlparser.StrVal:
		return filter.NewConstant(filter.StringValue(text))

	case sqlparser.IntVal:
		if i, err := strconv.ParseInt(text, 10, 64); err == nil {
			return filter.NewConstant(filter.IntValue(i))
		}
		if u, err := strconv.ParseUint(text, 10, 64); err == nil {
			return filter.NewConstant(filter.UintValue(u))
		}
		return filter.NewConstant(filter.Value{
			Type: filter.LogicalType{ID: filter.TypeIDDecimal},
			Data: text,
		})

	case sqlparser.FloatVal:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return unsupportedSQL(v)
		}
		return filter.NewConstant(filter.Value{
			Type: filter.LogicalType{ID: filter.TypeIDDouble},
			Data: f,
		})
	}
	return unsupportedSQL(v)
}

func unsupportedSQL(e sqlparser.SQLNode) filter.Expression {
	return filter.NewUnsupported("SQL_EXPRESSION", filter.ExpressionType(sqlparser.String(e)))
}
