package filter

import (
	"strings"
)

var comparisonOps = map[ExpressionType]string{
	TypeCompareEqual:              "=",
	TypeCompareNotEqual:           "<>",
	TypeCompareLessThan:           "<",
	TypeCompareGreaterThan:        ">",
	TypeCompareLessThanOrEqual:    "<=",
	TypeCompareGreaterThanOrEqual: ">=",
	TypeCompareDistinctFrom:       "IS DISTINCT FROM",
	TypeCompareNotDistinctFrom:    "IS NOT DISTINCT FROM",
}

// ComparisonOperator returns the SQL operator for a comparison type.
func ComparisonOperator(t ExpressionType) (string, bool) {
	op, ok := comparisonOps[t]
	return op, ok
}

// Format renders expr as SQL text. Column references are resolved through
// bindings; unresolvable references render as #index.
func Format(expr Expression, bindings []string) string {
	var sb strings.Builder
	writeExpr(&sb, expr, bindings)
	return sb.String()
}

// FormatPushdown renders all filters of fp joined with AND.
func FormatPushdown(fp *FilterPushdown) string {
	if fp == nil || len(fp.Filters) == 0 {
		return ""
	}
	parts := make([]string, len(fp.Filters))
	for i, f := range fp.Filters {
		parts[i] = Format(f, fp.ColumnBindings)
	}
	return strings.Join(parts, " AND ")
}

func writeExpr(sb *strings.Builder, expr Expression, bindings []string) {
	switch e := expr.(type) {
	case nil:
		sb.WriteString("NULL")

	case *ColumnRefExpression:
		name, err := columnName(bindings, e)
		if err != nil {
			sb.WriteString("#")
			sb.WriteString(itoa(e.Binding.ColumnIndex))
			return
		}
		sb.WriteString(quoteIdentifier(name))

	case *ConstantExpression:
		sb.WriteString(e.Value.String())

	case *ComparisonExpression:
		op, ok := comparisonOps[e.ExprType]
		if !ok {
			op = string(e.ExprType)
		}
		writeExpr(sb, e.Left, bindings)
		sb.WriteString(" " + op + " ")
		writeExpr(sb, e.Right, bindings)

	case *ConjunctionExpression:
		sep := " AND "
		if e.ExprType == TypeConjunctionOr {
			sep = " OR "
		}
		sb.WriteString("(")
		for i, c := range e.Children {
			if i > 0 {
				sb.WriteString(sep)
			}
			writeExpr(sb, c, bindings)
		}
		sb.WriteString(")")

	case *OperatorExpression:
		writeOperator(sb, e, bindings)

	case *BetweenExpression:
		writeExpr(sb, e.Input, bindings)
		sb.WriteString(" BETWEEN ")
		writeExpr(sb, e.Lower, bindings)
		sb.WriteString(" AND ")
		writeExpr(sb, e.Upper, bindings)

	case *CastExpression:
		if e.TryCast {
			sb.WriteString("TRY_CAST(")
		} else {
			sb.WriteString("CAST(")
		}
		writeExpr(sb, e.Child, bindings)
		sb.WriteString(" AS " + string(e.ReturnType.ID) + ")")

	case *FunctionExpression:
		sb.WriteString(e.Name + "(")
		for i, c := range e.Children {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeExpr(sb, c, bindings)
		}
		sb.WriteString(")")

	default:
		sb.WriteString("<" + string(expr.Class()) + ">")
	}
}

func writeOperator(sb *strings.Builder, e *OperatorExpression, bindings []string) {
	switch e.ExprType {
	case TypeOperatorNot:
		sb.WriteString("NOT ")
		if len(e.Children) > 0 {
			writeExpr(sb, e.Children[0], bindings)
		}
	case TypeOperatorIsNull, TypeOperatorIsNotNull:
		if len(e.Children) > 0 {
			writeExpr(sb, e.Children[0], bindings)
		}
		if e.ExprType == TypeOperatorIsNull {
			sb.WriteString(" IS NULL")
		} else {
			sb.WriteString(" IS NOT NULL")
		}
	case TypeCompareIn, TypeCompareNotIn:
		if len(e.Children) == 0 {
			sb.WriteString("<" + string(e.ExprType) + ">")
			return
		}
		writeExpr(sb, e.Children[0], bindings)
		if e.ExprType == TypeCompareIn {
			sb.WriteString(" IN (")
		} else {
			sb.WriteString(" NOT IN (")
		}
		for i, c := range e.Children[1:] {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeExpr(sb, c, bindings)
		}
		sb.WriteString(")")
	default:
		sb.WriteString(string(e.ExprType) + "(")
		for i, c := range e.Children {
			if i > 0 {
				sb.WriteString(", ")
			}
			writeExpr(sb, c, bindings)
		}
		sb.WriteString(")")
	}
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func quoteIdentifier(s string) string {
	if isPlainIdentifier(s) {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func isPlainIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
