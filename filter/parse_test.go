package filter

import (
	"errors"
	"strings"
	"testing"
)

func TestParseEmpty(t *testing.T) {
	for _, in := range [][]byte{nil, {}} {
		fp, err := Parse(in)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if len(fp.Filters) != 0 {
			t.Errorf("expected 0 filters, got %d", len(fp.Filters))
		}
	}
}

func TestParseInvalidJSON(t *testing.T) {
	if _, err := Parse([]byte(`{"filters": [`)); err == nil {
		t.Fatal("expected error for truncated JSON")
	}
}

func TestParsePortEquality(t *testing.T) {
	// WHERE orig_l4_dst_port = 443
	data := []byte(`{
		"filters": [
			{
				"expression_class": "BOUND_COMPARISON",
				"type": "COMPARE_EQUAL",
				"alias": "",
				"left": {
					"expression_class": "BOUND_COLUMN_REF",
					"type": "BOUND_COLUMN_REF",
					"alias": "",
					"return_type": {"id": "USMALLINT", "type_info": null},
					"binding": {"table_index": 0, "column_index": 1},
					"depth": 0
				},
				"right": {
					"expression_class": "BOUND_CONSTANT",
					"type": "VALUE_CONSTANT",
					"alias": "",
					"value": {
						"type": {"id": "USMALLINT", "type_info": null},
						"is_null": false,
						"value": 443
					}
				}
			}
		],
		"column_binding_names_by_index": ["id", "orig_l4_dst_port"]
	}`)

	fp, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(fp.Filters) != 1 {
		t.Fatalf("expected 1 filter, got %d", len(fp.Filters))
	}

	comp, ok := fp.Filters[0].(*ComparisonExpression)
	if !ok {
		t.Fatalf("expected ComparisonExpression, got %T", fp.Filters[0])
	}
	if comp.Type() != TypeCompareEqual {
		t.Errorf("expected COMPARE_EQUAL, got %s", comp.Type())
	}

	ref, ok := comp.Left.(*ColumnRefExpression)
	if !ok {
		t.Fatalf("expected ColumnRefExpression on left, got %T", comp.Left)
	}
	name, err := fp.ColumnName(ref)
	if err != nil {
		t.Fatalf("ColumnName failed: %v", err)
	}
	if name != "orig_l4_dst_port" {
		t.Errorf("expected orig_l4_dst_port, got %s", name)
	}
	if ref.ReturnType.ID != TypeIDUSmallInt {
		t.Errorf("expected USMALLINT, got %s", ref.ReturnType.ID)
	}

	c, ok := comp.Right.(*ConstantExpression)
	if !ok {
		t.Fatalf("expected ConstantExpression on right, got %T", comp.Right)
	}
	u, ok := c.Value.Uint64()
	if !ok || u != 443 {
		t.Errorf("expected 443, got %v (ok=%v)", c.Value.Data, ok)
	}
}

func TestParseVarcharAndBase64(t *testing.T) {
	data := []byte(`{
		"filters": [
			{
				"expression_class": "BOUND_CONJUNCTION",
				"type": "CONJUNCTION_AND",
				"children": [
					{
						"expression_class": "BOUND_COMPARISON",
						"type": "COMPARE_EQUAL",
						"left": {"expression_class": "BOUND_COLUMN_REF", "type": "BOUND_COLUMN_REF", "binding": {"table_index": 0, "column_index": 0}},
						"right": {"expression_class": "BOUND_CONSTANT", "type": "VALUE_CONSTANT", "value": {"type": {"id": "VARCHAR"}, "is_null": false, "value": "10.0.0.1"}}
					},
					{
						"expression_class": "BOUND_COMPARISON",
						"type": "COMPARE_EQUAL",
						"left": {"expression_class": "BOUND_COLUMN_REF", "type": "BOUND_COLUMN_REF", "binding": {"table_index": 0, "column_index": 1}},
						"right": {"expression_class": "BOUND_CONSTANT", "type": "VALUE_CONSTANT", "value": {"type": {"id": "VARCHAR"}, "is_null": false, "value": {"base64": "MTAuMC4wLjI="}}}
					}
				]
			}
		],
		"column_binding_names_by_index": ["orig_ipv4_src", "orig_ipv4_dst"]
	}`)

	fp, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	conj, ok := fp.Filters[0].(*ConjunctionExpression)
	if !ok {
		t.Fatalf("expected ConjunctionExpression, got %T", fp.Filters[0])
	}
	if len(conj.Children) != 2 {
		t.Fatalf("expected 2 children, got %d", len(conj.Children))
	}

	want := []string{"10.0.0.1", "10.0.0.2"}
	for i, child := range conj.Children {
		c := child.(*ComparisonExpression).Right.(*ConstantExpression)
		s, ok := c.Value.Text()
		if !ok || s != want[i] {
			t.Errorf("child %d: expected %q, got %q (ok=%v)", i, want[i], s, ok)
		}
	}
}

func TestParseNullAndAliases(t *testing.T) {
	data := []byte(`{
		"filters": [
			{
				"expression_class": "BOUND_COMPARISON",
				"type": "COMPARE_EQUAL",
				"left": {"expression_class": "BOUND_COLUMN_REF", "type": "BOUND_COLUMN_REF", "binding": {"table_index": 0, "column_index": 0}},
				"right": {"expression_class": "BOUND_CONSTANT", "type": "VALUE_CONSTANT", "value": {"type": {"id": "INT4"}, "is_null": true}}
			},
			{
				"expression_class": "BOUND_COMPARISON",
				"type": "COMPARE_EQUAL",
				"left": {"expression_class": "BOUND_COLUMN_REF", "type": "BOUND_COLUMN_REF", "binding": {"table_index": 0, "column_index": 0}},
				"right": {"expression_class": "BOUND_CONSTANT", "type": "VALUE_CONSTANT", "value": {"type": {"id": "INT8"}, "is_null": false, "value": -3}}
			}
		],
		"column_binding_names_by_index": ["orig_l4_proto"]
	}`)

	fp, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	null := fp.Filters[0].(*ComparisonExpression).Right.(*ConstantExpression).Value
	if !null.IsNull {
		t.Error("expected NULL constant")
	}
	if null.Type.ID != TypeIDInteger {
		t.Errorf("expected INT4 to normalize to INTEGER, got %s", null.Type.ID)
	}

	neg := fp.Filters[1].(*ComparisonExpression).Right.(*ConstantExpression).Value
	if neg.Type.ID != TypeIDBigInt {
		t.Errorf("expected BIGINT, got %s", neg.Type.ID)
	}
	if _, ok := neg.Uint64(); ok {
		t.Error("negative value must not convert to uint64")
	}
}

func TestParseUnsupportedClass(t *testing.T) {
	data := []byte(`{
		"filters": [
			{"expression_class": "BOUND_CASE", "type": "CASE_EXPR", "case_checks": []}
		],
		"column_binding_names_by_index": []
	}`)
	fp, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	u, ok := fp.Filters[0].(*UnsupportedExpression)
	if !ok {
		t.Fatalf("expected UnsupportedExpression, got %T", fp.Filters[0])
	}
	if u.Class() != "BOUND_CASE" {
		t.Errorf("expected class BOUND_CASE, got %s", u.Class())
	}
}

func TestParseOperatorAndBetween(t *testing.T) {
	data := []byte(`{
		"filters": [
			{
				"expression_class": "BOUND_OPERATOR",
				"type": "OPERATOR_NOT",
				"children": [
					{
						"expression_class": "BOUND_COMPARISON",
						"type": "COMPARE_EQUAL",
						"left": {"expression_class": "BOUND_COLUMN_REF", "type": "BOUND_COLUMN_REF", "binding": {"table_index": 0, "column_index": 0}},
						"right": {"expression_class": "BOUND_CONSTANT", "type": "VALUE_CONSTANT", "value": {"type": {"id": "UTINYINT"}, "is_null": false, "value": 6}}
					}
				]
			},
			{
				"expression_class": "BOUND_BETWEEN",
				"type": "COMPARE_BETWEEN",
				"input": {"expression_class": "BOUND_COLUMN_REF", "type": "BOUND_COLUMN_REF", "binding": {"table_index": 0, "column_index": 1}},
				"lower": {"expression_class": "BOUND_CONSTANT", "type": "VALUE_CONSTANT", "value": {"type": {"id": "USMALLINT"}, "is_null": false, "value": 1}},
				"upper": {"expression_class": "BOUND_CONSTANT", "type": "VALUE_CONSTANT", "value": {"type": {"id": "USMALLINT"}, "is_null": false, "value": 1024}},
				"lower_inclusive": true,
				"upper_inclusive": true
			}
		],
		"column_binding_names_by_index": ["orig_l4_proto", "orig_l4_dst_port"]
	}`)

	fp, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	op, ok := fp.Filters[0].(*OperatorExpression)
	if !ok || op.Type() != TypeOperatorNot || len(op.Children) != 1 {
		t.Fatalf("expected NOT with one child, got %#v", fp.Filters[0])
	}
	btw, ok := fp.Filters[1].(*BetweenExpression)
	if !ok {
		t.Fatalf("expected BetweenExpression, got %T", fp.Filters[1])
	}
	if !btw.LowerInclusive || !btw.UpperInclusive {
		t.Error("expected inclusive bounds")
	}
}

func TestParseTooDeep(t *testing.T) {
	var sb strings.Builder
	sb.WriteString(`{"filters": [`)
	for i := 0; i <= maxDepth+1; i++ {
		sb.WriteString(`{"expression_class": "BOUND_OPERATOR", "type": "OPERATOR_NOT", "children": [`)
	}
	sb.WriteString(`{"expression_class": "BOUND_CONSTANT", "type": "VALUE_CONSTANT", "value": {"type": {"id": "BOOLEAN"}, "is_null": false, "value": true}}`)
	for i := 0; i <= maxDepth+1; i++ {
		sb.WriteString(`]}`)
	}
	sb.WriteString(`], "column_binding_names_by_index": []}`)

	_, err := Parse([]byte(sb.String()))
	if !errors.Is(err, ErrTooDeep) {
		t.Fatalf("expected ErrTooDeep, got %v", err)
	}
}

func TestColumnBindingOutOfRange(t *testing.T) {
	_, err := ColumnName([]string{"a"}, NewColumnRef(3))
	var be *ColumnBindingError
	if !errors.As(err, &be) {
		t.Fatalf("expected ColumnBindingError, got %v", err)
	}
	if be.Index != 3 || be.Max != 1 {
		t.Errorf("unexpected error fields: %+v", be)
	}
}
