package filter

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// maxDepth bounds expression nesting.
const maxDepth = 256

// ErrTooDeep is returned for expressions nested deeper than maxDepth.
var ErrTooDeep = errors.New("filter: expression nesting too deep")

// Parse parses filter pushdown JSON from the DuckDB Airport extension.
// Empty input yields an empty FilterPushdown.
func Parse(data []byte) (*FilterPushdown, error) {
	if len(data) == 0 {
		return &FilterPushdown{}, nil
	}

	var raw struct {
		Filters        []json.RawMessage `json:"filters"`
		ColumnBindings []string          `json:"column_binding_names_by_index"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("filter: invalid JSON: %w", err)
	}

	fp := &FilterPushdown{
		ColumnBindings: raw.ColumnBindings,
		Filters:        make([]Expression, 0, len(raw.Filters)),
	}
	for i, r := range raw.Filters {
		expr, err := parseExpression(r, 0)
		if err != nil {
			return nil, fmt.Errorf("filter: error parsing filter %d: %w", i, err)
		}
		fp.Filters = append(fp.Filters, expr)
	}
	return fp, nil
}

// rawNode is the union of the JSON fields used by the supported node classes.
type rawNode struct {
	Class          ExpressionClass   `json:"expression_class"`
	Type           ExpressionType    `json:"type"`
	Alias          string            `json:"alias"`
	Left           json.RawMessage   `json:"left"`
	Right          json.RawMessage   `json:"right"`
	Children       []json.RawMessage `json:"children"`
	Child          json.RawMessage   `json:"child"`
	Input          json.RawMessage   `json:"input"`
	Lower          json.RawMessage   `json:"lower"`
	Upper          json.RawMessage   `json:"upper"`
	LowerInclusive bool              `json:"lower_inclusive"`
	UpperInclusive bool              `json:"upper_inclusive"`
	Value          json.RawMessage   `json:"value"`
	Binding        ColumnBinding     `json:"binding"`
	ReturnType     json.RawMessage   `json:"return_type"`
	Name           string            `json:"name"`
	TryCast        bool              `json:"try_cast"`
}

func parseExpression(data json.RawMessage, depth int) (Expression, error) {
	if depth > maxDepth {
		return nil, ErrTooDeep
	}
	var raw rawNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid expression: %w", err)
	}
	base := BaseExpression{ExprClass: raw.Class, ExprType: raw.Type, ExprAlias: raw.Alias}
	child := func(what string, d json.RawMessage) (Expression, error) {
		e, err := parseExpression(d, depth+1)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", what, err)
		}
		return e, nil
	}
	children := func() ([]Expression, error) {
		out := make([]Expression, 0, len(raw.Children))
		for i, c := range raw.Children {
			e, err := child(fmt.Sprintf("child %d", i), c)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
		return out, nil
	}

	switch raw.Class {
	case ClassBoundComparison:
		left, err := child("left operand", raw.Left)
		if err != nil {
			return nil, err
		}
		right, err := child("right operand", raw.Right)
		if err != nil {
			return nil, err
		}
		return &ComparisonExpression{BaseExpression: base, Left: left, Right: right}, nil

	case ClassBoundConjunction:
		cs, err := children()
		if err != nil {
			return nil, err
		}
		return &ConjunctionExpression{BaseExpression: base, Children: cs}, nil

	case ClassBoundConstant:
		v, err := parseValue(raw.Value)
		if err != nil {
			return nil, fmt.Errorf("invalid constant: %w", err)
		}
		return &ConstantExpression{BaseExpression: base, Value: v}, nil

	case ClassBoundColumnRef:
		rt, err := parseLogicalType(raw.ReturnType)
		if err != nil {
			return nil, err
		}
		return &ColumnRefExpression{BaseExpression: base, Binding: raw.Binding, ReturnType: rt}, nil

	case ClassBoundFunction:
		rt, err := parseLogicalType(raw.ReturnType)
		if err != nil {
			return nil, err
		}
		cs, err := children()
		if err != nil {
			return nil, err
		}
		return &FunctionExpression{BaseExpression: base, Name: raw.Name, Children: cs, ReturnType: rt}, nil

	case ClassBoundCast:
		rt, err := parseLogicalType(raw.ReturnType)
		if err != nil {
			return nil, err
		}
		c, err := child("cast child", raw.Child)
		if err != nil {
			return nil, err
		}
		return &CastExpression{BaseExpression: base, Child: c, ReturnType: rt, TryCast: raw.TryCast}, nil

	case ClassBoundBetween:
		input, err := child("between input", raw.Input)
		if err != nil {
			return nil, err
		}
		lower, err := child("lower bound", raw.Lower)
		if err != nil {
			return nil, err
		}
		upper, err := child("upper bound", raw.Upper)
		if err != nil {
			return nil, err
		}
		return &BetweenExpression{
			BaseExpression: base,
			Input:          input,
			Lower:          lower,
			Upper:          upper,
			LowerInclusive: raw.LowerInclusive,
			UpperInclusive: raw.UpperInclusive,
		}, nil

	case ClassBoundOperator:
		cs, err := children()
		if err != nil {
			return nil, err
		}
		return &OperatorExpression{BaseExpression: base, Children: cs}, nil
	}

	return &UnsupportedExpression{BaseExpression: base}, nil
}

func parseLogicalType(data json.RawMessage) (LogicalType, error) {
	if len(data) == 0 || string(data) == "null" {
		return LogicalType{}, nil
	}
	var raw struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return LogicalType{}, fmt.Errorf("invalid logical type: %w", err)
	}
	return LogicalType{ID: LogicalTypeID(raw.ID).Normalize()}, nil
}

func parseValue(data json.RawMessage) (Value, error) {
	if len(data) == 0 || string(data) == "null" {
		return Value{IsNull: true}, nil
	}

	var raw struct {
		Type   json.RawMessage `json:"type"`
		IsNull bool            `json:"is_null"`
		Value  json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return Value{}, err
	}
	lt, err := parseLogicalType(raw.Type)
	if err != nil {
		return Value{}, err
	}

	v := Value{Type: lt, IsNull: raw.IsNull}
	if raw.IsNull || len(raw.Value) == 0 || string(raw.Value) == "null" {
		v.IsNull = true
		return v, nil
	}
	if v.Data, err = parseValueData(raw.Value, lt.ID); err != nil {
		return Value{}, fmt.Errorf("invalid %s value: %w", lt.ID, err)
	}
	return v, nil
}

func parseValueData(data json.RawMessage, id LogicalTypeID) (any, error) {
	switch {
	case id == TypeIDBoolean:
		return decode[bool](data)
	case id == TypeIDHugeInt:
		return decode[HugeInt](data)
	case id == TypeIDUHugeInt:
		return decode[UHugeInt](data)
	case id.IsSigned():
		return decode[int64](data)
	case id.IsUnsigned():
		return decode[uint64](data)
	case id == TypeIDFloat || id == TypeIDDouble:
		return decode[float64](data)
	case id == TypeIDDecimal:
		if s, err := decode[string](data); err == nil {
			return s, nil
		}
		f, err := decode[json.Number](data)
		if err != nil {
			return nil, err
		}
		return f.String(), nil
	case id.IsString() || id == TypeIDBlob:
		// Non UTF-8 payloads arrive as {"base64": "..."}.
		var b64 struct {
			Base64 string `json:"base64"`
		}
		if err := json.Unmarshal(data, &b64); err == nil && b64.Base64 != "" {
			decoded, err := base64.StdEncoding.DecodeString(b64.Base64)
			if err != nil {
				return nil, fmt.Errorf("invalid base64: %w", err)
			}
			return string(decoded), nil
		}
		return decode[string](data)
	}
	return decode[any](data)
}

func decode[T any](data json.RawMessage) (T, error) {
	var v T
	err := json.Unmarshal(data, &v)
	return v, err
}
