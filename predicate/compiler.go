// Package predicate compiles WHERE predicates into directional conntrack
// filters.
//
// Only AND conjunctions of column = literal equalities are pushed down. Any
// other predicate is dropped: it leaves the corresponding filter slot
// unconstrained, is logged as a warning, and is reported in
// Pushdown.Dropped. The resulting filter therefore selects a superset of the
// rows the predicate selects, and the query engine must evaluate the full
// predicate on the returned rows.
package predicate

import (
	"log/slog"

	"github.com/hugr-lab/conntrack-airport/columns"
	"github.com/hugr-lab/conntrack-airport/conntrack"
	"github.com/hugr-lab/conntrack-airport/filter"
)

// Reason classifies a dropped predicate.
type Reason string

const (
	ReasonOr             Reason = "or"
	ReasonNot            Reason = "not"
	ReasonOperator       Reason = "operator"
	ReasonNotColumn      Reason = "non_column_operand"
	ReasonUnknownColumn  Reason = "unknown_column"
	ReasonNotFilterable  Reason = "not_filterable"
	ReasonInvalidLiteral Reason = "invalid_literal"
	ReasonConflict       Reason = "conflict"
	ReasonUnsupported    Reason = "unsupported_expression"
)

// Dropped describes a predicate that was not pushed down.
type Dropped struct {
	Expr   string
	Reason Reason
	Detail string
}

// Pushdown is the result of compiling a predicate.
type Pushdown struct {
	Filter  conntrack.Filter
	Dropped []Dropped
}

// Exact reports whether every predicate was pushed down.
func (p *Pushdown) Exact() bool { return len(p.Dropped) == 0 }

// Advisory is always true: the filter may select more rows than the
// predicate and the caller re-evaluates the predicate.
func (p *Pushdown) Advisory() bool { return true }

// DropObserver is notified of every dropped predicate.
type DropObserver interface {
	ObserveDrop(reason string)
}

// Compiler compiles predicates. It is safe for concurrent use.
type Compiler struct {
	logger   *slog.Logger
	observer DropObserver
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithDropObserver registers o to be notified of dropped predicates.
func WithDropObserver(o DropObserver) Option {
	return func(c *Compiler) {
		c.observer = o
	}
}

// NewCompiler returns a Compiler that logs dropped predicates to logger.
// A nil logger uses slog.Default().
func NewCompiler(logger *slog.Logger, opts ...Option) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Compiler{logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile compiles the implicitly AND-ed filters of fp. A nil or empty
// pushdown compiles to the all-match filter.
func (c *Compiler) Compile(fp *filter.FilterPushdown) (*Pushdown, error) {
	if fp == nil {
		return &Pushdown{}, nil
	}
	s := c.newState(fp.ColumnBindings)
	for _, expr := range fp.Filters {
		s.walk(expr)
	}
	return s.finish()
}

// CompileExpr compiles a single expression whose column references resolve
// through bindings.
func (c *Compiler) CompileExpr(expr filter.Expression, bindings []string) (*Pushdown, error) {
	s := c.newState(bindings)
	s.walk(expr)
	return s.finish()
}

// CompileJSON compiles DuckDB filter pushdown JSON.
func (c *Compiler) CompileJSON(data []byte) (*Pushdown, error) {
	fp, err := filter.Parse(data)
	if err != nil {
		return nil, newParseError(string(data), err)
	}
	return c.Compile(fp)
}

type slot struct {
	dir   conntrack.Direction
	field columns.Field
}

type state struct {
	c        *Compiler
	bindings []string
	orig     *conntrack.DirFilterBuilder
	reply    *conntrack.DirFilterBuilder
	set      map[slot]columns.Value
	dropped  []Dropped
}

func (c *Compiler) newState(bindings []string) *state {
	return &state{
		c:        c,
		bindings: bindings,
		orig:     conntrack.NewDirFilterBuilder(),
		reply:    conntrack.NewDirFilterBuilder(),
		set:      make(map[slot]columns.Value),
	}
}

func (s *state) walk(expr filter.Expression) {
	switch e := expr.(type) {
	case nil:
		return

	case *filter.ConjunctionExpression:
		if e.Type() != filter.TypeConjunctionAnd {
			s.drop(expr, ReasonOr, "")
			return
		}
		for _, child := range e.Children {
			s.walk(child)
		}

	case *filter.ComparisonExpression:
		s.comparison(e)

	case *filter.OperatorExpression:
		if e.Type() == filter.TypeOperatorNot {
			s.drop(expr, ReasonNot, "")
			return
		}
		s.drop(expr, ReasonOperator, string(e.Type()))

	default:
		s.drop(expr, ReasonUnsupported, string(expr.Class()))
	}
}

func (s *state) comparison(e *filter.ComparisonExpression) {
	if e.Type() != filter.TypeCompareEqual {
		s.drop(e, ReasonOperator, string(e.Type()))
		return
	}

	ref, lit := columnAndLiteral(e.Left, e.Right)
	if ref == nil {
		ref, lit = columnAndLiteral(e.Right, e.Left)
	}
	if ref == nil {
		s.drop(e, ReasonNotColumn, "")
		return
	}

	name, err := filter.ColumnName(s.bindings, ref)
	if err != nil {
		s.drop(e, ReasonUnknownColumn, err.Error())
		return
	}
	col, ok := columns.Lookup(name)
	if !ok {
		s.drop(e, ReasonUnknownColumn, name)
		return
	}
	if !col.Filterable() {
		s.drop(e, ReasonNotFilterable, name)
		return
	}

	v, err := convertLiteral(col.Type, lit.Value)
	if err != nil {
		s.drop(e, ReasonInvalidLiteral, err.Error())
		return
	}

	key := slot{dir: col.Direction, field: col.Field}
	if prev, exists := s.set[key]; exists {
		if prev != v {
			s.drop(e, ReasonConflict, name+" already constrained to "+prev.String())
		}
		return
	}

	b := s.orig
	if col.Direction == conntrack.DirReply {
		b = s.reply
	}
	if err := col.Apply(b, v); err != nil {
		s.drop(e, ReasonInvalidLiteral, err.Error())
		return
	}
	s.set[key] = v
}

// columnAndLiteral matches a column reference (optionally under a cast) on
// one side and a constant on the other.
func columnAndLiteral(col, lit filter.Expression) (*filter.ColumnRefExpression, *filter.ConstantExpression) {
	c, ok := lit.(*filter.ConstantExpression)
	if !ok {
		return nil, nil
	}
	for {
		switch e := col.(type) {
		case *filter.ColumnRefExpression:
			return e, c
		case *filter.CastExpression:
			id := e.ReturnType.ID
			if !id.IsInteger() && !id.IsString() {
				return nil, nil
			}
			col = e.Child
		default:
			return nil, nil
		}
	}
}

func (s *state) drop(expr filter.Expression, reason Reason, detail string) {
	d := Dropped{Expr: filter.Format(expr, s.bindings), Reason: reason, Detail: detail}
	s.dropped = append(s.dropped, d)

	s.c.logger.Warn("predicate not pushed down",
		"predicate", d.Expr,
		"reason", string(reason),
		"detail", detail,
	)
	if s.c.observer != nil {
		s.c.observer.ObserveDrop(string(reason))
	}
}

func (s *state) finish() (*Pushdown, error) {
	orig, err := s.orig.Build()
	if err != nil {
		return nil, &BuildError{Direction: conntrack.DirOrigin, Err: err}
	}
	reply, err := s.reply.Build()
	if err != nil {
		return nil, &BuildError{Direction: conntrack.DirReply, Err: err}
	}
	return &Pushdown{
		Filter:  conntrack.Filter{Orig: orig, Reply: reply},
		Dropped: s.dropped,
	}, nil
}
