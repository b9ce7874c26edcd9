package catalog

import (
	"context"
	"sort"
)

// StaticCatalog is an immutable catalog assembled once at startup.
type StaticCatalog struct {
	schemas map[string]*staticSchema
	order   []string
}

// NewStaticCatalog creates an empty static catalog.
func NewStaticCatalog() *StaticCatalog {
	return &StaticCatalog{
		schemas: make(map[string]*staticSchema),
	}
}

// AddSchema adds a schema holding tables. Adding a schema name twice
// replaces the earlier schema. AddSchema must not be called once the catalog
// is being served.
func (c *StaticCatalog) AddSchema(name, comment string, tables ...Table) {
	s := &staticSchema{
		name:    name,
		comment: comment,
		tables:  make(map[string]Table, len(tables)),
	}
	for _, t := range tables {
		s.tables[t.Name()] = t
		s.order = append(s.order, t.Name())
	}
	sort.Strings(s.order)
	s.order = dedupSorted(s.order)

	if _, exists := c.schemas[name]; !exists {
		c.order = append(c.order, name)
		sort.Strings(c.order)
	}
	c.schemas[name] = s
}

// Schemas implements Catalog interface.
func (c *StaticCatalog) Schemas(ctx context.Context) ([]Schema, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := make([]Schema, 0, len(c.order))
	for _, name := range c.order {
		result = append(result, c.schemas[name])
	}
	return result, nil
}

// Schema implements Catalog interface.
func (c *StaticCatalog) Schema(ctx context.Context, name string) (Schema, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	schema, ok := c.schemas[name]
	if !ok {
		return nil, nil // Not found, not an error
	}
	return schema, nil
}

type staticSchema struct {
	name    string
	comment string
	tables  map[string]Table
	order   []string
}

func (s *staticSchema) Name() string    { return s.name }
func (s *staticSchema) Comment() string { return s.comment }

func (s *staticSchema) Tables(ctx context.Context) ([]Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result := make([]Table, 0, len(s.order))
	for _, name := range s.order {
		result = append(result, s.tables[name])
	}
	return result, nil
}

func (s *staticSchema) Table(ctx context.Context, name string) (Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	table, ok := s.tables[name]
	if !ok {
		return nil, nil // Not found, not an error
	}
	return table, nil
}

func dedupSorted(in []string) []string {
	out := in[:0]
	for i, s := range in {
		if i == 0 || s != in[i-1] {
			out = append(out, s)
		}
	}
	return out
}
