package connections

import "github.com/hugr-lab/conntrack-airport/catalog"

// DefaultSchema is the schema holding the Connections table.
const DefaultSchema = "main"

type catalogConfig struct {
	schema  string
	comment string
}

// CatalogOption configures NewCatalog.
type CatalogOption func(*catalogConfig)

// WithSchemaName places the table in schema name instead of DefaultSchema.
func WithSchemaName(name string) CatalogOption {
	return func(c *catalogConfig) {
		if name != "" {
			c.schema = name
		}
	}
}

func WithSchemaComment(comment string) CatalogOption {
	return func(c *catalogConfig) { c.comment = comment }
}

// NewCatalog returns a catalog with one schema holding only table.
func NewCatalog(table *Table, opts ...CatalogOption) *catalog.StaticCatalog {
	cfg := catalogConfig{
		schema:  DefaultSchema,
		comment: "Kernel connection tracking",
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	cat := catalog.NewStaticCatalog()
	cat.AddSchema(cfg.schema, cfg.comment, table)
	return cat
}
