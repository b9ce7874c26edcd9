package flight

import (
	"encoding/json"
	"fmt"

	"github.com/hugr-lab/conntrack-airport/catalog"
)

// TicketData represents the decoded content of a Flight ticket.
// Tickets are opaque byte slices routing a DoGet to a table, plus the
// pushdown context the client sent with the endpoints action.
type TicketData struct {
	// Schema is the schema name (e.g., "main")
	Schema string `json:"schema"`

	// Table is the table name (e.g., "Connections")
	Table string `json:"table"`

	// Columns to project (optional, nil means all columns)
	Columns []string `json:"columns,omitempty"`

	// Filter is the DuckDB filter pushdown JSON (optional)
	Filter string `json:"filter,omitempty"`
}

// EncodeTicket creates an opaque ticket from schema and table names.
func EncodeTicket(schema, table string) ([]byte, error) {
	td := TicketData{Schema: schema, Table: table}
	return td.Encode()
}

// Encode validates td and returns its JSON encoding.
func (td *TicketData) Encode() ([]byte, error) {
	if td.Schema == "" {
		return nil, fmt.Errorf("schema name cannot be empty")
	}
	if td.Table == "" {
		return nil, fmt.Errorf("table name cannot be empty")
	}

	data, err := json.Marshal(td)
	if err != nil {
		return nil, fmt.Errorf("failed to encode ticket: %w", err)
	}
	return data, nil
}

// DecodeTicket parses an opaque ticket.
// Returns error if ticket is invalid or cannot be decoded.
func DecodeTicket(ticketBytes []byte) (*TicketData, error) {
	if len(ticketBytes) == 0 {
		return nil, fmt.Errorf("ticket cannot be empty")
	}

	var ticket TicketData
	if err := json.Unmarshal(ticketBytes, &ticket); err != nil {
		return nil, fmt.Errorf("failed to decode ticket: %w", err)
	}

	if ticket.Schema == "" {
		return nil, fmt.Errorf("decoded ticket has empty schema name")
	}
	if ticket.Table == "" {
		return nil, fmt.Errorf("decoded ticket has empty table name")
	}

	return &ticket, nil
}

// ToScanOptions converts TicketData to catalog.ScanOptions.
func (td *TicketData) ToScanOptions() *catalog.ScanOptions {
	opts := &catalog.ScanOptions{
		Columns: td.Columns,
	}
	if td.Filter != "" {
		opts.Filter = []byte(td.Filter)
	}
	return opts
}
