// Package airport serves the kernel connection tracking table to DuckDB over
// Apache Arrow Flight, using the protocol of the DuckDB Airport extension.
//
// The server exposes one read-only virtual table, "Connections", in schema
// "main". Every row is one conntrack flow as seen by the kernel at scan time:
// the flow id plus the IPv4 addresses, L4 protocol and ports of the origin
// and reply directions.
//
// # Quick Start
//
//	handle, err := conntrack.Connect(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer handle.Close()
//
//	table := connections.New(handle, predicate.NewCompiler(slog.Default()))
//	config := airport.ServerConfig{
//	    Catalog: connections.NewCatalog(table),
//	    Address: "localhost:50051",
//	}
//
//	grpcServer := grpc.NewServer(airport.ServerOptions(config)...)
//	if err := airport.NewServer(grpcServer, config); err != nil {
//	    log.Fatal(err)
//	}
//	lis, _ := net.Listen("tcp", ":50051")
//	grpcServer.Serve(lis)
//
// From DuckDB:
//
//	INSTALL airport FROM community;
//	LOAD airport;
//	ATTACH '' AS ct (TYPE airport, LOCATION 'grpc://localhost:50051');
//	SELECT * FROM ct.main.Connections WHERE orig_l4_proto = 6;
//
// # Filter Pushdown
//
// DuckDB sends the WHERE clause of a scan as JSON. Equality conjunctions on
// the filterable columns are compiled into a kernel-side flow filter; any
// other part of the predicate is dropped from the pushdown. Pushdown is
// advisory: DuckDB always re-applies the full predicate to returned rows, so
// a dropped term only means more rows are read from the kernel.
//
// # Packages
//
//   - conntrack: flow model, directional filters and the kernel handle
//   - columns: the column catalog of the Connections table
//   - filter: DuckDB filter JSON model and parser
//   - predicate: compiles filters (JSON or SQL) into conntrack filters
//   - projector: turns flows into Arrow record batches
//   - connections: the Connections table and its catalog
//   - flight: the Arrow Flight service
//
// # Server Lifecycle
//
// NewServer registers Flight service handlers on a user-provided grpc.Server
// but does NOT manage its lifecycle. The caller owns TLS configuration,
// listening and graceful shutdown.
//
// # Authentication
//
// Bearer tokens are validated by an Authenticator passed in ServerConfig.Auth
// and installed by ServerOptions. StaticTokens covers the common case of a
// fixed token list.
//
// # Memory Management
//
// Arrow uses manual reference counting. Record readers returned by table
// scans are released by the Flight handlers once streamed.
package airport
