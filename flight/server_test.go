package flight_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/proto"

	"github.com/hugr-lab/conntrack-airport/auth"
	"github.com/hugr-lab/conntrack-airport/columns"
	"github.com/hugr-lab/conntrack-airport/connections"
	"github.com/hugr-lab/conntrack-airport/conntrack"
	"github.com/hugr-lab/conntrack-airport/conntrack/conntracktest"
	airportflight "github.com/hugr-lab/conntrack-airport/flight"
	"github.com/hugr-lab/conntrack-airport/internal/serialize"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const tcpFilter = `{"filters":[{"expression_class":"BOUND_COMPARISON","type":"COMPARE_EQUAL",` +
	`"left":{"expression_class":"BOUND_COLUMN_REF","type":"BOUND_COLUMN_REF","binding":{"table_index":0,"column_index":0}},` +
	`"right":{"expression_class":"BOUND_CONSTANT","type":"VALUE_CONSTANT","value":{"type":{"id":"UTINYINT"},"is_null":false,"value":6}}}],` +
	`"column_binding_names_by_index":["orig_l4_proto"]}`

type testEnv struct {
	client  flight.Client
	address string
	dumper  *conntracktest.Dumper
}

func newTestEnv(t *testing.T, authenticator auth.Authenticator) *testEnv {
	t.Helper()

	dumper := &conntracktest.Dumper{Flows: []conntrack.Flow{
		conntracktest.Flow(1, "10.0.0.1", "10.0.0.2", conntrack.ProtoTCP, 40000, 443),
		conntracktest.Flow(2, "10.0.0.1", "10.0.0.3", conntrack.ProtoUDP, 40001, 53),
		conntracktest.Flow(3, "10.0.0.4", "10.0.0.2", conntrack.ProtoTCP, 40002, 22),
	}}
	table := connections.New(conntrack.NewHandle(dumper), nil, connections.WithLogger(discard))

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(airportflight.UnaryServerInterceptor(authenticator)),
		grpc.StreamInterceptor(airportflight.StreamServerInterceptor(authenticator)),
	)
	srv := airportflight.NewServer(connections.NewCatalog(table), memory.DefaultAllocator, discard, lis.Addr().String())
	airportflight.RegisterFlightServer(grpcServer, srv)
	go func() { _ = grpcServer.Serve(lis) }()
	t.Cleanup(grpcServer.Stop)

	client, err := flight.NewClientWithMiddleware(lis.Addr().String(), nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	return &testEnv{client: client, address: lis.Addr().String(), dumper: dumper}
}

// doGet reads all ids from a DoGet stream.
func (e *testEnv) doGet(ctx context.Context, ticket []byte) ([]uint32, *arrow.Schema, error) {
	stream, err := e.client.DoGet(ctx, &flight.Ticket{Ticket: ticket})
	if err != nil {
		return nil, nil, err
	}
	reader, err := flight.NewRecordReader(stream)
	if err != nil {
		return nil, nil, err
	}
	defer reader.Release()

	var ids []uint32
	for reader.Next() {
		col := reader.RecordBatch().Column(0).(*array.Uint32)
		for i := 0; i < col.Len(); i++ {
			ids = append(ids, col.Value(i))
		}
	}
	if err := reader.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, nil, err
	}
	return ids, reader.Schema(), nil
}

func (e *testEnv) doAction(ctx context.Context, actionType string, body any) ([]byte, error) {
	var data []byte
	if body != nil {
		var err error
		if data, err = msgpack.Marshal(body); err != nil {
			return nil, err
		}
	}
	stream, err := e.client.DoAction(ctx, &flight.Action{Type: actionType, Body: data})
	if err != nil {
		return nil, err
	}
	result, err := stream.Recv()
	if err != nil {
		return nil, err
	}
	return result.GetBody(), nil
}

func descriptor(t *testing.T, path ...string) string {
	t.Helper()
	data, err := proto.Marshal(&flight.FlightDescriptor{Type: flight.DescriptorPATH, Path: path})
	require.NoError(t, err)
	return string(data)
}

func decompressContent(t *testing.T, data []byte) []byte {
	t.Helper()
	var content []any
	require.NoError(t, msgpack.Unmarshal(data, &content))
	require.Len(t, content, 2)

	compressed, ok := content[1].(string)
	require.True(t, ok, "data element is %T", content[1])

	out, err := serialize.Decompress([]byte(compressed))
	require.NoError(t, err)
	return out
}

func TestDoGetFullScan(t *testing.T) {
	env := newTestEnv(t, nil)
	ticket, err := airportflight.EncodeTicket("main", "Connections")
	require.NoError(t, err)

	ids, schema, err := env.doGet(context.Background(), ticket)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 2, 3}, ids)
	assert.True(t, schema.Equal(columns.Schema()))
}

func TestDoGetErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	tests := []struct {
		name   string
		ticket airportflight.TicketData
		raw    []byte
		code   codes.Code
	}{
		{name: "garbage ticket", raw: []byte("nope"), code: codes.InvalidArgument},
		{name: "unknown schema", ticket: airportflight.TicketData{Schema: "other", Table: "Connections"}, code: codes.NotFound},
		{name: "unknown table", ticket: airportflight.TicketData{Schema: "main", Table: "connections"}, code: codes.NotFound},
		{name: "malformed filter", ticket: airportflight.TicketData{Schema: "main", Table: "Connections", Filter: "{oops"}, code: codes.InvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticket := tt.raw
			if ticket == nil {
				var err error
				ticket, err = tt.ticket.Encode()
				require.NoError(t, err)
			}
			_, _, err := env.doGet(ctx, ticket)
			require.Error(t, err)
			assert.Equal(t, tt.code, status.Code(err), "error: %v", err)
		})
	}
}

func TestDoGetDumpFailure(t *testing.T) {
	env := newTestEnv(t, nil)
	env.dumper.Err = errors.New("netlink receive: operation not permitted")

	ticket, err := airportflight.EncodeTicket("main", "Connections")
	require.NoError(t, err)
	_, _, err = env.doGet(context.Background(), ticket)
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(err))
	assert.Contains(t, err.Error(), "operation not permitted")
}

func TestEndpointsCarryFilter(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	request := map[string]any{
		"descriptor": descriptor(t, "main", "Connections"),
		"parameters": map[string]any{
			"json_filters": tcpFilter,
			"column_ids":   []uint64{0, 3, 1 << 63},
		},
	}
	body, err := env.doAction(ctx, "endpoints", request)
	require.NoError(t, err)

	var endpoints []string
	require.NoError(t, msgpack.Unmarshal(body, &endpoints))
	require.Len(t, endpoints, 1)

	var ep flight.FlightEndpoint
	require.NoError(t, proto.Unmarshal([]byte(endpoints[0]), &ep))
	require.Len(t, ep.GetLocation(), 1)
	assert.Equal(t, "grpc://"+env.address, ep.GetLocation()[0].GetUri())

	td, err := airportflight.DecodeTicket(ep.GetTicket().GetTicket())
	require.NoError(t, err)
	assert.Equal(t, tcpFilter, td.Filter)
	assert.Equal(t, []string{"id", "orig_l4_proto"}, td.Columns)

	ids, _, err := env.doGet(ctx, ep.GetTicket().GetTicket())
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 3}, ids)
}

func TestEndpointsUnknownTable(t *testing.T) {
	env := newTestEnv(t, nil)
	_, err := env.doAction(context.Background(), "endpoints", map[string]any{
		"descriptor": descriptor(t, "main", "Flows"),
	})
	require.Error(t, err)
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestListSchemas(t *testing.T) {
	env := newTestEnv(t, nil)

	body, err := env.doAction(context.Background(), "list_schemas", map[string]any{"catalog_name": ""})
	require.NoError(t, err)

	var root struct {
		Schemas []struct {
			Name      string `msgpack:"name"`
			IsDefault bool   `msgpack:"is_default"`
			Contents  struct {
				SHA256     string `msgpack:"sha256"`
				Serialized string `msgpack:"serialized"`
			} `msgpack:"contents"`
		} `msgpack:"schemas"`
	}
	require.NoError(t, msgpack.Unmarshal(decompressContent(t, body), &root))
	require.Len(t, root.Schemas, 1)
	assert.Equal(t, "main", root.Schemas[0].Name)
	assert.True(t, root.Schemas[0].IsDefault)
	assert.Len(t, root.Schemas[0].Contents.SHA256, 64)

	var infos [][]byte
	require.NoError(t, msgpack.Unmarshal(decompressContent(t, []byte(root.Schemas[0].Contents.Serialized)), &infos))
	require.Len(t, infos, 1)

	var info flight.FlightInfo
	require.NoError(t, proto.Unmarshal(infos[0], &info))
	assert.Equal(t, []string{"main", "Connections"}, info.GetFlightDescriptor().GetPath())

	var appMeta map[string]any
	require.NoError(t, msgpack.Unmarshal(info.GetAppMetadata(), &appMeta))
	assert.Equal(t, "table", appMeta["type"])
	assert.Equal(t, "Connections", appMeta["name"])
	assert.Equal(t, connections.DefaultComment, appMeta["comment"])

	schema, err := flight.DeserializeSchema(info.GetSchema(), memory.DefaultAllocator)
	require.NoError(t, err)
	assert.True(t, schema.Equal(columns.Schema()))
}

func TestListTables(t *testing.T) {
	env := newTestEnv(t, nil)
	body, err := env.doAction(context.Background(), "list_tables", map[string]any{"schema_name": "main"})
	require.NoError(t, err)

	var resp struct {
		Tables map[string][]string `msgpack:"tables"`
	}
	require.NoError(t, msgpack.Unmarshal(body, &resp))
	assert.Equal(t, map[string][]string{"main": {"Connections"}}, resp.Tables)
}

func TestFlightInfoAction(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	body, err := env.doAction(ctx, "flight_info", map[string]any{"descriptor": descriptor(t, "main", "Connections")})
	require.NoError(t, err)
	var info flight.FlightInfo
	require.NoError(t, proto.Unmarshal(body, &info))
	require.Len(t, info.GetEndpoint(), 1)

	_, err = env.doAction(ctx, "flight_info", map[string]any{
		"descriptor": descriptor(t, "main", "Connections"),
		"at_unit":    "TIMESTAMP",
		"at_value":   "1700000000",
	})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestCreateTransactionAndUnknownAction(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	body, err := env.doAction(ctx, "create_transaction", map[string]any{"catalog_name": ""})
	require.NoError(t, err)
	var resp map[string]any
	require.NoError(t, msgpack.Unmarshal(body, &resp))
	v, ok := resp["identifier"]
	assert.True(t, ok)
	assert.Nil(t, v)

	_, err = env.doAction(ctx, "CreateTable", nil)
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestGetFlightInfo(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	info, err := env.client.GetFlightInfo(ctx, &flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{"main", "Connections"},
	})
	require.NoError(t, err)
	require.Len(t, info.GetEndpoint(), 1)

	ids, _, err := env.doGet(ctx, info.GetEndpoint()[0].GetTicket().GetTicket())
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	_, err = env.client.GetFlightInfo(ctx, &flight.FlightDescriptor{Type: flight.DescriptorCMD, Cmd: []byte("x")})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestListFlights(t *testing.T) {
	env := newTestEnv(t, nil)

	stream, err := env.client.ListFlights(context.Background(), &flight.Criteria{})
	require.NoError(t, err)
	info, err := stream.Recv()
	require.NoError(t, err)
	require.Len(t, info.GetEndpoint(), 1)

	data, err := serialize.Decompress(info.GetEndpoint()[0].GetTicket().GetTicket())
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestDoExchangeIsReadOnly(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, op := range []string{"insert", "update", "delete"} {
		t.Run(op, func(t *testing.T) {
			ctx := metadata.AppendToOutgoingContext(context.Background(),
				"airport-operation", op,
				"airport-flight-path", "main/Connections",
				"return-chunks", "0",
			)
			stream, err := env.client.DoExchange(ctx)
			require.NoError(t, err)

			schema := arrow.NewSchema([]arrow.Field{{Name: "rowid", Type: arrow.PrimitiveTypes.Int64}}, nil)
			b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
			b.Field(0).(*array.Int64Builder).Append(1)
			rec := b.NewRecordBatch()
			b.Release()

			writer := flight.NewRecordWriter(stream, ipc.WithSchema(schema))
			_ = writer.Write(rec)
			_ = writer.Close()
			rec.Release()
			_ = stream.CloseSend()

			_, err = stream.Recv()
			require.Error(t, err)
			assert.Equal(t, codes.FailedPrecondition, status.Code(err), "error: %v", err)
		})
	}
}

func TestDoExchangeRejectsFunctions(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := metadata.AppendToOutgoingContext(context.Background(),
		"airport-operation", "scalar_function",
		"airport-flight-path", "main/f",
		"return-chunks", "1",
	)
	stream, err := env.client.DoExchange(ctx)
	require.NoError(t, err)
	_ = stream.CloseSend()
	_, err = stream.Recv()
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestAuthInterceptor(t *testing.T) {
	env := newTestEnv(t, auth.StaticTokens(map[string]string{"s3cret": "duckdb"}))
	ticket, err := airportflight.EncodeTicket("main", "Connections")
	require.NoError(t, err)

	_, _, err = env.doGet(context.Background(), ticket)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	bad := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer wrong")
	_, _, err = env.doGet(bad, ticket)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	good := metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer s3cret")
	ids, _, err := env.doGet(good, ticket)
	require.NoError(t, err)
	assert.Len(t, ids, 3)

	_, err = env.client.GetFlightInfo(context.Background(), &flight.FlightDescriptor{
		Type: flight.DescriptorPATH,
		Path: []string{"main", "Connections"},
	})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}
