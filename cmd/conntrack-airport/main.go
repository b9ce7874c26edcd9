// Command conntrack-airport serves the kernel connection tracking table to
// DuckDB over Arrow Flight.
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	airport "github.com/hugr-lab/conntrack-airport"
	"github.com/hugr-lab/conntrack-airport/connections"
	"github.com/hugr-lab/conntrack-airport/conntrack"
	"github.com/hugr-lab/conntrack-airport/internal/config"
	"github.com/hugr-lab/conntrack-airport/metrics"
	"github.com/hugr-lab/conntrack-airport/predicate"
)

const shutdownTimeout = 10 * time.Second

type serveCommand struct {
	configFile    string
	listen        string
	advertise     string
	metricsListen string
	netns         string
	baseFilter    string
	logLevel      string
}

func (cmd *serveCommand) register(app *kingpin.Application) {
	c := app.Command("serve", "Serve the Connections table over Arrow Flight.").Default()
	c.Flag("config", "Path to a YAML config file.").Short('c').StringVar(&cmd.configFile)
	c.Flag("listen", "gRPC listen address.").StringVar(&cmd.listen)
	c.Flag("advertise", "Address advertised in Flight endpoints.").StringVar(&cmd.advertise)
	c.Flag("metrics-listen", "HTTP listen address for /metrics.").StringVar(&cmd.metricsListen)
	c.Flag("netns", "Network namespace path to read conntrack from.").StringVar(&cmd.netns)
	c.Flag("base-filter", "SQL WHERE clause applied to every scan.").StringVar(&cmd.baseFilter)
	c.Flag("log.level", "Log level: debug, info, warn or error.").StringVar(&cmd.logLevel)
	c.Action(func(*kingpin.ParseContext) error {
		cfg, err := cmd.config()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	})
}

// config loads the file, if any, and applies flag overrides.
func (cmd *serveCommand) config() (*config.Config, error) {
	cfg := config.Default()
	if cmd.configFile != "" {
		var err error
		if cfg, err = config.Load(cmd.configFile); err != nil {
			return nil, err
		}
	}
	for _, o := range []struct {
		flag string
		dst  *string
	}{
		{cmd.listen, &cfg.Listen},
		{cmd.advertise, &cfg.Advertise},
		{cmd.metricsListen, &cfg.MetricsListen},
		{cmd.netns, &cfg.NetNS},
		{cmd.baseFilter, &cfg.BaseFilter},
		{cmd.logLevel, &cfg.Log.Level},
	} {
		if o.flag != "" {
			*o.dst = o.flag
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, err := cfg.Log.Logger()
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	m := metrics.NewMetrics()
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if err := m.Register(reg); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	compiler := predicate.NewCompiler(logger, predicate.WithDropObserver(m))

	var connectOpts []conntrack.ConnectOption
	if cfg.NetNS != "" {
		connectOpts = append(connectOpts, conntrack.WithNetNS(cfg.NetNS))
	}
	handle, err := conntrack.Connect(ctx, connectOpts...)
	if err != nil {
		return fmt.Errorf("connect to conntrack: %w", err)
	}
	defer handle.Close()

	if cfg.BaseFilter != "" {
		pd, err := compiler.CompileSQL(cfg.BaseFilter)
		if err != nil {
			return fmt.Errorf("base_filter: %w", err)
		}
		if !pd.Exact() {
			for _, d := range pd.Dropped {
				logger.Warn("Base filter term is not enforced", "expr", d.Expr, "reason", d.Reason, "detail", d.Detail)
			}
		}
		handle = handle.WithFilter(pd.Filter)
		logger.Info("Base filter applied", "filter", pd.Filter.String())
	}

	table := connections.New(handle, compiler,
		connections.WithLogger(logger),
		connections.WithMetrics(m),
		connections.WithBatchSize(cfg.BatchSize),
	)

	var auth airport.Authenticator
	if len(cfg.Auth.Tokens) > 0 {
		auth = airport.StaticTokens(cfg.Auth.Tokens)
	}
	serverConfig := airport.ServerConfig{
		Catalog:        connections.NewCatalog(table, connections.WithSchemaName(cfg.Schema)),
		Auth:           auth,
		Logger:         logger,
		MaxMessageSize: cfg.MaxMessageSize,
		Address:        cfg.Advertise,
	}
	opts := airport.ServerOptions(serverConfig)
	if cfg.TLS.Enabled() {
		creds, err := loadTLSCredentials(cfg.TLS)
		if err != nil {
			return err
		}
		opts = append(opts, grpc.Creds(creds))
	}
	grpcServer := grpc.NewServer(opts...)
	if err := airport.NewServer(grpcServer, serverConfig); err != nil {
		return err
	}

	lis, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Airport server listening",
			"address", lis.Addr().String(),
			"schema", cfg.Schema,
			"tls", cfg.TLS.Enabled(),
		)
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down")
		stopped := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(shutdownTimeout):
			grpcServer.Stop()
		}
		return nil
	})

	if cfg.MetricsListen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
		metricsServer := &http.Server{
			Addr:              cfg.MetricsListen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("Metrics server listening", "address", cfg.MetricsListen)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func loadTLSCredentials(c config.TLSConfig) (credentials.TransportCredentials, error) {
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
	}
	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}), nil
}

type explainCommand struct {
	where string
}

func (cmd *explainCommand) register(app *kingpin.Application) {
	c := app.Command("explain", "Show how a WHERE clause is pushed down to conntrack.")
	c.Arg("where", "SQL WHERE clause, without the WHERE keyword.").Required().StringVar(&cmd.where)
	c.Action(func(*kingpin.ParseContext) error {
		return explain(os.Stdout, cmd.where)
	})
}

func explain(w io.Writer, where string) error {
	compiler := predicate.NewCompiler(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))
	pd, err := compiler.CompileSQL(where)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "filter: %s\n", pd.Filter)
	fmt.Fprintf(w, "exact:  %t\n", pd.Exact())
	for _, d := range pd.Dropped {
		fmt.Fprintf(w, "dropped: %s (%s) %s\n", d.Expr, d.Reason, d.Detail)
	}
	return nil
}

func main() {
	app := kingpin.New("conntrack-airport", "Kernel connection tracking as a DuckDB Airport table.")
	app.HelpFlag.Short('h')
	(&serveCommand{}).register(app)
	(&explainCommand{}).register(app)

	if _, err := app.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "conntrack-airport: %v\n", err)
		os.Exit(1)
	}
}
