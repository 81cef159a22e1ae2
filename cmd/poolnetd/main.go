package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/jroosing/poolnetd/internal/config"
	"github.com/jroosing/poolnetd/internal/connpool"
	"github.com/jroosing/poolnetd/internal/logging"
	"github.com/jroosing/poolnetd/internal/poolapi"
	"github.com/jroosing/poolnetd/internal/poolapi/registry"
	"github.com/jroosing/poolnetd/internal/poolstore"
	"github.com/jroosing/poolnetd/internal/strutil"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

// cliFlags holds parsed command-line flag values.
type cliFlags struct {
	configPath string
	listen     string
	host       string
	port       int
	workers    int
	noTCP      bool
	udp        bool
	jsonLogs   bool
	debug      bool
}

func parseFlags() cliFlags {
	var f cliFlags
	flag.StringVar(&f.configPath, "config", "", "Path to YAML config file")
	flag.StringVar(&f.listen, "listen", "", "Override bind address as host:port (takes precedence over -host/-port)")
	flag.StringVar(&f.host, "host", "", "Override bind host")
	flag.IntVar(&f.port, "port", 0, "Override bind port")
	flag.IntVar(&f.workers, "workers", -1, "Clamp GOMAXPROCS (can only reduce; -1 means default/auto)")
	flag.BoolVar(&f.noTCP, "no-tcp", false, "Disable the TCP pool")
	flag.BoolVar(&f.udp, "udp", false, "Enable the UDP pool")
	flag.BoolVar(&f.jsonLogs, "json-logs", false, "Enable JSON structured logging")
	flag.BoolVar(&f.debug, "debug", false, "Enable debug logging and per-signal debuglog fanout")
	flag.Parse()
	return f
}

func applyCLIOverrides(cfg *config.Config, f cliFlags) error {
	if f.listen != "" {
		host, port, err := strutil.SplitHostPort(f.listen)
		if err != nil {
			return fmt.Errorf("-listen: %w", err)
		}
		cfg.Server.Host = host
		cfg.Server.Port = int(port)
	}
	if f.host != "" && f.listen == "" {
		cfg.Server.Host = f.host
	}
	if f.port != 0 && f.listen == "" {
		cfg.Server.Port = f.port
	}
	if f.workers >= 0 {
		cfg.Server.Workers.Mode = config.WorkersFixed
		cfg.Server.Workers.Value = f.workers
	}
	if f.noTCP {
		cfg.Server.TCP = false
	}
	if f.udp {
		cfg.Server.UDP = true
	}
	if f.jsonLogs {
		cfg.Logging.Structured = true
		cfg.Logging.StructuredFormat = "json"
	}
	if f.debug {
		cfg.Logging.Level = "DEBUG"
		cfg.Notifier.Debug = true
	}
	return nil
}

// configureRuntime clamps GOMAXPROCS per cfg.Server.Workers, never raising it
// above the runtime's own default.
func configureRuntime(cfg *config.Config) int {
	baseProcs := runtime.GOMAXPROCS(0)
	if baseProcs <= 0 {
		baseProcs = 1
	}
	desiredProcs := baseProcs

	if cfg.Server.Workers.Mode == config.WorkersFixed {
		w := cfg.Server.Workers.Value
		if w <= 0 {
			w = 1
		}
		if w < desiredProcs {
			desiredProcs = w
		}
	}

	runtime.GOMAXPROCS(desiredProcs)
	return runtime.GOMAXPROCS(0)
}

func run() error {
	flags := parseFlags()

	cfgPath := config.ResolveConfigPath(flags.configPath)
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := applyCLIOverrides(cfg, flags); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	logger := logging.Configure(logging.Config{
		Level:            cfg.Logging.Level,
		Structured:       cfg.Logging.Structured,
		StructuredFormat: cfg.Logging.StructuredFormat,
		IncludePID:       cfg.Logging.IncludePID,
		ExtraFields:      cfg.Logging.ExtraFields,
	})

	procs := configureRuntime(cfg)
	logger.Info("poolnetd starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"workers", cfg.Server.Workers.String(),
		"gomaxprocs", procs,
		"tcp", cfg.Server.TCP,
		"udp", cfg.Server.UDP,
	)

	if !cfg.Server.TCP && !cfg.Server.UDP {
		return fmt.Errorf("at least one of server.tcp or server.udp must be enabled")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	pools, err := buildPools(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build pools: %w", err)
	}
	defer func() {
		for _, p := range pools {
			_ = p.Close()
		}
	}()

	var store *poolstore.DB
	if cfg.Storage.Enabled {
		store, err = poolstore.Open(cfg.Storage.Path)
		if err != nil {
			return fmt.Errorf("failed to open poolstore: %w", err)
		}
		defer store.Close()
		logger.Info("poolstore opened", "path", cfg.Storage.Path)
	}

	reg := registry.NewRegistry()
	for name, p := range pools {
		reg.Register(name, p)
	}
	reg.SetStore(store)

	var apiSrv *poolapi.Server
	if cfg.API.Enabled {
		apiSrv = poolapi.New(cfg, logger, reg)
		logger.Info("management API starting", "addr", apiSrv.Addr())
		go func() {
			serveErr := apiSrv.ListenAndServe()
			if serveErr == nil || errors.Is(serveErr, http.ErrServerClosed) {
				return
			}
			logger.Error("API server error", "err", serveErr)
			cancel()
		}()
	}

	if store != nil {
		go runSnapshotLoop(ctx, store, pools, logger)
	}

	runPoolLoops(ctx, pools, logger)

	if apiSrv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = apiSrv.Shutdown(shutdownCtx)
		shutdownCancel()
		logger.Info("management API stopped")
	}

	logger.Info("poolnetd stopped")
	return nil
}

// buildPools constructs the TCP and/or UDP pools cfg.Server enables, both
// bound to the same host:port and wired to the echo embedder.
func buildPools(cfg *config.Config, logger *slog.Logger) (map[string]*connpool.Pool, error) {
	pools := make(map[string]*connpool.Pool)

	base := connpool.Config{
		Capacity:       cfg.Server.MaxConnections,
		Listen:         cfg.Server.Host,
		ListenPort:     uint16(cfg.Server.Port),
		IPv6:           cfg.Server.IPv6,
		BufSize:        cfg.Server.BufSize,
		TTL:            time.Duration(cfg.Server.TTLMs) * time.Millisecond,
		BindRetries:    cfg.Server.BindRetries,
		BindRetryDelay: time.Duration(cfg.Server.BindRetryIntervalMs) * time.Millisecond,
		Debug:          cfg.Notifier.Debug,
	}

	if cfg.Server.TCP {
		tcpCfg := base
		tcpCfg.Name = "echo-tcp"
		tcpCfg.Protocol = connpool.ProtoTCP
		tcpCfg.Handler = echoHandler(logger, "echo-tcp")
		p, err := connpool.New(tcpCfg)
		if err != nil {
			return nil, fmt.Errorf("tcp pool: %w", err)
		}
		pools["echo-tcp"] = p
	}

	if cfg.Server.UDP {
		udpCfg := base
		udpCfg.Name = "echo-udp"
		udpCfg.Protocol = connpool.ProtoUDP
		udpCfg.Handler = echoHandler(logger, "echo-udp")
		p, err := connpool.New(udpCfg)
		if err != nil {
			return nil, fmt.Errorf("udp pool: %w", err)
		}
		pools["echo-udp"] = p
	}

	return pools, nil
}

// runPoolLoops drives every pool's poll loop in its own goroutine until ctx
// is cancelled.
func runPoolLoops(ctx context.Context, pools map[string]*connpool.Pool, logger *slog.Logger) {
	done := make(chan struct{}, len(pools))
	for name, p := range pools {
		go func(name string, p *connpool.Pool) {
			defer func() { done <- struct{}{} }()
			for {
				select {
				case <-ctx.Done():
					return
				default:
				}
				if err := p.PollOnce(100 * time.Millisecond); err != nil {
					logger.Error("poll error", "pool", name, "err", err)
				}
			}
		}(name, p)
	}
	for range pools {
		<-done
	}
}

// runSnapshotLoop periodically persists each pool's Stats to store.
func runSnapshotLoop(ctx context.Context, store *poolstore.DB, pools map[string]*connpool.Pool, logger *slog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, p := range pools {
				snap := p.Stats()
				if err := store.RecordSnapshot(ctx, name, snap, p.Live(), p.Capacity()); err != nil {
					logger.Error("snapshot persist error", "pool", name, "err", err)
				}
			}
		}
	}
}
