package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"robotodyssey.web/internal/autosave"
	"robotodyssey.web/internal/config"
	"robotodyssey.web/internal/engine"
	"robotodyssey.web/internal/persistence/indexdb"
	persistlog "robotodyssey.web/internal/persistence/log"
	"robotodyssey.web/internal/transport/ws"
)

func main() {
	var (
		configPath = flag.String("config", "./configs/autosave.yaml", "config file (missing file means defaults)")
		addr       = flag.String("addr", "", "http listen address (overrides server.addr)")
		dataDir    = flag.String("data", "", "runtime data directory (overrides server.data_dir)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite event/download index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	// Optional local overrides for RO_* variables.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Printf("load .env: %v", err)
	}

	path := *configPath
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Printf("config not found (%s); using defaults", path)
		path = ""
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *dataDir != "" {
		cfg.Server.DataDir = *dataDir
	}
	if *disableDB {
		cfg.Server.DisableDB = true
	}
	_ = os.MkdirAll(cfg.Server.DataDir, 0o755)

	eventLog := persistlog.NewEventLogger(cfg.Server.DataDir)
	eventLog.OnError = func(err error) { logger.Printf("event log: %v", err) }
	defer eventLog.Close()
	sinks := autosave.Sinks{eventLog}

	var idx *indexdb.SQLiteIndex
	if !cfg.Server.DisableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(cfg.Server.DataDir, "index", "autosave.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		sinks = append(sinks, idx)
	}

	wsCfg := ws.Config{
		NewEngine: func() (autosave.Engine, error) { return engine.New(cfg.Engine.MaxUnpackedBytes) },
		Codec:     cfg.TokenCodec(),
		Debounce:  cfg.Debounce(),
		Sink:      sinks,
	}
	if cfg.Server.ArchiveDownloads {
		wsCfg.ArchiveDir = filepath.Join(cfg.Server.DataDir, "downloads")
	}
	if idx != nil {
		wsCfg.Downloads = idx
	}

	ctx, cancel := signalContext()
	defer cancel()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           newRouter(cfg, ws.NewServer(wsCfg, logger), logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (debounce %s, alphabet %s)", cfg.Server.Addr, cfg.Debounce(), cfg.Codec.Alphabet)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
