package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	_ "modernc.org/sqlite"

	"github.com/selene-data/illumination.report/internal/catalog"
	"github.com/selene-data/illumination.report/internal/config"
	"github.com/selene-data/illumination.report/internal/monitor"
	"github.com/selene-data/illumination.report/internal/slicestore"
	"github.com/selene-data/illumination.report/internal/version"
)

var (
	dbFile     = flag.String("db", "illumination.db", "Path to the catalog database file")
	listen     = flag.String("listen", "", "Diagnostics HTTP listen address (overrides config)")
	configFile = flag.String("config", "", "Path to a JSON tuning config file")
)

func usage() {
	fmt.Printf("Lunar illumination analysis engine %s\n", version.String())
	fmt.Println()
	fmt.Println("Usage: illumination-report [flags] <command> [args]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve                          Run the diagnostics HTTP server over all catalog datasets")
	fmt.Println("  register <name> <path>         Register a dataset file in the catalog")
	fmt.Println("  eval <expr> <var=dataset>...   Evaluate a boolean raster expression")
	fmt.Println("  nightfall <dataset>            Compute the time-to-sunrise volume")
	fmt.Println("  daylight <dataset>             Compute per-pixel daylight fractions")
	fmt.Println("  migrate <up|down|status>       Manage the catalog schema")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

func loadConfig() *config.TuningConfig {
	if *configFile == "" {
		return config.EmptyTuningConfig()
	}
	cfg, err := config.LoadTuningConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func main() {
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	cfg := loadConfig()
	dbPath := *dbFile
	if *dbFile == "illumination.db" && cfg.CatalogPath != nil {
		dbPath = cfg.GetCatalogPath()
	}

	switch args[0] {
	case "migrate":
		runMigrateCommand(args[1:], dbPath)
	case "register":
		runRegisterCommand(args[1:], dbPath, cfg)
	case "eval":
		runEvalCommand(args[1:], dbPath, cfg)
	case "nightfall":
		runNightfallCommand(args[1:], dbPath, cfg)
	case "daylight":
		runDaylightCommand(args[1:], dbPath, cfg)
	case "serve":
		runServe(dbPath, cfg)
	default:
		fmt.Printf("Unknown command: %s\n\n", args[0])
		usage()
		os.Exit(1)
	}
}

// runServe opens every catalog dataset behind a cached slice store and
// exposes the diagnostics endpoints until interrupted.
func runServe(dbPath string, cfg *config.TuningConfig) {
	db, err := catalog.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to open catalog: %v", err)
	}
	defer db.Close()

	datasets, err := db.ListDatasets()
	if err != nil {
		log.Fatalf("Failed to list datasets: %v", err)
	}

	addr := cfg.GetMonitorAddr()
	if *listen != "" {
		addr = *listen
	}
	ws := monitor.NewWebServer(monitor.WebServerConfig{Address: addr, DB: db})

	storeCfg := slicestore.Config{
		Capacity:        cfg.GetCacheCapacity(),
		PreloadDistance: cfg.GetPreloadDistance(),
	}
	var stores []*slicestore.Store
	for _, ds := range datasets {
		loader, err := slicestore.OpenLoader(ds.SourcePath, ds.Format, ds.Dims)
		if err != nil {
			log.Printf("Skipping dataset %q: %v", ds.Name, err)
			continue
		}
		store := slicestore.New(loader, storeCfg)
		stores = append(stores, store)
		ws.RegisterStore(ds.Name, store)
		log.Printf("Serving dataset %q (%s, %s)", ds.Name, ds.Format, ds.Dims)
	}
	defer func() {
		for _, s := range stores {
			s.Dispose()
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ws.Start(ctx); err != nil {
			log.Printf("Diagnostics server error: %v", err)
		}
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
