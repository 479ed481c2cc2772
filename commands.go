package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/selene-data/illumination.report/internal/catalog"
	"github.com/selene-data/illumination.report/internal/compute"
	"github.com/selene-data/illumination.report/internal/config"
	"github.com/selene-data/illumination.report/internal/expr"
	"github.com/selene-data/illumination.report/internal/raster"
	"github.com/selene-data/illumination.report/internal/slicestore"
)

// runMigrateCommand handles the 'migrate' subcommand dispatching.
func runMigrateCommand(args []string, dbPath string) {
	if len(args) < 1 {
		printMigrateHelp()
		os.Exit(1)
	}

	db, err := catalog.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	switch args[0] {
	case "up":
		// Open already applies pending migrations; report where we landed.
		version, dirty, err := db.MigrateVersion()
		if err != nil {
			log.Fatalf("Failed to get migration status: %v", err)
		}
		log.Printf("Current version: %d (dirty: %v)", version, dirty)

	case "down":
		log.Printf("Rolling back one migration...")
		if err := db.MigrateDown(); err != nil {
			log.Fatalf("Migration down failed: %v", err)
		}
		version, dirty, _ := db.MigrateVersion()
		log.Printf("Current version: %d (dirty: %v)", version, dirty)

	case "status":
		version, dirty, err := db.MigrateVersion()
		if err != nil {
			log.Fatalf("Failed to get migration status: %v", err)
		}
		fmt.Println("=== Migration Status ===")
		fmt.Printf("Current version: %d\n", version)
		fmt.Printf("Dirty: %v\n", dirty)

	case "help":
		printMigrateHelp()

	default:
		fmt.Printf("Unknown migrate action: %s\n\n", args[0])
		printMigrateHelp()
		os.Exit(1)
	}
}

func printMigrateHelp() {
	fmt.Println("Catalog Migration Commands")
	fmt.Println()
	fmt.Println("Usage: illumination-report migrate <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  up        Apply all pending migrations")
	fmt.Println("  down      Rollback one migration")
	fmt.Println("  status    Show current migration status and version")
	fmt.Println("  help      Show this help message")
}

// runRegisterCommand records a dataset file in the catalog. For raw files
// the dimensions must be given; sliceblob files carry their own shape.
func runRegisterCommand(args []string, dbPath string, cfg *config.TuningConfig) {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	format := fs.String("format", cfg.GetDatasetFormat(), "Dataset container format: raw or sliceblob")
	steps := fs.Int("steps", 0, "Time step count (required for raw)")
	height := fs.Int("height", 0, "Grid height in pixels (required for raw)")
	width := fs.Int("width", 0, "Grid width in pixels (required for raw)")
	fs.Parse(args)

	if fs.NArg() != 2 {
		log.Fatal("Usage: illumination-report register [flags] <name> <path>")
	}
	name, path := fs.Arg(0), fs.Arg(1)

	dims := raster.Dims{TimeSteps: *steps, Height: *height, Width: *width}
	loader, err := slicestore.OpenLoader(path, slicestore.Format(*format), dims)
	if err != nil {
		log.Fatalf("Failed to open dataset: %v", err)
	}
	dims = loader.Dims()
	loader.Close()

	db, err := catalog.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to open catalog: %v", err)
	}
	defer db.Close()

	ds := &catalog.Dataset{
		Name:       name,
		SourcePath: path,
		Format:     slicestore.Format(*format),
		Dims:       dims,
	}
	if err := db.InsertDataset(ds); err != nil {
		log.Fatalf("Failed to register dataset: %v", err)
	}
	log.Printf("Registered dataset %q (%s) as %s", name, dims, ds.ID)
}

// loadDatasetVolume materialises a catalog dataset in full. The analysis
// commands operate on whole volumes; interactive slice access goes through
// the serve command instead.
func loadDatasetVolume(ctx context.Context, db *catalog.DB, name string) (*raster.Volume, error) {
	ds, err := db.GetDatasetByName(name)
	if err != nil {
		return nil, err
	}
	loader, err := slicestore.OpenLoader(ds.SourcePath, ds.Format, ds.Dims)
	if err != nil {
		return nil, fmt.Errorf("opening dataset %q: %w", name, err)
	}
	defer loader.Close()

	dims := loader.Dims()
	vol := raster.NewVolume(dims)
	sliceLen := dims.SliceLen()
	for t := 0; t < dims.TimeSteps; t++ {
		buf, err := loader.LoadSlice(ctx, t)
		if err != nil {
			return nil, fmt.Errorf("reading slice %d of %q: %w", t, name, err)
		}
		copy(vol.Data[t*sliceLen:(t+1)*sliceLen], buf)
	}
	return vol, nil
}

// writeResultVolume writes an analysis output volume in the requested
// container format, or skips output entirely when no path is given.
func writeResultVolume(path string, format string, vol *raster.Volume) {
	if path == "" {
		return
	}
	var err error
	switch slicestore.Format(format) {
	case slicestore.FormatRaw:
		err = slicestore.WriteRaw(path, vol)
	case slicestore.FormatSliceBlob:
		err = slicestore.WriteSliceBlob(path, vol)
	default:
		err = fmt.Errorf("unknown output format %q", format)
	}
	if err != nil {
		log.Fatalf("Failed to write output: %v", err)
	}
	log.Printf("Wrote %s (%s)", path, vol.Dims)
}

// runEvalCommand evaluates a boolean raster expression over named catalog
// datasets, recording the run in the catalog.
func runEvalCommand(args []string, dbPath string, cfg *config.TuningConfig) {
	fs := flag.NewFlagSet("eval", flag.ExitOnError)
	out := fs.String("out", "", "Output volume path (omit to discard)")
	outFormat := fs.String("out-format", "raw", "Output container format: raw or sliceblob")
	fs.Parse(args)

	if fs.NArg() < 2 {
		log.Fatal("Usage: illumination-report eval [flags] <expression> <var=dataset>...")
	}
	expression := fs.Arg(0)

	// Parse up front so syntax errors surface before any dataset loads.
	if _, err := expr.Parse(expression); err != nil {
		log.Fatalf("Invalid expression: %v", err)
	}

	db, err := catalog.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to open catalog: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	var layers []compute.LayerEntry
	bindings := map[string]string{}
	for _, arg := range fs.Args()[1:] {
		name, dataset, ok := splitBinding(arg)
		if !ok {
			log.Fatalf("Invalid binding %q: expected var=dataset", arg)
		}
		vol, err := loadDatasetVolume(ctx, db, dataset)
		if err != nil {
			log.Fatalf("Failed to load dataset: %v", err)
		}
		layers = append(layers, compute.DataLayer(name, vol))
		bindings[name] = dataset
	}

	runID, err := db.StartRun("expression", map[string]any{
		"expression": expression,
		"bindings":   bindings,
	})
	if err != nil {
		log.Fatalf("Failed to record run: %v", err)
	}

	d := compute.NewDispatcher()
	defer d.Close()

	result, err := d.Submit(ctx, compute.Task{
		Kind:       compute.TaskExpression,
		Expression: expression,
		Layers:     layers,
	})
	if err != nil {
		db.FailRun(runID, err.Error())
		log.Fatalf("Evaluation failed: %v", err)
	}

	trueCount := 0
	for _, v := range result.Volume.Data {
		if v != 0 {
			trueCount++
		}
	}
	summary := map[string]any{
		"dims":       result.Volume.Dims.String(),
		"true_count": trueCount,
		"samples":    len(result.Volume.Data),
	}
	if err := db.CompleteRun(runID, summary); err != nil {
		log.Printf("Failed to complete run record: %v", err)
	}

	log.Printf("Run %s: %d of %d samples true", runID, trueCount, len(result.Volume.Data))
	writeResultVolume(*out, *outFormat, result.Volume)
}

// runNightfallCommand computes the signed time-to-sunrise volume for a
// dataset.
func runNightfallCommand(args []string, dbPath string, cfg *config.TuningConfig) {
	fs := flag.NewFlagSet("nightfall", flag.ExitOnError)
	out := fs.String("out", "", "Output volume path (omit to discard)")
	outFormat := fs.String("out-format", "raw", "Output container format: raw or sliceblob")
	fs.Parse(args)

	if fs.NArg() != 1 {
		log.Fatal("Usage: illumination-report nightfall [flags] <dataset>")
	}
	dataset := fs.Arg(0)

	db, err := catalog.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to open catalog: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	vol, err := loadDatasetVolume(ctx, db, dataset)
	if err != nil {
		log.Fatalf("Failed to load dataset: %v", err)
	}

	runID, err := db.StartRun("nightfall", map[string]any{"dataset": dataset})
	if err != nil {
		log.Fatalf("Failed to record run: %v", err)
	}

	d := compute.NewDispatcher()
	defer d.Close()

	result, err := d.Submit(ctx, compute.Task{
		Kind:   compute.TaskNightfall,
		Source: compute.DataLayer(dataset, vol),
	})
	if err != nil {
		db.FailRun(runID, err.Error())
		log.Fatalf("Nightfall analysis failed: %v", err)
	}

	summary := map[string]any{
		"dims":  result.Volume.Dims.String(),
		"range": result.Range,
	}
	if err := db.CompleteRun(runID, summary); err != nil {
		log.Printf("Failed to complete run record: %v", err)
	}

	log.Printf("Run %s: value range [%g, %g]", runID, result.Range.Min, result.Range.Max)
	writeResultVolume(*out, *outFormat, result.Volume)
}

// runDaylightCommand computes per-pixel daylight fractions over a time
// range and prints the statistical summary as JSON.
func runDaylightCommand(args []string, dbPath string, cfg *config.TuningConfig) {
	fs := flag.NewFlagSet("daylight", flag.ExitOnError)
	start := fs.Int("start", 0, "First time step of the analysis range (inclusive)")
	end := fs.Int("end", -1, "Last time step of the analysis range (inclusive, -1 for the final step)")
	fs.Parse(args)

	if fs.NArg() != 1 {
		log.Fatal("Usage: illumination-report daylight [flags] <dataset>")
	}
	dataset := fs.Arg(0)

	db, err := catalog.Open(dbPath)
	if err != nil {
		log.Fatalf("Failed to open catalog: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	vol, err := loadDatasetVolume(ctx, db, dataset)
	if err != nil {
		log.Fatalf("Failed to load dataset: %v", err)
	}

	rangeEnd := *end
	if rangeEnd < 0 {
		rangeEnd = vol.Dims.TimeSteps - 1
	}

	runID, err := db.StartRun("daylight", map[string]any{
		"dataset": dataset,
		"start":   *start,
		"end":     rangeEnd,
	})
	if err != nil {
		log.Fatalf("Failed to record run: %v", err)
	}

	d := compute.NewDispatcher()
	defer d.Close()

	result, err := d.Submit(ctx, compute.Task{
		Kind:       compute.TaskDaylight,
		Source:     compute.DataLayer(dataset, vol),
		RangeStart: *start,
		RangeEnd:   rangeEnd,
	})
	if err != nil {
		db.FailRun(runID, err.Error())
		log.Fatalf("Daylight analysis failed: %v", err)
	}

	if err := db.CompleteRun(runID, result.Summary); err != nil {
		log.Printf("Failed to complete run record: %v", err)
	}

	log.Printf("Run %s complete", runID)
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result.Summary); err != nil {
		log.Fatalf("Failed to encode summary: %v", err)
	}
}

// splitBinding parses a var=dataset argument.
func splitBinding(arg string) (name, dataset string, ok bool) {
	for i := 0; i < len(arg); i++ {
		if arg[i] == '=' {
			if i == 0 || i == len(arg)-1 {
				return "", "", false
			}
			return arg[:i], arg[i+1:], true
		}
	}
	return "", "", false
}
