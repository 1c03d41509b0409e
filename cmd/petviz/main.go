package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"petviz/internal/logger"
	"petviz/pkg/config"
	"petviz/pkg/pipeline"
	"petviz/pkg/server"
)

func main() {
	// Parse command line arguments
	inputFile := flag.String("input", "", "NIfTI volume to normalize (.nii or .nii.gz)")
	outputFile := flag.String("output", "", "Output filename (default: <stem>_<method>.nii.gz next to the input)")
	method := flag.String("method", "", "Normalization method: min_max or z_score (default from config)")
	serve := flag.Bool("serve", false, "Start the HTTP server instead of processing a file")
	address := flag.String("address", "", "Listen address for -serve (overrides the config)")
	previewDir := flag.String("preview-dir", "", "Save PNG slice previews of the normalized volume to this directory")
	verify := flag.Bool("verify", false, "Re-read the output with an independent NIfTI reader and compare")
	configPath := flag.String("config", "petviz.yaml", "Path to the YAML config file")
	initConfig := flag.String("init-config", "", "Write a default config file to this path and exit")
	flag.Parse()

	if *initConfig != "" {
		if err := config.CreateDefaultConfigFile(*initConfig); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to: %s\n", *initConfig)
		return
	}

	// Validate inputs
	if !*serve && *inputFile == "" {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	zerolog.DurationFieldInteger = true

	lg, err := logger.New(logger.Config{
		Level:   cfg.Logging.Level,
		Logfile: cfg.Logging.Logfile,
		MaxSize: cfg.Logging.MaxLogSize,
		MaxAge:  cfg.Logging.MaxLogAge,
	})
	if err != nil {
		log.Fatalf("Failed to set up logging: %v", err)
	}
	defer lg.Close()

	params := &pipeline.Params{
		CompressionLevel: cfg.Processing.CompressionLevel,
		Percentiles:      cfg.Output.Verbose,
		SavePreviews:     cfg.Output.SavePreviews,
		PreviewDir:       cfg.Output.PreviewDir,
		PreviewSize:      cfg.Output.PreviewSize,
	}

	if *serve {
		if *address != "" {
			cfg.Server.Address = *address
		}

		// Previews and percentiles are CLI features and never computed per request
		params.SavePreviews = false
		params.Percentiles = false

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := server.New(cfg, pipeline.NewProcessor(params, lg), lg)
		if err := srv.Run(ctx); err != nil {
			lg.Error("main", err, nil)
			os.Exit(1)
		}
		return
	}

	if *previewDir != "" {
		params.SavePreviews = true
		params.PreviewDir = *previewDir
	}

	methodName := *method
	if methodName == "" {
		methodName = cfg.Processing.DefaultMethod
	}

	verbose := cfg.Output.Verbose
	if verbose {
		fmt.Println("================================")
		fmt.Println("PET VOLUME INTENSITY NORMALIZATION")
		fmt.Println("================================")
	}

	data, err := os.ReadFile(*inputFile)
	if err != nil {
		log.Fatalf("Failed to read input: %v", err)
	}

	processor := pipeline.NewProcessor(params, lg)

	if verbose {
		fmt.Printf("Processing %s (%s) with %s normalization...\n", *inputFile, humanize.Bytes(uint64(len(data))), methodName)
	}
	startTime := time.Now()
	result, err := processor.ProcessNamed(*inputFile, data, methodName)
	if err != nil {
		log.Fatalf("Processing failed: %v", err)
	}
	processingTime := time.Since(startTime)

	outputPath := *outputFile
	if outputPath == "" {
		outputPath = filepath.Join(filepath.Dir(*inputFile), result.FileName)
	}
	if err := os.WriteFile(outputPath, result.Output, 0644); err != nil {
		log.Fatalf("Failed to write output: %v", err)
	}

	m := result.Metrics
	fmt.Printf("\nNormalization completed successfully in %.2f seconds!\n", processingTime.Seconds())
	fmt.Printf("Output volume saved to: %s\n\n", outputPath)

	if verbose {
		fmt.Printf("Volume:\n")
		fmt.Printf("=======================================\n")
		fmt.Printf("Header: %s\n", result.Metadata.Describe())
		fmt.Printf("Method: %s\n", result.Method)
		fmt.Printf("Voxels: %s (%d non-finite)\n", humanize.Comma(int64(m.Voxels)), m.NonFinite)
		fmt.Printf("Size: %s in, %s out\n", humanize.Bytes(uint64(m.InputBytes)), humanize.Bytes(uint64(m.OutputBytes)))

		fmt.Printf("\nIntensities:      %12s %12s\n", "input", "output")
		printRow("Minimum", m.Input.Min, m.Output.Min)
		printRow("Maximum", m.Input.Max, m.Output.Max)
		printRow("Mean", m.Input.Mean, m.Output.Mean)
		printRow("Std deviation", m.Input.StdDev, m.Output.StdDev)
		printRow("Median", m.Input.Median, m.Output.Median)
		printRow("1st percentile", m.Input.P1, m.Output.P1)
		printRow("99th percentile", m.Input.P99, m.Output.P99)
	}

	if len(result.Previews) > 0 {
		fmt.Println("\nPreviews saved to:")
		for _, p := range result.Previews {
			fmt.Printf("- %s\n", p)
		}
	}

	if *verify {
		fmt.Println("\nVerifying output with an independent NIfTI reader...")
		switch err := verifyOutput(outputPath, result); {
		case errors.Is(err, errBigEndian):
			fmt.Printf("Verification skipped: %v\n", err)
		case err != nil:
			log.Fatalf("Verification failed: %v", err)
		default:
			fmt.Println("Verification passed!")
		}
	}
}

func printRow(label string, in, out float64) {
	fmt.Printf("%-17s %12.4f %12.4f\n", label+":", in, out)
}
