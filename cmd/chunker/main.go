package main

import (
	"context"
	"io"
	"log"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/contextd/contextd/internal/chunker"
	"github.com/contextd/contextd/internal/config"
	"github.com/contextd/contextd/internal/scanner"
)

func main() {
	fs := pflag.NewFlagSet("contextd-chunker", pflag.ExitOnError)
	root := fs.String("root", ".", "Root directory to scan")
	output := fs.String("output", "-", "Output file for chunk records (- for stdout)")

	cfg, err := config.Load("", fs)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	zerolog.SetGlobalLevel(level)

	codeChunker, err := chunker.New(cfg.MaxChunkSize, cfg.ChunkOverlapRatio)
	if err != nil {
		log.Fatalf("Failed to create chunker: %v", err)
	}

	var out io.Writer = os.Stdout
	if *output != "-" {
		f, err := os.Create(*output)
		if err != nil {
			log.Fatalf("Failed to create output file %s: %v", *output, err)
		}
		defer f.Close()
		out = f
	}

	sc := scanner.New(*root, codeChunker, out)
	if err := sc.Run(context.Background()); err != nil {
		log.Fatalf("Scan failed: %v", err)
	}
}
