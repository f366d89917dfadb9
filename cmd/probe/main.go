package main

import (
	"flag"
	"fmt"
	"os"

	"dualdetect/internal/config"
	"dualdetect/internal/logger"
	"dualdetect/internal/source"
)

func main() {
	cfg := config.Load()
	maxIndex := flag.Int("max-index", cfg.ProbeMaxIndex, "Highest device index to probe")
	flag.Parse()

	log, err := logger.New(cfg.LogDirectory)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Probing capture devices 0..%d\n", *maxIndex)

	snap := source.NewEnumerator(source.CaptureOpener{}, *maxIndex, log).Enumerate()
	if snap.Len() == 0 {
		fmt.Println("No readable capture devices found")
		return
	}

	for _, src := range snap.Sources() {
		fmt.Printf("   %s -> %s\n", src.DisplayName, src.ID)
	}
	fmt.Printf("✅ Found %d source(s)\n", snap.Len())
}
