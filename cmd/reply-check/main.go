package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/PetrosWatts/regdeadline/internal/core"
	"github.com/PetrosWatts/regdeadline/internal/di"
)

func main() {
	flags, err := di.ParseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	var logger *zap.Logger
	if err := container.Invoke(func(l *zap.Logger) { logger = l }); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	check, err := di.NewReplyCheck(container)
	if err != nil {
		logger.Fatal("Failed to create classifier", zap.Error(err))
	}
	if closer, ok := check.Classifier.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	raw, err := readInput(flags, logger)
	if err != nil {
		logger.Fatal("Failed to read reply", zap.Error(err))
	}

	email, err := check.Parser.Parse(raw)
	if err != nil {
		logger.Fatal("Failed to parse reply", zap.Error(err))
	}

	fmt.Printf("\n=== Reply Summary ===\n")
	fmt.Printf("From: %s\n", email.From)
	fmt.Printf("Sender address: %s\n", core.ExtractAddress(email.From))
	fmt.Printf("Subject: %s\n", email.Subject)
	fmt.Printf("Body length: %d bytes\n", len(email.Body))

	fmt.Printf("\n=== Analysis ===\n")
	fmt.Printf("Provider: %s\n", check.Provider)

	startTime := time.Now()
	optOut, err := check.Classifier.IsOptOut(context.Background(), email)
	decidedBy := check.Provider
	if err != nil {
		logger.Warn("Classifier failed, using keywords", zap.Error(err))
		optOut, _ = check.Keywords.IsOptOut(context.Background(), email)
		decidedBy = "keyword (fallback)"
	}
	duration := time.Since(startTime)

	keyword, matched := check.Keywords.Match(email)

	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Opt-out request: %t\n", optOut)
	fmt.Printf("Decided by: %s\n", decidedBy)
	if matched {
		fmt.Printf("Matched keyword: %q\n", keyword)
	} else {
		fmt.Printf("Matched keyword: none\n")
	}
	fmt.Printf("Processing time: %v\n", duration)
}

func readInput(flags *di.CLIFlags, logger *zap.Logger) ([]byte, error) {
	if flags.InputFile == "" {
		logger.Info("Reading reply from stdin")
		return io.ReadAll(os.Stdin)
	}
	logger.Info("Reading reply from file", zap.String("file", flags.InputFile))
	return os.ReadFile(flags.InputFile)
}
