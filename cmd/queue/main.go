// ============================================================================
// Beaver Queue - Main Entry Point
// ============================================================================
//
// File: cmd/queue/main.go
// Purpose: Application entry point and CLI initialization
//
// Responsibilities:
//   1. Version Management - Inject build info via ldflags
//   2. Panic Recovery - Catch unexpected panics gracefully
//   3. CLI Setup - Build and configure Cobra command interface
//   4. Handler Registration - Wire this binary's job handlers into the
//      registry before the run command starts the controller
//
// Version Injection:
//   Variables injected at build time via -ldflags:
//   go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
//
// Usage:
//   ./beaver-queue --help              # Show help
//   ./beaver-queue --version           # Show version
//   ./beaver-queue run                 # Start queue system
//   ./beaver-queue submit -f jobs.json --remote http://localhost:8080
//   ./beaver-queue status              # View configuration status
//
// ============================================================================

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/ChuLiYu/beaver-queue/internal/cli"
	"github.com/ChuLiYu/beaver-queue/internal/registry"
	"github.com/ChuLiYu/beaver-queue/pkg/job"
	"github.com/ChuLiYu/beaver-queue/pkg/serializer"
)

// Build-time version injection via ldflags.
var (
	version = "1.0.0"
	commit  = "dev"
	date    = "unknown"
)

// echoHandler is the reference WithBody handler used by the end-to-end happy
// path (spec.md §8 scenario S1): it uppercases the request string.
type echoHandler struct{}

func (echoHandler) Handle(ctx *registry.Context, req string) (string, *job.Error) {
	return strings.ToUpper(req), nil
}

// pingHandler is the reference WithoutBody handler, exercising the
// no-request-payload dispatch path (spec.md §4.4).
type pingHandler struct{}

func (pingHandler) Handle(ctx *registry.Context) (string, *job.Error) {
	return "pong", nil
}

func registerHandlers(reg *registry.Registry) {
	ser := serializer.New()
	if err := registry.RegisterWithBody[string, string](reg, "echo", echoHandler{}, ser); err != nil {
		panic(err)
	}
	if err := registry.RegisterWithoutBody[string](reg, "ping", pingHandler{}, ser); err != nil {
		panic(err)
	}
}

// main is the program entry point. It builds the CLI, registers this
// binary's job handlers, and hands control to cobra.
func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", r)
			os.Exit(1)
		}
	}()

	rootCmd := cli.BuildCLI(registerHandlers)
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
