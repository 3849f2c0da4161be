package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"featcli/internal/app"
	"featcli/pkg/contracts"
)

func main() {
	port := flag.Int("port", 0, "override the configured HTTP port")
	showVersion := flag.Bool("version", false, "print version information and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println(contracts.GetFullVersionString())
		return
	}

	// The override rides the normal env-based configuration path so the
	// rest of the config surface stays consistent.
	if *port > 0 {
		os.Setenv("FEAT_SERVER_PORT", strconv.Itoa(*port))
	}

	application, err := app.NewApplication()
	if err != nil {
		slog.Error("Failed to initialize application", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		slog.Error("Application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
