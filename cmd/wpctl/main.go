// main.go - Admin control tool for wpinsight
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"wpinsight/internal"
	"wpinsight/internal/config"
	"wpinsight/internal/logging"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given app and args
	Execute(ctx context.Context, app *internal.Application, args []string) error
}

// The set of available commands
var commands = []Command{
	&MigrateCommand{},
	&RegisterCommand{},
	&DefinitionsCommand{},
	&TrackCommand{},
	&ConvertCommand{},
	&ReportCommand{},
	&AttributionCommand{},
	&ConversionCommand{},
	&PurgeCommand{},
	&SeedCommand{},
	&StatusCommand{},
	&HelpCommand{},
}

// out receives command results: indented JSON when stdout is not a terminal,
// text otherwise.
var out = newPrinter(os.Stdout)

func main() {
	flag.Parse()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs()
	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}
	if _, ok := cmd.(*HelpCommand); ok {
		cmd.Execute(ctx, nil, args)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Logs go to stderr so results on stdout stay machine readable
	app, err := internal.NewApp(cfg, logging.Options{Output: os.Stderr})
	if err != nil {
		log.Fatalf("Failed to initialize app: %v", err)
	}

	err = cmd.Execute(ctx, app, args)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer shutdownCancel()
	if shutdownErr := app.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Printf("Warning: Cleanup error: %v", shutdownErr)
	}

	if err != nil {
		log.Fatalf("Command %s failed: %v", cmd.Name(), err)
	}
}

// printer writes command results.
type printer struct {
	w    io.Writer
	json bool
}

func newPrinter(f *os.File) *printer {
	return &printer{w: f, json: !term.IsTerminal(int(f.Fd()))}
}

// Result prints v as JSON, or calls text when attached to a terminal.
func (p *printer) Result(v any, text func(w io.Writer)) error {
	if p.json || text == nil {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(p.w)
	return nil
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, app *internal.Application, args []string) error {
	printUsage()
	return nil
}

// parseArgs parses the command name and arguments
func parseArgs() (string, []string) {
	args := flag.Args()
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func printUsage() {
	fmt.Println("Usage: wpctl [command] [args...]")
	fmt.Println("Available commands:")

	for _, cmd := range commands {
		fmt.Printf("  %-12s %s\n", cmd.Name(), cmd.Description())
	}
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	printUsage()
	os.Exit(1)
}
