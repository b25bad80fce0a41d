package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/blockflow-ai/blockflow"
	"github.com/blockflow-ai/blockflow/script"
	"github.com/blockflow-ai/blockflow/tools"
	"github.com/fatih/color"
)

// CLI configuration
type Config struct {
	WorkflowFile string
	Input        map[string]any
	Environment  map[string]string
	Variables    map[string]any
	WorkflowsDir string
	LogsDir      string
	RunsDir      string
	PostgresDSN  string
	CodeService  string
	Engine       string
	Template     string
	Timeout      time.Duration
	Verbose      bool
	JSON         bool
}

func main() {
	config := parseFlags()

	// Validate required arguments
	if config.WorkflowFile == "" {
		color.Red("Error: workflow file is required")
		flag.Usage()
		os.Exit(1)
	}
	if _, err := os.Stat(config.WorkflowFile); os.IsNotExist(err) {
		color.Red("Error: workflow file '%s' not found", config.WorkflowFile)
		os.Exit(1)
	}

	logger := setupLogger(config.Verbose)

	color.Blue("Loading workflow from: %s", config.WorkflowFile)
	wf, err := blockflow.LoadFile(config.WorkflowFile)
	if err != nil {
		log.Fatalf("Failed to load workflow: %v", err)
	}

	color.Cyan("Workflow: %s", wf.Name())
	if wf.Description() != "" {
		color.White("Description: %s", wf.Description())
	}

	ctx := context.Background()

	runLogger, runStore, cleanup := setupStores(ctx, config)
	defer cleanup()

	registry, err := setupWorkflowRegistry(config, wf)
	if err != nil {
		log.Fatalf("Failed to load workflow registry: %v", err)
	}

	opts := blockflow.ExecutorOptions{
		Workflow:         wf,
		Tools:            tools.Default(),
		WorkflowRegistry: registry,
		Logger:           logger,
		RunLogger:        runLogger,
		RunStore:         runStore,
	}
	if !config.JSON {
		opts.Formatter = blockflow.NewColorFormatter()
	}
	if config.Engine == "risor" {
		opts.ScriptCompiler = script.NewRisorEngine(script.DefaultRisorGlobals())
	}
	if config.CodeService != "" {
		runner, err := blockflow.NewRemoteRunner(blockflow.RemoteRunnerOptions{
			BaseURL: config.CodeService,
			APIKey:  os.Getenv("BLOCKFLOW_CODE_SERVICE_KEY"),
		})
		if err != nil {
			log.Fatalf("Failed to create code runner: %v", err)
		}
		opts.CodeRunner = runner
		color.Blue("Code service: %s", config.CodeService)
	}

	executor, err := blockflow.NewExecutor(opts)
	if err != nil {
		log.Fatalf("Failed to create executor: %v", err)
	}

	// Execute workflow with timeout
	if config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.Timeout)
		defer cancel()
		color.Yellow("Timeout: %v", config.Timeout)
	}

	color.Green("Starting run...\n")

	startTime := time.Now()
	result, runErr := executor.Execute(ctx, blockflow.RunOptions{
		Input:       config.Input,
		Environment: config.Environment,
		Variables:   config.Variables,
	})
	duration := time.Since(startTime)

	showRunResult(result, runErr, duration, config)
}

func parseFlags() *Config {
	config := &Config{
		Input:       make(map[string]any),
		Environment: make(map[string]string),
		Variables:   make(map[string]any),
	}

	// Define flags
	flag.StringVar(&config.WorkflowFile, "file", "", "Path to the YAML workflow definition file (required)")
	flag.StringVar(&config.WorkflowFile, "f", "", "Path to the YAML workflow definition file (shorthand)")

	var inputFlags stringSlice
	flag.Var(&inputFlags, "input", "Run input in format key=value (can be used multiple times)")
	flag.Var(&inputFlags, "i", "Run input in format key=value (shorthand, can be used multiple times)")

	var envFlags stringSlice
	flag.Var(&envFlags, "env", "Environment variable in format NAME=value (can be used multiple times)")

	var varFlags stringSlice
	flag.Var(&varFlags, "var", "Workflow variable override in format name=value (can be used multiple times)")

	flag.StringVar(&config.WorkflowsDir, "workflows", "", "Directory of workflow definitions available to workflow blocks (optional)")

	flag.StringVar(&config.LogsDir, "logs", "", "Directory to store block execution logs (optional)")
	flag.StringVar(&config.LogsDir, "l", "", "Directory to store block execution logs (shorthand)")

	flag.StringVar(&config.RunsDir, "runs", "", "Directory to store run results (optional)")
	flag.StringVar(&config.RunsDir, "r", "", "Directory to store run results (shorthand)")

	flag.StringVar(&config.PostgresDSN, "postgres", "", "Postgres DSN for run persistence, replaces -logs and -runs (optional)")

	flag.StringVar(&config.CodeService, "code-service", "", "Base URL of a remote code execution service (optional)")

	flag.StringVar(&config.Engine, "engine", "expr", "Expression engine for condition and router blocks: expr or risor")

	flag.StringVar(&config.Template, "template", "", "Render the run output through a ${...} template")

	flag.DurationVar(&config.Timeout, "timeout", 0, "Run timeout (e.g., 30s, 5m, 1h)")
	flag.DurationVar(&config.Timeout, "t", 0, "Run timeout (shorthand)")

	flag.BoolVar(&config.Verbose, "verbose", false, "Enable verbose logging")
	flag.BoolVar(&config.Verbose, "v", false, "Enable verbose logging (shorthand)")

	flag.BoolVar(&config.JSON, "json", false, "Output results in JSON format")

	// Custom usage
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Blockflow CLI - Execute block-graph workflows

Usage: %s [options] -file <workflow.yaml>

Examples:
  # Execute a simple workflow
  %s -file example.yaml

  # Execute with run input and block logging
  %s -file workflow.yaml -input name=John -input count=5 -logs ./logs

  # Execute with environment variables and a timeout
  %s -file workflow.yaml -env API_KEY=secret -timeout 30s

Options:
`, os.Args[0], os.Args[0], os.Args[0], os.Args[0])
		flag.PrintDefaults()

		fmt.Fprintf(os.Stderr, `
Built-in Tools:
  echo    - Print a message and pass it through
  file    - Read, write, and manage files
  http    - Make HTTP requests
  json    - Parse, query, and merge JSON
  random  - Generate random numbers, strings, and UUIDs
  time    - Get the current timestamp
  wait    - Wait for a specified duration
  fail    - Intentionally fail with a message

Input Format:
  Use -input key=value for each run input.
  Values are parsed as JSON if possible, otherwise as strings.

`)
	}

	flag.Parse()

	// Parse input flags
	for _, input := range inputFlags {
		key, value, err := splitPair(input)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid input format '%s'. Use key=value\n", input)
			os.Exit(1)
		}
		config.Input[key] = parseJSONValue(value)
	}
	for _, pair := range envFlags {
		key, value, err := splitPair(pair)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid env format '%s'. Use NAME=value\n", pair)
			os.Exit(1)
		}
		config.Environment[key] = value
	}
	for _, pair := range varFlags {
		key, value, err := splitPair(pair)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: invalid var format '%s'. Use name=value\n", pair)
			os.Exit(1)
		}
		config.Variables[key] = parseJSONValue(value)
	}

	return config
}

// Custom flag type for handling multiple input values
type stringSlice []string

func (s *stringSlice) String() string {
	return strings.Join(*s, ", ")
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

func splitPair(pair string) (string, string, error) {
	parts := strings.SplitN(pair, "=", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("expected key=value, got %q", pair)
	}
	return parts[0], parts[1], nil
}

// parseJSONValue tries to parse a flag value as JSON, falling back to the raw
// string.
func parseJSONValue(value string) any {
	var parsed any
	if err := json.Unmarshal([]byte(value), &parsed); err != nil {
		return value
	}
	return parsed
}

func setupLogger(verbose bool) *slog.Logger {
	level := slog.LevelError
	if verbose {
		level = slog.LevelDebug
	}
	return blockflow.NewLogger(os.Stderr, level)
}

// setupStores wires the run logger and run store from the flags: Postgres when
// a DSN is given, files when directories are given, no-ops otherwise.
func setupStores(ctx context.Context, config *Config) (blockflow.RunLogger, blockflow.RunStore, func()) {
	var runLogger blockflow.RunLogger = blockflow.NewNullRunLogger()
	var runStore blockflow.RunStore = blockflow.NewNullRunStore()
	var closers []func()

	if config.PostgresDSN != "" {
		pgLogger, err := blockflow.NewPostgresRunLogger(ctx, config.PostgresDSN)
		if err != nil {
			log.Fatalf("Failed to connect block logger to postgres: %v", err)
		}
		closers = append(closers, func() { pgLogger.Close() })
		runLogger = pgLogger

		pgStore, err := blockflow.NewPostgresRunStore(ctx, config.PostgresDSN)
		if err != nil {
			log.Fatalf("Failed to connect run store to postgres: %v", err)
		}
		closers = append(closers, func() { pgStore.Close() })
		runStore = pgStore
		color.Blue("Run persistence: postgres")
	} else {
		if config.LogsDir != "" {
			runLogger = blockflow.NewFileRunLogger(config.LogsDir)
			color.Blue("Block logs: %s", config.LogsDir)
		}
		if config.RunsDir != "" {
			store, err := blockflow.NewFileRunStore(config.RunsDir)
			if err != nil {
				log.Fatalf("Failed to create run store: %v", err)
			}
			runStore = store
			color.Blue("Run results: %s", config.RunsDir)
		}
	}

	return runLogger, runStore, func() {
		for _, closer := range closers {
			closer()
		}
	}
}

// setupWorkflowRegistry loads every definition in the workflows directory so
// workflow blocks can call them as child runs.
func setupWorkflowRegistry(config *Config, root *blockflow.Workflow) (blockflow.WorkflowRegistry, error) {
	registry := blockflow.NewMemoryWorkflowRegistry()
	if err := registry.Register(root); err != nil {
		return nil, err
	}
	if config.WorkflowsDir == "" {
		return registry, nil
	}

	entries, err := os.ReadDir(config.WorkflowsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflows directory: %w", err)
	}
	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}
		wf, err := blockflow.LoadFile(filepath.Join(config.WorkflowsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", entry.Name(), err)
		}
		if err := registry.Register(wf); err != nil {
			return nil, err
		}
		count++
	}
	if count > 0 {
		color.Magenta("Registered %d workflows from %s", count, config.WorkflowsDir)
	}
	return registry, nil
}

func showRunResult(result *blockflow.RunResult, err error, duration time.Duration, config *Config) {
	if result == nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}

	if config.JSON {
		data, marshalErr := json.MarshalIndent(result, "", "  ")
		if marshalErr != nil {
			log.Fatalf("Failed to format result: %v", marshalErr)
		}
		fmt.Println(string(data))
		if result.Status != blockflow.RunStatusCompleted {
			os.Exit(1)
		}
		return
	}

	fmt.Printf("\n")
	color.White("Run completed in %v", duration)
	color.White("Status: %s", result.Status)

	if err != nil {
		color.Red("Error: %v", err)
	} else {
		color.Green("Run successful!")
	}

	if config.Template != "" {
		rendered, renderErr := renderTemplate(config, result)
		if renderErr != nil {
			log.Fatalf("Failed to render template: %v", renderErr)
		}
		fmt.Println(rendered)
	} else if len(result.Output) > 0 {
		fmt.Printf("\n")
		color.Magenta("Output:")
		for key, value := range result.Output {
			if valueBytes, marshalErr := json.Marshal(value); marshalErr == nil {
				fmt.Printf("  %s: %s\n", key, string(valueBytes))
			} else {
				fmt.Printf("  %s: %v\n", key, value)
			}
		}
	}

	if result.Status != blockflow.RunStatusCompleted {
		os.Exit(1)
	}
}

// renderTemplate renders the -template flag against the run result.
func renderTemplate(config *Config, result *blockflow.RunResult) (string, error) {
	var engine script.Compiler
	if config.Engine == "risor" {
		engine = script.NewRisorEngine(script.DefaultRisorGlobals())
	} else {
		engine = script.NewExprEngine()
	}
	template, err := script.NewTemplate(engine, config.Template)
	if err != nil {
		return "", err
	}
	globals := map[string]any{
		"run_id": result.RunID,
		"status": string(result.Status),
		"output": result.Output,
	}
	if result.Error != nil {
		globals["error"] = result.Error.Error()
	}
	return template.Eval(context.Background(), globals)
}
