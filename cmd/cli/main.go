package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/cli-engineer/agent/internal/domain/conversation"
	"github.com/cli-engineer/agent/internal/domain/service"
	"github.com/cli-engineer/agent/internal/infrastructure/artifact"
	"github.com/cli-engineer/agent/internal/infrastructure/config"
	"github.com/cli-engineer/agent/internal/infrastructure/eventbus"
	"github.com/cli-engineer/agent/internal/infrastructure/llm"
	"github.com/cli-engineer/agent/internal/infrastructure/llmmanager"
	"github.com/cli-engineer/agent/internal/infrastructure/logger"
	renderer "github.com/cli-engineer/agent/internal/interfaces/cli"
	"github.com/cli-engineer/agent/pkg/safego"

	_ "github.com/cli-engineer/agent/internal/infrastructure/llm/anthropic"
	_ "github.com/cli-engineer/agent/internal/infrastructure/llm/gemini"
	_ "github.com/cli-engineer/agent/internal/infrastructure/llm/local"
	_ "github.com/cli-engineer/agent/internal/infrastructure/llm/openai"
)

const (
	cliVersion = "0.1.0"
	cliName    = "cli-engineer"
)

// Exit codes per §6.
const (
	exitSuccess       = 0
	exitLoopFailed    = 1
	exitConfigError   = 2
	exitProviderError = 3
)

var (
	flagVerbose     bool
	flagNoDashboard bool
	flagConfigPath  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           cliName,
		Short:         "An autonomous command-line coding agent",
		Long:          "cli-engineer drives an interpret, plan, execute, review loop against a pluggable LLM provider to carry out a coding task end to end.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "write a debug-level JSON log file alongside console output")
	rootCmd.PersistentFlags().BoolVar(&flagNoDashboard, "no-dashboard", false, "render a plain-text summary instead of the styled panel")
	rootCmd.PersistentFlags().StringVarP(&flagConfigPath, "config", "c", "", "path to the TOML config file (overrides the default search order)")

	rootCmd.AddCommand(
		taskCommand("code", "Generate new code for the given task", true),
		taskCommand("refactor", "Refactor existing code toward the given goal", false),
		taskCommand("review", "Review code and report issues without necessarily changing it", false),
		taskCommand("docs", "Write or update documentation for the given goal", false),
		taskCommand("security", "Audit code for security issues", false),
	)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s v%s\n", cliName, cliVersion)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitConfigError)
	}
}

// taskCommand builds one of the five subcommands. promptRequired mirrors
// §6: `code` requires a prompt argument, the rest accept an optional one
// and fall back to the command's own intent as the goal.
func taskCommand(use, short string, promptRequired bool) *cobra.Command {
	args := cobra.ArbitraryArgs
	if promptRequired {
		args = cobra.MinimumNArgs(1)
	}
	return &cobra.Command{
		Use:   use + " [prompt]",
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, cmdArgs []string) error {
			prompt := strings.Join(cmdArgs, " ")
			if prompt == "" {
				prompt = use
			}
			code, err := run(use, prompt)
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
			}
			os.Exit(code)
			return nil
		},
	}
}

// run loads configuration, wires every component, executes the agentic
// loop to completion, renders the result, and maps its terminal state to
// an exit code. A run that does not end in Done also returns the loop's
// failure summary as the error. Every exit path returns rather than calling os.Exit
// directly, so deferred cleanup (logger sync, bus shutdown, signal stop)
// always runs before the caller acts on the exit code.
func run(command, prompt string) (int, error) {
	cfg, err := config.Load(flagConfigPath)
	if err != nil {
		return exitConfigError, err
	}

	log, logPath, err := buildLogger(cfg)
	if err != nil {
		return exitConfigError, err
	}
	defer log.Sync()
	if logPath != "" {
		log.Info("verbose logging enabled", zap.String("path", logPath))
	}
	if cfg.EnabledProvider == "local" && !cfg.AIProviders["local"].Enabled {
		log.Warn("no ai_providers table is enabled, falling back to the local provider")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	task := service.Interpret(prompt)
	log.Info("task interpreted", zap.String("command", command), zap.String("goal", task.Goal))

	bus := eventbus.NewInMemoryBus(log, 0)
	defer bus.Close()

	providerCfg, err := resolveProviderConfig(cfg)
	if err != nil {
		return exitConfigError, err
	}

	provider, err := llm.CreateProvider(providerCfg, log)
	if err != nil {
		return exitConfigError, err
	}

	manager := llmmanager.New(provider, bus, log, providerCfg.CostPerM)

	convoCfg := conversation.Config{
		MaxTokens:            cfg.Context.MaxTokens,
		CompressionThreshold: cfg.Context.CompressionThreshold,
	}
	summarizer := conversation.NewLLMSummarizer(manager, cfg.Context.MaxTokens/4)
	convo := conversation.NewManager(convoCfg, summarizer, bus)

	artifacts, err := artifact.NewManager(cfg.Execution.ArtifactDir, bus, log)
	if err != nil {
		return exitConfigError, err
	}

	planner := service.NewPlanner(manager, log)
	extractor := artifact.Extractor{Logger: log}
	executor := service.NewExecutor(manager, artifacts, extractor, convo, bus, manager.ContextSize(), log)
	reviewer := service.NewReviewer(manager, log)

	loop := service.NewLoop(planner, executor, reviewer, convo, artifacts, bus, cfg.Execution.CleanupOnExit, log)

	stopProgress := watchProgress(bus, log)
	result := loop.Run(ctx, task, cfg.Execution.MaxIterations)
	stopProgress()

	summary := renderer.Summary{
		Command: command,
		Goal:    task.Goal,
		State:   result.State,
		Message: result.Summary,
		Issues:  result.Issues,
		Metrics: bus.Metrics(),
	}
	printSummary(cfg, summary)

	code := exitCodeFor(result, ctx)
	if code != exitSuccess {
		return code, fmt.Errorf("run failed: %s", result.Summary)
	}
	return code, nil
}

// resolveProviderConfig builds an llm.Config from the enabled provider's
// table, sourcing the API key from its environment variable rather than
// the TOML file.
func resolveProviderConfig(cfg *config.RuntimeConfig) (llm.Config, error) {
	name := cfg.EnabledProvider
	table := cfg.AIProviders[name]
	return llm.Config{
		Type:    name,
		Model:   table.Model,
		APIKey:  cfg.APIKey(name),
		BaseURL: table.BaseURL,
		CostPerM: llm.CostRates{
			Input:  table.CostPer1MInputTokens,
			Output: table.CostPer1MOutputTokens,
		},
	}, nil
}

func buildLogger(cfg *config.RuntimeConfig) (*zap.Logger, string, error) {
	if flagVerbose {
		workDir, err := os.Getwd()
		if err != nil {
			return nil, "", fmt.Errorf("resolve working directory: %w", err)
		}
		return logger.NewVerboseLogger(workDir)
	}
	log, err := logger.NewLogger(logger.Config{Level: "info", Format: "console", OutputPath: "stderr"})
	return log, "", err
}

func printSummary(cfg *config.RuntimeConfig, summary renderer.Summary) {
	if cfg.UI.OutputFormat == "json" {
		out, err := renderer.RenderJSON(summary)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return
		}
		fmt.Println(out)
		return
	}
	attached := term.IsTerminal(int(os.Stdout.Fd()))
	if flagNoDashboard || !attached || !cfg.UI.Colorful {
		fmt.Print(renderer.RenderPlain(summary))
		return
	}
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		width = 80
	}
	fmt.Println(renderer.RenderPanel(summary, width))
}

// watchProgress drains bus in the background, logging each event at debug
// level so verbose runs show live progress without the loop itself ever
// blocking on a subscriber. Returns a func that unsubscribes and waits for
// the drain goroutine to exit.
func watchProgress(bus *eventbus.InMemoryBus, log *zap.Logger) func() {
	events, unsubscribe := bus.Subscribe()
	done := make(chan struct{})

	safego.Go(log, "progress-watcher", func() {
		defer close(done)
		for ev := range events {
			log.Debug("progress", zap.String("kind", string(ev.Kind)), zap.Time("at", ev.At))
		}
	})

	return func() {
		unsubscribe()
		<-done
	}
}

// exitCodeFor maps the loop's terminal state and the cancellation signal to
// the §6 exit codes: 3 only applies when the failure was an unrecoverable
// provider error (no retries left, no fallback); 1 covers every other
// failed-state outcome.
func exitCodeFor(result service.LoopResult, ctx context.Context) int {
	if result.State == service.StateDone {
		return exitSuccess
	}
	if ctx.Err() != nil {
		return exitLoopFailed
	}
	if result.FailureCode.IsProviderError() {
		return exitProviderError
	}
	return exitLoopFailed
}
