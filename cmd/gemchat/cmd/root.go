package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ekomarov/gemchat/internal/chat"
	"github.com/ekomarov/gemchat/internal/config"
	"github.com/ekomarov/gemchat/internal/controller"
	"github.com/ekomarov/gemchat/internal/llm"
	"github.com/ekomarov/gemchat/internal/llm/provider"
	"github.com/ekomarov/gemchat/internal/markdown"
	"github.com/ekomarov/gemchat/internal/session"
	"github.com/ekomarov/gemchat/internal/storage"
)

var (
	flagModel   string
	flagSearch  bool
	flagDataDir string
	flagDebug   bool

	logFile *os.File
)

// setupLogging sends log output to a file unless debug mode keeps it on
// stderr
func setupLogging(logsDir string, debug bool) error {
	if debug {
		log.SetLevel(log.DebugLevel)
		return nil
	}
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	var err error
	logFile, err = os.OpenFile(filepath.Join(logsDir, "gemchat.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}
	log.SetOutput(logFile)
	return nil
}

func cleanupLogging() {
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}

var rootCmd = &cobra.Command{
	Use:   "gemchat [сообщение]",
	Short: "Чат с моделями Gemini в терминале",
	Long: `gemchat ведёт диалог с моделями Gemini: потоковые ответы, вложения,
поиск Google для актуальной информации, история чатов на диске.

Использование:
  gemchat                      # интерактивный чат
  gemchat "ваш вопрос"         # разовый вопрос
  echo "вопрос" | gemchat      # вопрос из конвейера`,
	DisableAutoGenTag: true,
	SilenceUsage:      true,
	Args:              cobra.ArbitraryArgs,
}

func init() {
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return run(args)
	}
	rootCmd.Flags().StringVarP(&flagModel, "model", "m", "", "модель для этого запуска")
	rootCmd.Flags().BoolVar(&flagSearch, "search", false, "включить поиск Google")
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "каталог данных (по умолчанию ~/.gemchat)")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "отладочный вывод в stderr")
}

// Execute runs the root command
func Execute() {
	defer cleanupLogging()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	ctx, stop := signal.NotifyContext(rootCmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	paths := storage.NewPathManager()
	if flagDataDir != "" {
		paths = storage.NewPathManagerAt(flagDataDir)
	}
	dataDir, err := paths.GetGemchatDir()
	if err != nil {
		return err
	}
	logsDir, err := paths.GetLogsDir()
	if err != nil {
		return err
	}
	if err := setupLogging(logsDir, flagDebug); err != nil {
		return err
	}

	cfg, err := config.Load(dataDir)
	if err != nil {
		return err
	}

	dbPath, err := paths.GetBlobDatabasePath()
	if err != nil {
		return err
	}
	blobs, err := storage.NewBlobStore(dbPath, cfg.QuotaBytes)
	if err != nil {
		return err
	}
	defer blobs.Close()

	store := session.NewStore(blobs, log.Default())
	store.Load(ctx)
	defer store.Close()

	streamer, err := provider.NewGemini(ctx, provider.Options{
		APIKey:          cfg.APIKey,
		SystemPrompt:    cfg.SystemPrompt,
		Temperature:     float32(cfg.Temperature),
		MaxOutputTokens: cfg.MaxOutputTokens,
	})
	if err != nil {
		return err
	}

	orch := llm.NewOrchestrator(streamer,
		llm.WithRetryConfig(llm.RetryConfig{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  cfg.BaseDelay,
			MaxDelay:   cfg.MaxDelay,
		}),
		llm.WithFallbackModel(cfg.FallbackModel),
		llm.WithLogger(log.Default()),
	)

	ctrl := controller.New(store, orch, resolveModel(store, cfg), log.Default())
	ctrl.SetSearchEnabled(flagSearch)

	renderer, err := markdown.NewRenderer(markdown.ChatConfig())
	if err != nil {
		return err
	}

	ui := chat.New(ctrl, store, renderer, os.Stdin, os.Stdout)

	if len(args) > 0 {
		return ui.SendOnce(ctx, strings.Join(args, " "))
	}
	if hasStdinInput() {
		return runPiped(ctx, ui)
	}
	return ui.Run(ctx)
}

// resolveModel prefers the --model flag, then the persisted choice, then the
// configured default
func resolveModel(store *session.Store, cfg *config.Config) string {
	if flagModel != "" {
		return flagModel
	}
	if persisted := store.Model(); persisted != "" {
		return persisted
	}
	return cfg.Model
}

func hasStdinInput() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// runPiped reads the whole of stdin as one prompt
func runPiped(ctx context.Context, ui *chat.Chat) error {
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading stdin: %w", err)
	}
	prompt := strings.TrimSpace(strings.Join(lines, "\n"))
	if prompt == "" {
		return fmt.Errorf("no input received from stdin")
	}
	return ui.SendOnce(ctx, prompt)
}
