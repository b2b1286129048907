package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/themobileprof/lambdachat/internal/chat"
	"github.com/themobileprof/lambdachat/internal/config"
	"github.com/themobileprof/lambdachat/internal/session"
	"github.com/themobileprof/lambdachat/pkg/lambda"
)

var (
	cfgFile string
	stream  bool
	timeout time.Duration
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:          "chatcli",
	Short:        "Chat with the Lambda endpoint from the terminal",
	Long:         "chatcli starts a conversation with the configured chat-completion endpoint.\nType /reset to start over, /history to show the conversation and /quit to leave.",
	SilenceUsage: true,
	RunE:         runChat,
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "secrets file path (default: secrets.yaml when present)")
	rootCmd.Flags().BoolVar(&stream, "stream", false, "print replies as they arrive (default: STREAM_RESPONSES)")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 0, "per-attempt request timeout (default: REQUEST_TIMEOUT)")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show diagnostic logs")
}

func runChat(cmd *cobra.Command, args []string) error {
	if !verbose {
		log.SetOutput(io.Discard)
	}
	if cfgFile != "" {
		if err := os.Setenv("CONFIG_FILE", cfgFile); err != nil {
			return fmt.Errorf("setting CONFIG_FILE: %w", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cmd.Flags().Changed("stream") {
		stream = cfg.StreamResponses
	}
	if timeout <= 0 {
		timeout = cfg.RequestTimeout
	}

	store := session.NewMemoryStore(0)
	defer store.Close()

	engine := chat.NewEngine(store, lambda.NewHTTPClient(cfg.LambdaConfig()), chat.Options{
		Greeting:      cfg.InitialMessage,
		Timeout:       timeout,
		MaxInputChars: cfg.MaxInputChars,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runREPL(ctx, engine, cmd.InOrStdin(), cmd.OutOrStdout(), stream)
}
