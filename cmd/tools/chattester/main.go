package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/rapport/backend/internal/app"
	"github.com/zhouzirui/rapport/backend/internal/config"
	"github.com/zhouzirui/rapport/backend/internal/logging"
	"github.com/zhouzirui/rapport/backend/internal/service/assistant"
)

type options struct {
	userID    string
	sessionID string
	asJSON    bool
	useAI     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "chattester",
		Short: "Exercise the conversation engine from the terminal",
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if err := godotenv.Load(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "[WARN] 无法加载 .env，改用系统环境变量: %v\n", err)
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.userID, "user", "cli", "user id")
	root.PersistentFlags().StringVar(&opts.sessionID, "session", "cli", "session id")
	root.PersistentFlags().BoolVar(&opts.asJSON, "json", false, "print full results as JSON")
	root.PersistentFlags().BoolVar(&opts.useAI, "ai", false, "allow the configured LLM to answer")

	root.AddCommand(newSendCmd(opts), newReplCmd(opts), newProfileCmd(opts))
	return root
}

func newSendCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "send [message...]",
		Short: "Process the given messages in order and print each result",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, closeFn, err := buildEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeFn()

			for _, msg := range args {
				res := engine.Process(cmd.Context(), msg, opts.userID, opts.sessionID)
				if err := printResult(cmd.OutOrStdout(), res, opts.asJSON); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func newReplCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "Chat interactively; an empty line or EOF exits",
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, closeFn, err := buildEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeFn()
			return repl(cmd.Context(), engine, cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}
}

func newProfileCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Print the stored profile for --user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			engine, closeFn, err := buildEngine(cmd.Context(), opts)
			if err != nil {
				return err
			}
			defer closeFn()

			p, err := engine.Store().ExportProfile(cmd.Context(), opts.userID)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(p)
		},
	}
}

func buildEngine(ctx context.Context, opts *options) (*assistant.Engine, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("配置加载失败: %w", err)
	}
	logger, err := logging.New(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, nil, err
	}
	logger.SetOutput(os.Stderr)

	var newModel app.ChatModelFactory
	if opts.useAI {
		newModel = app.ArkChatModel
	}
	a, err := app.Build(ctx, cfg, logger, nil, newModel)
	if err != nil {
		return nil, nil, err
	}
	return a.Engine, func() {
		if err := a.Close(); err != nil {
			logger.WithError(err).Warn("close store")
		}
	}, nil
}

func repl(ctx context.Context, engine *assistant.Engine, in io.Reader, out io.Writer, opts *options) error {
	sc := bufio.NewScanner(in)
	fmt.Fprint(out, "> ")
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			return nil
		}
		if err := printResult(out, engine.Process(ctx, line, opts.userID, opts.sessionID), opts.asJSON); err != nil {
			return err
		}
		fmt.Fprint(out, "> ")
	}
	return sc.Err()
}

func printResult(out io.Writer, res assistant.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	if res.Status == assistant.StatusError {
		_, err := fmt.Fprintf(out, "[%s error] %s\n%s\n", res.ErrorKind, res.Error, res.Content)
		return err
	}
	_, err := fmt.Fprintf(out, "[%s %.2f | %s %.2f | turn %d]\n%s\n",
		res.Intent, res.Confidence, res.Emotion.Primary, res.Emotion.Confidence, res.Context.TurnCount, res.Content)
	return err
}
