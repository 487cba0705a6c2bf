package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ppiankov/triage/internal/pipeline"
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the triage assistant in the terminal",
	Long: `Chat starts an interactive session on stdin/stdout.

Commands:
  /reset   start over
  /quit    exit`,
	Args: cobra.NoArgs,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

func runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, logger, knowledge, _, err := setup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	p, err := pipeline.NewPipeline(cfg, knowledge, logger)
	if err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	return chatLoop(ctx, p, cmd.InOrStdin(), cmd.OutOrStdout())
}

type turnHandler interface {
	Handle(ctx context.Context, sessionID string, req pipeline.Request) (pipeline.Response, error)
}

// chatLoop reads one message per line until EOF or /quit
func chatLoop(ctx context.Context, h turnHandler, in io.Reader, out io.Writer) error {
	sessionID := uuid.NewString()
	scanner := bufio.NewScanner(in)

	fmt.Fprintln(out, "Descrivi i tuoi sintomi. /reset per ricominciare, /quit per uscire.")
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		req := pipeline.Request{Message: line}
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/reset":
			req = pipeline.Request{Reset: true}
		}

		resp, err := h.Handle(ctx, sessionID, req)
		if err != nil {
			if errors.Is(err, pipeline.ErrEmptyMessage) {
				continue
			}
			return err
		}
		fmt.Fprintf(out, "\n%s\n\n", resp.Response)
	}
}
