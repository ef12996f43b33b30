package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"go-advisor/internal/config"
	"go-advisor/internal/db"
	"go-advisor/internal/dialogue"
	"go-advisor/internal/goal"
	"go-advisor/internal/logging"
)

var chatUser string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the advisor in the terminal",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		log := zap.NewNop()
		if debug {
			if log, err = logging.New(true); err != nil {
				return err
			}
		}

		var database *gorm.DB
		if cfg.Postgres.DSN != "" {
			if database, err = db.Init(cfg, log); err != nil {
				return fmt.Errorf("db init: %w", err)
			}
		}
		c, err := buildCore(cmd.Context(), cfg, database, log)
		if err != nil {
			return err
		}
		defer c.Close()
		return runChat(cmd.Context(), c.engine, chatUser, os.Stdin, cmd.OutOrStdout())
	},
}

func init() {
	chatCmd.Flags().StringVarP(&chatUser, "user", "u", "local", "User id the conversation and memories belong to")
}

type turnRunner interface {
	NewConversation() dialogue.ConversationState
	GoalTurn(ctx context.Context, req dialogue.TurnRequest) dialogue.TurnResult
}

// runChat reads one utterance per line until EOF or "exit".
func runChat(ctx context.Context, engine turnRunner, userID string, in io.Reader, out io.Writer) error {
	state := engine.NewConversation()
	scanner := bufio.NewScanner(in)
	fmt.Fprintln(out, "Type your message, or \"exit\" to quit.")
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		res := engine.GoalTurn(ctx, dialogue.TurnRequest{UserID: userID, Utterance: line, State: state})
		state = res.State
		fmt.Fprintln(out, res.Message)
		fmt.Fprintf(out, "[%s | goals %d/%d]\n", res.Tactic, goal.CountComplete(state.Goals), len(state.Goals))
	}
}
