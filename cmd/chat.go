package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mobilifiver/feedwise/pkg/anthropic"
)

// maxHistoryTurns caps how many prior exchanges are replayed to the model.
const maxHistoryTurns = 10

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Interactive catalog conversation",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		sessionID := uuid.NewString()
		zap.L().Info("chat session started", zap.String("session_id", sessionID))
		fmt.Println("Catalog assistant ready. Type 'exit' to quit.")

		var history []anthropic.Message
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print("> ")
			if !scanner.Scan() {
				break
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "exit" || line == "quit" {
				break
			}

			answer, err := env.assistant.Answer(ctx, line, history)
			if err != nil {
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
				continue
			}
			fmt.Println(answer)
			fmt.Println()

			history = append(history,
				anthropic.Message{Role: "user", Content: line},
				anthropic.Message{Role: "assistant", Content: answer},
			)
			if len(history) > maxHistoryTurns*2 {
				history = history[len(history)-maxHistoryTurns*2:]
			}
		}

		zap.L().Info("chat session ended", zap.String("session_id", sessionID))
		return scanner.Err()
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
