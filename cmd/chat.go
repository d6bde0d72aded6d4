package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"

	"github.com/mbrandao/opchat/internal/output"
)

var chatSessionID string

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Talk to the order assistant",
	Long: `Talk to the production order assistant.

With a message argument, sends a single message and prints the reply.
Without arguments, starts an interactive session. Type 'exit' or
press Ctrl-D to leave.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, err := newOrchestrator()
		if err != nil {
			return err
		}

		sessionID := chatSessionID
		if sessionID == "" {
			sessionID = ulid.Make().String()
		}

		if len(args) > 0 {
			reply, err := orch.HandleMessage(cmd.Context(), sessionID, strings.Join(args, " "))
			if err != nil && reply == nil {
				return err
			}
			fmt.Fprintln(ui.Out, reply.Text)
			return nil
		}

		ui.Info("Chatting as session %s. Type 'exit' to leave.", sessionID)
		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Fprint(ui.Out, output.Cyan("you> "))
			if !scanner.Scan() {
				fmt.Fprintln(ui.Out)
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if line == "exit" || line == "quit" {
				return nil
			}

			reply, err := orch.HandleMessage(cmd.Context(), sessionID, line)
			if err != nil && reply == nil {
				ui.Error("%v", err)
				continue
			}
			if err != nil {
				ui.VerboseLog("session save failed: %v", err)
			}
			fmt.Fprintf(ui.Out, "%s %s\n", output.Green("opchat>"), reply.Text)
		}
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatSessionID, "session", "", "Session identifier (default: a fresh one per invocation)")
	rootCmd.AddCommand(chatCmd)
}
