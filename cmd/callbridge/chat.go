package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/ZanzyTHEbar/callbridge/callbridge/pipeline"
	"github.com/ZanzyTHEbar/callbridge/callbridge/transport/httpapi"
	"github.com/spf13/cobra"
)

var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Run chat turns from the command line",
	Long: `Runs one turn for the given message, or reads one message per line from
stdin when no message is given. All turns share one session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")
		sessionID, _ := cmd.Flags().GetString("session")
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if sessionID == "" {
			sessionID = pipeline.NewSessionID()
		}
		turn := func(msg string) error {
			res, err := a.orch.HandleTurn(cmd.Context(), pipeline.TurnRequest{
				Message:   msg,
				UserID:    userID,
				SessionID: sessionID,
			})
			if err != nil {
				return err
			}
			return printResult(cmd.OutOrStdout(), res, asJSON)
		}

		if len(args) > 0 {
			return turn(strings.Join(args, " "))
		}
		scanner := bufio.NewScanner(cmd.InOrStdin())
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" {
				continue
			}
			if err := turn(line); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "error:", err)
			}
		}
		return scanner.Err()
	},
}

func printResult(w io.Writer, res *pipeline.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(httpapi.NewChatResponse(res))
	}
	fmt.Fprintln(w, res.ReplyText)
	for _, c := range res.ToolCalls {
		line := fmt.Sprintf("  - %s [%s]", c.ToolName, c.Status)
		if c.Error != nil {
			line += " " + c.Error.Error()
		}
		fmt.Fprintln(w, line)
	}
	fmt.Fprintf(w, "  (session %s, state %s, confidence %.2f)\n", res.SessionID, res.State, res.Confidence)
	return nil
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringP("user", "u", "1234", "Customer user id")
	chatCmd.Flags().StringP("session", "s", "", "Session id (generated when empty)")
	chatCmd.Flags().Bool("json", false, "Print the full turn result as JSON")
}
