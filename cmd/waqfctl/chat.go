package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/waqfqa/internal/http"
)

var (
	chatSession  string
	chatLanguage string
)

func init() {
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(clearCmd)
	chatCmd.Flags().StringVarP(&chatSession, "session", "s", "", "Session ID (empty starts a new session)")
	chatCmd.Flags().StringVarP(&chatLanguage, "language", "l", "english", "Reply language: english or urdu")
}

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send one chat turn",
	Long: `Send a message to a chat session. The session ID is printed to stderr
so later turns can continue the same conversation.

Examples:
  # Start a new session
  waqfctl chat "Assalam o alaikum"

  # Continue a session
  waqfctl chat --session 3f2a... "What did I just ask?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChat,
}

var clearCmd = &cobra.Command{
	Use:   "clear <session>",
	Short: "Clear a chat session",
	Long: `Discard the history of a chat session.

Examples:
  waqfctl clear 3f2a...`,
	Args: cobra.ExactArgs(1),
	RunE: runClear,
}

func runChat(cmd *cobra.Command, args []string) error {
	req := httpserver.ChatRequest{
		SessionID: chatSession,
		Message:   strings.Join(args, " "),
		Language:  chatLanguage,
	}
	var resp httpserver.ChatResponse
	if err := newClient(serverURL).postJSON(cmd.Context(), "/api/v1/chat", req, &resp); err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), resp.Answer)
	fmt.Fprintf(cmd.ErrOrStderr(), "[waqfctl] session: %s\n", resp.SessionID)
	if resp.Degraded {
		fmt.Fprintln(cmd.ErrOrStderr(), "[waqfctl] the provider failed; this turn was not saved")
	}
	return nil
}

func runClear(cmd *cobra.Command, args []string) error {
	if err := newClient(serverURL).delete(cmd.Context(), "/api/v1/sessions/"+url.PathEscape(args[0])); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Session %s cleared\n", args[0])
	return nil
}
