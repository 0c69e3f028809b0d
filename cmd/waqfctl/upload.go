package main

import (
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/waqfqa/internal/http"
	"github.com/fyrsmithlabs/waqfqa/internal/upload"
)

var (
	uploadSession  string
	uploadLanguage string
)

func init() {
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().StringVarP(&uploadSession, "session", "s", "", "Attach the document to this chat session")
	uploadCmd.Flags().StringVarP(&uploadLanguage, "language", "l", "english", "Reply language when attaching to a session")
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file.pdf>",
	Short: "Upload a PDF and print its extracted text",
	Long: `Upload a PDF of at most 10MB. Without --session the extracted text is
printed. With --session the document becomes the context of that chat session.

Examples:
  # Extract a document
  waqfctl upload deed.pdf

  # Discuss it in a session
  waqfctl upload --session 3f2a... deed.pdf`,
	Args: cobra.ExactArgs(1),
	RunE: runUpload,
}

func runUpload(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", args[0], err)
	}
	c := newClient(serverURL)
	out := cmd.OutOrStdout()

	if uploadSession == "" {
		var doc upload.ProcessedDocument
		if err := c.postFile(cmd.Context(), "/api/v1/upload", args[0], data, nil, &doc); err != nil {
			return err
		}
		fmt.Fprint(out, doc.Content)
		fmt.Fprintf(cmd.ErrOrStderr(), "\n[waqfctl] %s: %d page(s), %d chunk(s)\n", doc.Filename, doc.Pages, doc.Chunks)
		if doc.Truncated {
			fmt.Fprintln(cmd.ErrOrStderr(), "[waqfctl] content was truncated")
		}
		return nil
	}

	var resp httpserver.SessionDocumentResponse
	path := "/api/v1/sessions/" + url.PathEscape(uploadSession) + "/document"
	fields := map[string]string{"language": uploadLanguage}
	if err := c.postFile(cmd.Context(), path, args[0], data, fields, &resp); err != nil {
		return err
	}
	fmt.Fprintln(out, resp.Message)
	fmt.Fprintln(out, resp.Answer)
	return nil
}
