package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	httpserver "github.com/fyrsmithlabs/waqfqa/internal/http"
	"github.com/fyrsmithlabs/waqfqa/internal/rag"
)

var (
	askLanguage   string
	askBilingual  bool
	askOutputJSON bool
)

func init() {
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().StringVarP(&askLanguage, "language", "l", "english", "Corpus language: english or urdu")
	askCmd.Flags().BoolVar(&askBilingual, "bilingual", false, "Ask both corpora and print both answers")
	askCmd.Flags().BoolVar(&askOutputJSON, "json", false, "Output the raw response as JSON")
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question against the reference documents",
	Long: `Ask a question and get an answer grounded in the reference document of
the chosen language, with the pages it was drawn from.

Examples:
  # Ask the English corpus
  waqfctl ask "Who may act as a mutawalli?"

  # Ask the Urdu corpus
  waqfctl ask --language urdu "وقف کیا ہے؟"

  # Ask both corpora
  waqfctl ask --bilingual "What is a waqf?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	c := newClient(serverURL)
	req := httpserver.AskRequest{Query: strings.Join(args, " "), Language: askLanguage}
	out := cmd.OutOrStdout()

	if askBilingual {
		var resp rag.Bilingual
		if err := c.postJSON(cmd.Context(), "/api/v1/ask/bilingual", req, &resp); err != nil {
			return err
		}
		if askOutputJSON {
			return writeJSON(out, resp)
		}
		printResponse(out, resp.English)
		fmt.Fprintln(out)
		printResponse(out, resp.Urdu)
		return nil
	}

	var resp rag.Response
	if err := c.postJSON(cmd.Context(), "/api/v1/ask", req, &resp); err != nil {
		return err
	}
	if askOutputJSON {
		return writeJSON(out, resp)
	}
	printResponse(out, resp)
	return nil
}

func printResponse(w io.Writer, r rag.Response) {
	fmt.Fprintf(w, "[%s]\n%s\n", r.Language, r.Answer)
	if len(r.Metadata.Sources) > 0 {
		fmt.Fprintf(w, "\nSources: %s\n", strings.Join(r.Metadata.Sources, "; "))
		fmt.Fprintf(w, "Confidence: %.2f\n", r.Metadata.Confidence)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
