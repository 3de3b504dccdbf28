package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Insurance policy RAG chat backend",
	Long: `Serves the chat and admin API over HTTP. Uploaded PDF policies are chunked,
embedded with Gemini and used as context for streamed answers.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
