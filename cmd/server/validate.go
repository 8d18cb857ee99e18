package main

import (
	"fmt"
	"os"

	"whatsapp-flowbot/internal/automation"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate-flow <file>",
	Short: "Check a chatbot flow definition for dangling links and cycles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		graph, err := automation.ParseGraph(string(data))
		if err != nil {
			return err
		}
		problems := graph.Validate()
		for _, p := range problems {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		if len(problems) > 0 {
			return fmt.Errorf("%d problem(s) found", len(problems))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d nodes, flow is valid\n", len(graph))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
