package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"yusrai/internal/blueprint"

	"github.com/spf13/cobra"
)

var flagShowBlueprint bool

// parseCmd runs the response parser on a raw LLM reply read from a file
// or stdin and prints the normalized result. Useful for debugging
// malformed model output without touching the database.
var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Parse a raw LLM reply and print the normalized automation",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var raw []byte
		var err error
		if len(args) == 1 {
			raw, err = os.ReadFile(args[0])
		} else {
			raw, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}

		result := blueprint.ParseResponse(string(raw))
		if result.IsPlainText {
			fmt.Println("plain text reply, nothing to normalize")
			return nil
		}

		out := map[string]interface{}{
			"normalized": result.Normalized,
			"metadata":   result.Metadata,
		}
		if flagShowBlueprint {
			bp := blueprint.ExtractBlueprint(result.Normalized)
			out["blueprint"] = bp
			out["diagrammable"] = blueprint.ValidateForDiagram(bp)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

func init() {
	parseCmd.Flags().BoolVar(&flagShowBlueprint, "blueprint", false, "also derive and print the execution blueprint")
	rootCmd.AddCommand(parseCmd)
}
