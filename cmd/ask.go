package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var askJSON bool

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask one question about the catalog",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		question := strings.Join(args, " ")

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if askJSON {
			result := env.executor.Execute(ctx, question)
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}

		answer, err := env.assistant.Answer(ctx, question, nil)
		if err != nil {
			return eris.Wrap(err, "ask")
		}
		fmt.Println(answer)
		return nil
	},
}

func init() {
	askCmd.Flags().BoolVar(&askJSON, "json", false, "print the raw query result instead of a phrased answer")
	rootCmd.AddCommand(askCmd)
}
