package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "cramplan",
	Short: "Study plans, practice tests and spaced review cards before an exam",
	Long: `cramplan turns your study materials into a study plan, a practice test
and a review schedule that repeats every card on days 0, 1, 3, 7 and 14.

Examples:
  cramplan plan --name "Biology final" --date 2026-11-20 --file notes.txt
  cramplan quiz --name "Biology final" --date 2026-11-20 --url https://example.com/ch4
  cramplan cards generate --date 2026-11-20 --file flashcards.txt
  cramplan cards review
  cramplan start`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the cramplan version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "cramplan version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", os.Getenv("NO_COLOR") != "", "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(quizCmd)
	rootCmd.AddCommand(cardsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
