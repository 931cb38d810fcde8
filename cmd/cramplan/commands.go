package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kalambet/cramplan/internal/config"
	"github.com/kalambet/cramplan/internal/planner"
	"github.com/kalambet/cramplan/internal/review"
	"github.com/kalambet/cramplan/internal/schedule"
	"github.com/kalambet/cramplan/internal/storage"
)

// materialsSource resolves a file path or URL into text.
type materialsSource interface {
	Load(ctx context.Context, ref string) (string, error)
}

func addMaterialsFlags(cmd *cobra.Command) {
	cmd.Flags().String("materials", "", "study materials as inline text")
	cmd.Flags().StringSlice("file", nil, "text or PDF file with study materials (repeatable)")
	cmd.Flags().StringSlice("url", nil, "web page with study materials (repeatable)")
}

// collectMaterials joins inline materials with every --file and --url source,
// in that order, separated by blank lines.
func collectMaterials(ctx context.Context, cmd *cobra.Command, src materialsSource) (string, error) {
	inline, _ := cmd.Flags().GetString("materials")
	files, _ := cmd.Flags().GetStringSlice("file")
	urls, _ := cmd.Flags().GetStringSlice("url")

	var parts []string
	if strings.TrimSpace(inline) != "" {
		parts = append(parts, strings.TrimSpace(inline))
	}
	for _, ref := range append(files, urls...) {
		printStep("Loading %s", ref)
		text, err := src.Load(ctx, ref)
		if err != nil {
			return "", fmt.Errorf("loading %s: %w", ref, err)
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n"), nil
}

func readForm(ctx context.Context, cmd *cobra.Command, src materialsSource) (planner.Form, error) {
	name, _ := cmd.Flags().GetString("name")
	date, _ := cmd.Flags().GetString("date")
	materials, err := collectMaterials(ctx, cmd, src)
	if err != nil {
		return planner.Form{}, err
	}
	return planner.Form{TestName: name, TestDate: date, Materials: materials}, nil
}

// loadGenerationApp opens the app and fails early when the endpoint cannot be called.
func loadGenerationApp() (*app, error) {
	a, err := loadApp()
	if err != nil {
		return nil, err
	}
	if err := config.RequireAPIKey(a.cfg); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// --- plan ---

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Generate a day-by-day study plan up to the test date",
	Long: `Generate a day-by-day study plan up to the test date.

Examples:
  cramplan plan --name "Biology final" --date 2026-11-20 --materials "Cell cycle"
  cramplan plan --name "History midterm" --date 2026-11-02 --file notes.pdf --json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := loadGenerationApp()
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := readForm(cmd.Context(), cmd, a.loader)
		if err != nil {
			return err
		}

		printStep("Generating study plan with %s", a.cfg.GenAI.Model)
		plan, err := a.planner.StudyPlan(cmd.Context(), f)
		if err != nil {
			return err
		}

		if asJSON {
			return writeJSONOut(cmd.OutOrStdout(), plan)
		}
		writeStudyPlan(cmd.OutOrStdout(), plan)
		return nil
	},
}

// --- quiz ---

var quizCmd = &cobra.Command{
	Use:   "quiz",
	Short: "Generate a practice test with an answer key",
	Long: `Generate a practice test with an answer key.

The answer key is hidden unless --answers is given; it is always kept in
history (see "cramplan history show").`,
	RunE: func(cmd *cobra.Command, args []string) error {
		showAnswers, _ := cmd.Flags().GetBool("answers")

		a, err := loadGenerationApp()
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := readForm(cmd.Context(), cmd, a.loader)
		if err != nil {
			return err
		}

		printStep("Generating practice test with %s", a.cfg.GenAI.Model)
		test, err := a.planner.PracticeTest(cmd.Context(), f)
		if err != nil {
			return err
		}

		writePracticeTest(cmd.OutOrStdout(), test, showAnswers)
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{planCmd, quizCmd} {
		c.Flags().String("name", "", "test name")
		c.Flags().String("date", "", "test date (YYYY-MM-DD)")
		addMaterialsFlags(c)
	}
	planCmd.Flags().Bool("json", false, "print the plan as JSON")
	quizCmd.Flags().Bool("answers", false, "print the answer key after the questions")
}

func writeStudyPlan(w io.Writer, plan planner.StudyPlan) {
	for _, s := range plan.StudySessions {
		fmt.Fprintf(w, "%s  (%s)\n", colorize(colorBold, s.Date), s.EstimatedDuration)
		for _, topic := range s.Topics {
			fmt.Fprintf(w, "  - %s\n", topic)
		}
		fmt.Fprintln(w)
	}
	if plan.Rationale != "" {
		fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Why:"), plan.Rationale)
	}
}

func writePracticeTest(w io.Writer, test planner.PracticeTest, showAnswers bool) {
	fmt.Fprintln(w, test.Questions)
	if !showAnswers {
		return
	}
	fmt.Fprintf(w, "\n%s\n\n%s\n", planner.AnswerKeySeparator, test.AnswerKey)
}

func writeJSONOut(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- cards ---

var cardsCmd = &cobra.Command{
	Use:   "cards",
	Short: "Manage the spaced review schedule",
}

var cardsGenerateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Build a review schedule from materials, one card per line",
	Long: `Build a review schedule from materials, one card per non-blank line.

Every card is scheduled today and again 1, 3, 7 and 14 days from now, as long
as the review day is not after the test date. Any previous schedule is replaced.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		materials, err := collectMaterials(cmd.Context(), cmd, a.loader)
		if err != nil {
			return err
		}

		st, err := a.session.Generate(date, materials)
		if err != nil {
			return err
		}

		if len(st.Schedule) == 0 {
			printWarning("Test date %s is in the past, nothing was scheduled", st.TestDate)
			return nil
		}
		printSuccess("Scheduled %d cards on %d dates until %s", len(st.Items), len(st.Schedule), st.TestDate)
		return nil
	},
}

var cardsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the review schedule",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.session.Load()
		if err != nil {
			return err
		}
		return writeSchedule(cmd.OutOrStdout(), st, format)
	},
}

var cardsToggleCmd = &cobra.Command{
	Use:   "toggle <date> <card-id>",
	Short: "Flip the done mark of one card on one date",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		date, id := args[0], args[1]

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.session.Toggle(date, id)
		if err != nil {
			return err
		}

		if itemDone(st, date, id) {
			printSuccess("%s on %s is done", id, date)
		} else {
			printSuccess("%s on %s is not done", id, date)
		}
		return nil
	},
}

var cardsReviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Open the interactive review checklist",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.session.Load()
		if err != nil {
			return err
		}

		today := time.Now().Format(schedule.DateLayout)
		final, err := review.Run(st, today, a.session.Toggle)
		if err != nil {
			return err
		}
		printStatus("Progress", "%s", progressLabel(final.Progress()))
		return nil
	},
}

var cardsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the review schedule and all done marks",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This will delete the schedule and every done mark. Use --confirm to proceed.")
			return nil
		}

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.session.Clear(); err != nil {
			return err
		}
		printSuccess("Schedule cleared")
		return nil
	},
}

func init() {
	cardsGenerateCmd.Flags().String("date", "", "test date (YYYY-MM-DD)")
	addMaterialsFlags(cardsGenerateCmd)
	cardsShowCmd.Flags().String("format", "text", "output format: text, json or yaml")
	cardsClearCmd.Flags().Bool("confirm", false, "confirm deleting the schedule")

	cardsCmd.AddCommand(cardsGenerateCmd)
	cardsCmd.AddCommand(cardsShowCmd)
	cardsCmd.AddCommand(cardsToggleCmd)
	cardsCmd.AddCommand(cardsReviewCmd)
	cardsCmd.AddCommand(cardsClearCmd)
}

func writeSchedule(w io.Writer, st schedule.State, format string) error {
	switch format {
	case "json":
		return writeJSONOut(w, st)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(st); err != nil {
			return err
		}
		return enc.Close()
	case "text", "":
	default:
		return fmt.Errorf("unknown format %q (want text, json or yaml)", format)
	}

	if st.IsZero() {
		fmt.Fprintln(w, "Nothing scheduled. Run `cramplan cards generate` first.")
		return nil
	}

	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Test date:"), st.TestDate)
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Progress:"), progressLabel(st.Progress()))
	for _, date := range st.Dates() {
		fmt.Fprintf(w, "\n%s\n", colorize(colorCyan, date))
		for _, it := range st.Schedule[date] {
			fmt.Fprintf(w, "  %s %-8s %s\n", checkbox(it.Done), it.ID, it.Prompt)
		}
	}
	return nil
}

func itemDone(st schedule.State, date, id string) bool {
	for _, it := range st.Schedule[date] {
		if it.ID == id {
			return it.Done
		}
	}
	return false
}

// --- history ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Browse stored study plans and practice tests",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored generations, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		kindFlag, _ := cmd.Flags().GetString("kind")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		kind, err := parseKind(kindFlag)
		if err != nil {
			return err
		}

		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		gens, err := a.store.ListGenerations(kind, limit, offset)
		if err != nil {
			return err
		}
		if len(gens) == 0 {
			printWarning("No generations stored yet")
			return nil
		}
		writeGenerations(cmd.OutOrStdout(), gens)
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one stored generation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		g, err := a.store.GetGeneration(args[0])
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("generation %s not found", args[0])
		}
		if err != nil {
			return err
		}

		w := cmd.OutOrStdout()
		printStatus("Kind", "%s", g.Kind)
		printStatus("Test", "%s (%s)", g.TestName, g.TestDate)
		printStatus("Model", "%s", g.Model)
		printStatus("Created", "%s", g.CreatedAt.Local().Format(time.DateTime))
		fmt.Fprintln(w, g.Output)
		return nil
	},
}

var historyDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete one stored generation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := loadApp()
		if err != nil {
			return err
		}
		defer a.Close()

		err = a.store.DeleteGeneration(args[0])
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("generation %s not found", args[0])
		}
		if err != nil {
			return err
		}
		printSuccess("Deleted %s", args[0])
		return nil
	},
}

func init() {
	historyListCmd.Flags().String("kind", "", "filter by kind: plan or quiz")
	historyListCmd.Flags().Int("limit", 20, "maximum number of generations to list")
	historyListCmd.Flags().Int("offset", 0, "number of generations to skip")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyDeleteCmd)
}

// parseKind maps the CLI kind names onto stored generation kinds.
func parseKind(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "plan", storage.KindStudyPlan:
		return storage.KindStudyPlan, nil
	case "quiz", "test", storage.KindPracticeTest:
		return storage.KindPracticeTest, nil
	default:
		return "", fmt.Errorf("unknown kind %q (want plan or quiz)", s)
	}
}

func writeGenerations(w io.Writer, gens []storage.Generation) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tKIND\tTEST\tTEST DATE\tCREATED")
	for _, g := range gens {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			g.ID, g.Kind, g.TestName, g.TestDate, g.CreatedAt.Local().Format(time.DateTime))
	}
	tw.Flush()
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configSetKeyCmd = &cobra.Command{
	Use:   "set-key <api-key>",
	Short: "Store the Gemini API key in the platform secret store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.SetAPIKey(args[0]); err != nil {
			return err
		}
		printSuccess("API key stored")
		if os.Getenv("CRAMPLAN_GEMINI_API_KEY") != "" {
			printWarning("CRAMPLAN_GEMINI_API_KEY is set and takes precedence over the stored key")
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configSetKeyCmd)
}
