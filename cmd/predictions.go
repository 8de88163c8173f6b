package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/signal-engine/internal/model"
	"github.com/sells-group/signal-engine/internal/store"
)

var predictionsCmd = &cobra.Command{
	Use:   "predictions",
	Short: "Inspect the prediction audit trail",
	Long:  "Commands for listing stored predictions and summarizing pattern accuracy.",
}

// -- predictions list --

var predictionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored predictions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		session, _ := cmd.Flags().GetString("session")
		pattern, _ := cmd.Flags().GetString("pattern")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.PredictionFilter{
			Session:   session,
			PatternID: pattern,
			Status:    model.PredictionStatus(status),
			Limit:     limit,
		}

		preds, err := st.ListPredictions(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "predictions list")
		}

		if len(preds) == 0 {
			fmt.Fprintln(os.Stderr, "No predictions found.")
			return nil
		}

		formatPredictionsList(os.Stdout, preds)
		return nil
	},
}

// -- predictions show --

var predictionsShowCmd = &cobra.Command{
	Use:   "show <prediction-id>",
	Short: "Show full details of a prediction",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		pred, err := st.GetPrediction(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "predictions show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(pred)
	},
}

// -- patterns --

var patternsCmd = &cobra.Command{
	Use:   "patterns",
	Short: "Summarize per-pattern accuracy from stored predictions",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		session, _ := cmd.Flags().GetString("session")
		summaries, err := st.PatternSummaries(ctx, session)
		if err != nil {
			return eris.Wrap(err, "patterns")
		}

		if len(summaries) == 0 {
			fmt.Fprintln(os.Stderr, "No resolved predictions yet.")
			return nil
		}

		formatPatternSummaries(os.Stdout, summaries)
		return nil
	},
}

func init() {
	predictionsListCmd.Flags().String("session", "", "filter by session key")
	predictionsListCmd.Flags().String("pattern", "", "filter by pattern id")
	predictionsListCmd.Flags().String("status", "", "filter by status (pending, hit, miss, expired)")
	predictionsListCmd.Flags().Int("limit", 50, "max number of predictions to display")

	patternsCmd.Flags().String("session", "", "filter by session key")

	predictionsCmd.AddCommand(predictionsListCmd)
	predictionsCmd.AddCommand(predictionsShowCmd)
	rootCmd.AddCommand(predictionsCmd)
	rootCmd.AddCommand(patternsCmd)
}

// formatPredictionsList writes a tabular list of predictions to w.
func formatPredictionsList(out io.Writer, preds []model.Prediction) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSESSION\tPATTERN\tRECOMMENDED\tCONF\tSTATUS\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t-------\t-------\t-----------\t----\t------\t-------")

	for _, p := range preds {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\t%s\n",
			truncateID(p.ID),
			p.SessionKey,
			p.PatternID,
			p.Recommended,
			p.Confidence,
			p.Status,
			p.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// formatPatternSummaries writes the per-pattern accuracy table to w.
func formatPatternSummaries(out io.Writer, summaries []store.PatternSummary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PATTERN\tHITS\tMISSES\tEXPIRED\tPENDING\tACCURACY")
	_, _ = fmt.Fprintln(w, "-------\t----\t------\t-------\t-------\t--------")

	for _, s := range summaries {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%.1f%%\n",
			s.PatternID, s.Hits, s.Misses, s.Expired, s.Pending, 100*s.Accuracy)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
