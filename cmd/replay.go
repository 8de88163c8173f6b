package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/signal-engine/internal/detector"
	"github.com/sells-group/signal-engine/internal/engine"
	"github.com/sells-group/signal-engine/internal/ingest"
	"github.com/sells-group/signal-engine/internal/model"
)

var (
	replayFile    string
	replaySession string
	replayStore   bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay historical outcomes through a fresh session",
	Long:  "Feeds a CSV or JSON-lines outcome file through the engine at full speed and reports how each pattern would have performed.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("replay"); err != nil {
			return err
		}
		if replayFile == "" {
			return eris.New("replay: --file is required")
		}

		records, err := ingest.LoadRecords(replayFile)
		if err != nil {
			return err
		}
		zap.L().Info("loaded replay file",
			zap.String("file", replayFile),
			zap.Int("records", len(records)),
		)

		var hooks engine.Hooks
		if replayStore {
			st, err := initStore(ctx)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck
			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "migrate store")
			}
			hooks = recorderFor(st)
		}

		registry, err := buildRegistry()
		if err != nil {
			return err
		}

		// Replays run at full speed: drive the session clock from the
		// record timestamps so cooldowns and expiry behave as they would
		// have live.
		clock := replayClock{now: records[0].Timestamp}
		opts := []engine.Option{engine.WithClock(clock.read)}
		if hooks != nil {
			opts = append(opts, engine.WithHooks(hooks))
		}
		session, err := engine.NewSession(replaySession, cfg.Engine.EngineSettings(),
			detector.DoubleSpace(), registry, opts...)
		if err != nil {
			return err
		}

		result, err := runReplay(ctx, session, &clock, records)
		if err != nil {
			return err
		}

		formatReplayResult(os.Stdout, result, session.Performance())
		return nil
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayFile, "file", "", "outcome file (.csv or JSON lines)")
	replayCmd.Flags().StringVar(&replaySession, "session", "replay", "session key")
	replayCmd.Flags().BoolVar(&replayStore, "store", false, "persist replayed predictions to the audit store")
	rootCmd.AddCommand(replayCmd)
}

// replayResult aggregates what the engine emitted over one replay.
type replayResult struct {
	Events   int
	Skipped  int
	Signals  int
	Hits     int
	Misses   int
	Expired  int
	ByHits   map[string]int
	ByTotals map[string]int
}

// replayClock feeds record timestamps to the session as its wall clock.
// Records without a timestamp leave the clock where it was.
type replayClock struct {
	now time.Time
}

func (c *replayClock) read() time.Time { return c.now }

func (c *replayClock) advance(to time.Time) {
	if !to.IsZero() && to.After(c.now) {
		c.now = to
	}
}

// runReplay submits every record in order, advancing the session clock to
// each record's timestamp first.
func runReplay(ctx context.Context, session *engine.Session, clock *replayClock, records []ingest.FeedRecord) (replayResult, error) {
	result := replayResult{
		ByHits:   make(map[string]int),
		ByTotals: make(map[string]int),
	}

	for _, rec := range records {
		cat, err := ingest.ParseCategory(rec.Category)
		if err != nil {
			result.Skipped++
			continue
		}

		clock.advance(rec.Timestamp)
		res, err := session.Submit(ctx, cat, rec.Value, "replay", rec.Timestamp)
		if err != nil {
			if engine.IsValidation(err) {
				result.Skipped++
				continue
			}
			return result, eris.Wrapf(err, "replay: sequence %d", rec.Sequence)
		}

		result.Events++
		if res.NewSignal != nil {
			result.Signals++
		}
		if res.Expired != nil {
			result.Expired++
		}
		if res.Resolved != nil {
			result.ByTotals[res.Resolved.PatternID]++
			switch res.Resolved.Status {
			case model.PredictionHit:
				result.Hits++
				result.ByHits[res.Resolved.PatternID]++
			case model.PredictionMiss:
				result.Misses++
			}
		}
	}

	return result, nil
}

// formatReplayResult writes the replay summary and per-pattern table to w.
func formatReplayResult(out io.Writer, r replayResult, perf map[string]model.PatternPerformance) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Events:\t%d\n", r.Events)
	_, _ = fmt.Fprintf(w, "Skipped:\t%d\n", r.Skipped)
	_, _ = fmt.Fprintf(w, "Signals:\t%d\n", r.Signals)
	_, _ = fmt.Fprintf(w, "Hits:\t%d\n", r.Hits)
	_, _ = fmt.Fprintf(w, "Misses:\t%d\n", r.Misses)
	_, _ = fmt.Fprintf(w, "Expired:\t%d\n", r.Expired)
	if resolved := r.Hits + r.Misses; resolved > 0 {
		_, _ = fmt.Fprintf(w, "Accuracy:\t%.1f%%\n", 100*float64(r.Hits)/float64(resolved))
	}
	_ = w.Flush()

	ids := make([]string, 0, len(perf))
	for id := range perf {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "PATTERN\tCORRECT\tTOTAL\tACCURACY\tTHRESHOLD")
	_, _ = fmt.Fprintln(w, "-------\t-------\t-----\t--------\t---------")
	for _, id := range ids {
		p := perf[id]
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%.1f%%\t%.2f\n",
			p.PatternID, p.Correct, p.Total, 100*p.Accuracy, p.Threshold)
	}
	_ = w.Flush()
}
