package cli

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dmitrijs2005/gophenroll/internal/batch"
	"github.com/dmitrijs2005/gophenroll/internal/control"
	"github.com/dmitrijs2005/gophenroll/internal/models"
	"github.com/fatih/color"
)

func colorStatus(s string) string {
	switch s {
	case string(models.StatusSubscribed), models.ReportSubscribedEnhanced, string(batch.StateCompleted):
		return color.New(color.FgGreen).Sprint(s)
	case string(models.StatusError), string(models.StatusIneligible):
		return color.New(color.FgRed).Sprint(s)
	case string(models.StatusLinkReady), string(models.StatusVerified), string(batch.StateStopping), string(batch.StateStopped):
		return color.New(color.FgYellow).Sprint(s)
	case string(batch.StateRunning):
		return color.New(color.FgCyan).Sprint(s)
	default:
		return s
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func printSnapshot(w io.Writer, s batch.Snapshot, logs int) {
	fmt.Fprintf(w, "Task:        %s [%s]\n", s.TaskID, colorStatus(string(s.State)))
	fmt.Fprintf(w, "Progress:    %d/%d processed, %d pending (concurrency %d)\n", s.Processed, s.Total, s.Pending, s.Concurrency)
	fmt.Fprintf(w, "Started:     %s\n", formatTime(s.StartedAt))
	if !s.FinishedAt.IsZero() {
		fmt.Fprintf(w, "Finished:    %s\n", formatTime(s.FinishedAt))
	}
	if s.Err != "" {
		fmt.Fprintf(w, "Error:       %s\n", color.New(color.FgRed).Sprint(s.Err))
	}

	if len(s.Stats) > 0 {
		keys := make([]string, 0, len(s.Stats))
		for k := range s.Stats {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w, "Stats:")
		for _, k := range keys {
			fmt.Fprintf(w, "  %-20s %d\n", colorStatus(k), s.Stats[k])
		}
	}

	if len(s.Results) > 0 {
		fmt.Fprintln(w, "Recent results:")
		for _, r := range s.Results {
			fmt.Fprintf(w, "  %s  %-30s %s  %s\n", formatTime(r.Time), r.AccountID, colorStatus(r.Status), r.Message)
		}
	}

	if logs > 0 && len(s.Logs) > 0 {
		start := max(0, len(s.Logs)-logs)
		fmt.Fprintln(w, "Log:")
		for _, l := range s.Logs[start:] {
			if l.AccountID != "" {
				fmt.Fprintf(w, "  %s  [%s] %s\n", formatTime(l.Time), l.AccountID, l.Message)
			} else {
				fmt.Fprintf(w, "  %s  %s\n", formatTime(l.Time), l.Message)
			}
		}
	}
}

func printQuota(w io.Writer, q control.QuotaReport) {
	source := color.New(color.FgGreen).Sprint("live")
	if !q.Live {
		source = color.New(color.FgYellow).Sprint("stored")
	}
	fmt.Fprintf(w, "Quota (%s)\n", source)
	fmt.Fprintf(w, "  remaining:  %d\n", q.RemainingQuota)
	fmt.Fprintf(w, "  used:       %d\n", q.Used)
	fmt.Fprintf(w, "  capacity:   %d\n", q.Capacity)
	fmt.Fprintf(w, "  last batch: %d submitted, cost %d\n", q.Total, q.Cost)
	if !q.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "  updated:    %s\n", formatTime(q.UpdatedAt))
	}
	if q.Error != "" {
		fmt.Fprintf(w, "  %s %s\n", color.New(color.FgRed).Sprint("live query failed:"), q.Error)
	}
}
