package cli

import (
	"errors"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tubescribe/tubescribe/internal/history"
)

func newHistoryCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past runs",
	}

	cmd.AddCommand(newHistoryListCmd(app))
	cmd.AddCommand(newHistoryShowCmd(app))
	cmd.AddCommand(newHistoryClearCmd(app))
	return cmd
}

func newHistoryListCmd(app *appState) *cobra.Command {
	var (
		limit     int
		rawStatus string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var status history.Status
			if rawStatus != "" {
				var err error
				status, err = history.ParseStatus(rawStatus)
				if err != nil {
					return err
				}
			}

			store, err := app.openHistory()
			if err != nil {
				return err
			}
			defer func() {
				_ = store.Close()
			}()

			entries, err := store.List(cmd.Context(), limit, status)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded yet.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tWHEN\tSTATUS\tMODEL\tTITLE")
			for _, e := range entries {
				title := e.Title
				if title == "" {
					title = e.URL
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n",
					e.ID,
					e.CreatedAt.Local().Format("2006-01-02 15:04"),
					e.Status,
					e.Model,
					title,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of entries to show")
	cmd.Flags().StringVar(&rawStatus, "status", "", "Only show runs with this status (done or failed)")
	return cmd
}

func newHistoryShowCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one run in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid history id %q", args[0])
			}

			store, err := app.openHistory()
			if err != nil {
				return err
			}
			defer func() {
				_ = store.Close()
			}()

			entry, err := store.Get(cmd.Context(), id)
			if errors.Is(err, history.ErrNotFound) {
				return fmt.Errorf("no history entry with id %d", id)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ID:         %d\n", entry.ID)
			fmt.Fprintf(out, "When:       %s\n", entry.CreatedAt.Local().Format(time.RFC1123))
			fmt.Fprintf(out, "Status:     %s\n", entry.Status)
			fmt.Fprintf(out, "URL:        %s\n", entry.URL)
			if entry.Title != "" {
				fmt.Fprintf(out, "Title:      %s\n", entry.Title)
			}
			if entry.Model != "" {
				fmt.Fprintf(out, "Model:      %s\n", entry.Model)
			}
			if entry.Language != "" {
				fmt.Fprintf(out, "Language:   %s\n", entry.Language)
			}
			if entry.AudioPath != "" {
				fmt.Fprintf(out, "Audio:      %s\n", entry.AudioPath)
			}
			if entry.TranscriptPath != "" {
				fmt.Fprintf(out, "Transcript: %s\n", entry.TranscriptPath)
			}
			if entry.MediaSeconds > 0 {
				fmt.Fprintf(out, "Duration:   %.0fs\n", entry.MediaSeconds)
			}
			fmt.Fprintf(out, "Elapsed:    %dms\n", entry.ElapsedMS)
			if entry.Error != "" {
				fmt.Fprintf(out, "Error:      %s\n", entry.Error)
			}
			return nil
		},
	}
	return cmd
}

func newHistoryClearCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all recorded runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := app.openHistory()
			if err != nil {
				return err
			}
			defer func() {
				_ = store.Close()
			}()

			removed, err := store.Clear(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d entries.\n", removed)
			return nil
		},
	}
	return cmd
}
