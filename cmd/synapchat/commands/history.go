package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/harunnryd/synapchat/pkg/journal"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded sessions, newest first",
	Long: `List recorded sessions from the on-disk journal, newest first.

Example:
  synapchat history --limit 5 -o json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Journal.InMemory || !cfg.Journal.Enabled {
			return fmt.Errorf("journal is not persisted; set journal.enabled and journal.dir")
		}
		limit, _ := cmd.Flags().GetInt("limit")
		format, _ := cmd.Flags().GetString("output")

		store, err := journal.Open(journal.Options{Dir: cfg.Journal.Dir})
		if err != nil {
			return err
		}
		defer store.Close()

		records, err := store.List(cmd.Context(), limit)
		if err != nil {
			return err
		}
		return writeHistory(cmd.OutOrStdout(), records, format)
	},
}

func init() {
	historyCmd.Flags().Int("limit", 20, "maximum sessions to list (0 for all)")
	historyCmd.Flags().StringP("output", "o", "yaml", "output format: yaml or json")
}

type historyEntry struct {
	SessionID    string   `json:"session_id" yaml:"session_id"`
	AgentID      string   `json:"agent_id,omitempty" yaml:"agent_id,omitempty"`
	StartedAt    string   `json:"started_at" yaml:"started_at"`
	Outcome      string   `json:"outcome" yaml:"outcome"`
	ConnectedFor string   `json:"connected_for,omitempty" yaml:"connected_for,omitempty"`
	Messages     int      `json:"messages" yaml:"messages"`
	Errors       []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

func writeHistory(w io.Writer, records []journal.Record, format string) error {
	entries := make([]historyEntry, 0, len(records))
	for _, rec := range records {
		entry := historyEntry{
			SessionID: rec.SessionID,
			AgentID:   rec.AgentID,
			StartedAt: rec.StartedAt.Format(time.RFC3339),
			Outcome:   string(rec.Outcome),
			Messages:  rec.Messages,
			Errors:    rec.Errors,
		}
		if d := rec.Duration(); d > 0 {
			entry.ConnectedFor = d.Round(time.Second).String()
		}
		entries = append(entries, entry)
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	case "yaml", "":
		data, err := yaml.Marshal(entries)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}
