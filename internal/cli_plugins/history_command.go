package cliplugins

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"lanchat/internal/history"
)

var ErrHistoryDisabled = errors.New("history is disabled: set storage.history_path")

const defaultHistoryLimit = 20

type HistoryCommand struct {
	cmd *cobra.Command
	rt  *Runtime
}

func NewHistoryCommand(rt *Runtime) *HistoryCommand {
	return &HistoryCommand{rt: rt}
}

func (c *HistoryCommand) Meta() *cobra.Command {
	if c.cmd != nil {
		return c.cmd
	}
	c.cmd = &cobra.Command{
		Use:   "history",
		Short: "Print the latest sent and received messages",
		Args:  cobra.NoArgs,
	}
	c.cmd.Flags().IntP("limit", "n", defaultHistoryLimit, "number of entries, 0 for all")
	return c.cmd
}

func (c *HistoryCommand) Execute(cmd *cobra.Command, args []string) error {
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	cfg, _, err := c.rt.Load()
	if err != nil {
		return err
	}
	if cfg.Storage.HistoryPath == "" {
		return ErrHistoryDisabled
	}

	store, err := history.Open(history.Config{Path: cfg.Storage.HistoryPath})
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, e := range entries {
		fmt.Fprintln(out, formatEntry(e))
	}
	return nil
}

func formatEntry(e history.Entry) string {
	arrow := "<-"
	if e.Direction == history.Outbound {
		arrow = "->"
	}

	ts := e.Time.Local().Format("2006-01-02 15:04:05")
	if e.Kind == history.KindFile {
		return fmt.Sprintf("%s %s [%s] file %s (%d bytes)", ts, arrow, e.Username, e.FileName, e.FileSize)
	}
	return fmt.Sprintf("%s %s [%s]: %s", ts, arrow, e.Username, e.Body)
}
