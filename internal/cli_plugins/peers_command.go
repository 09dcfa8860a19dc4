package cliplugins

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"lanchat/internal/app"
	"lanchat/internal/node"
	"lanchat/internal/util/logger/sl"
)

const defaultProbeWait = 6 * time.Second

type PeersCommand struct {
	cmd *cobra.Command
	rt  *Runtime
}

func NewPeersCommand(rt *Runtime) *PeersCommand {
	return &PeersCommand{rt: rt}
}

func (c *PeersCommand) Meta() *cobra.Command {
	if c.cmd != nil {
		return c.cmd
	}
	c.cmd = &cobra.Command{
		Use:   "peers",
		Short: "Listen for presence announcements and list the peers found",
		Args:  cobra.NoArgs,
	}
	c.cmd.Flags().DurationP("wait", "w", defaultProbeWait, "how long to listen")
	return c.cmd
}

func (c *PeersCommand) Execute(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	wait, err := cmd.Flags().GetDuration("wait")
	if err != nil {
		return err
	}

	cfg, log, err := c.rt.Load()
	if err != nil {
		return err
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		log.Warn("started with disabled roles", sl.Err(err))
	}

	drainEvents(ctx, a.Node().Events(), wait)
	a.Stop()

	records := a.Peers().Snapshot()
	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, "no peers found")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tNAME\tPORT")
	for _, p := range records {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", p.Address, p.Name, p.Port)
	}
	return tw.Flush()
}

// drainEvents отбрасывает события узла, пока идет ожидание, чтобы
// обработчики входящих данных не блокировались на полном буфере.
func drainEvents(ctx context.Context, events <-chan node.Event, wait time.Duration) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			return
		case <-events:
		}
	}
}
