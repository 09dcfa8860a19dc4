package cliplugins

import (
	"fmt"

	"github.com/spf13/cobra"

	"lanchat/internal/localaddr"
	"lanchat/internal/protocol"
)

type WhoamiCommand struct {
	cmd     *cobra.Command
	rt      *Runtime
	resolve func() string
}

func NewWhoamiCommand(rt *Runtime) *WhoamiCommand {
	return &WhoamiCommand{rt: rt, resolve: localaddr.Resolve}
}

func (c *WhoamiCommand) Meta() *cobra.Command {
	if c.cmd != nil {
		return c.cmd
	}
	c.cmd = &cobra.Command{
		Use:   "whoami",
		Short: "Print the identity this process announces",
		Args:  cobra.NoArgs,
	}
	return c.cmd
}

func (c *WhoamiCommand) Execute(cmd *cobra.Command, args []string) error {
	cfg, _, err := c.rt.Load()
	if err != nil {
		return err
	}

	role := "peer"
	if cfg.Relay {
		role = "relay"
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "name:      %s\n", cfg.Name)
	fmt.Fprintf(out, "address:   %s\n", c.resolve())
	fmt.Fprintf(out, "role:      %s\n", role)
	fmt.Fprintf(out, "discovery: udp/%d\n", protocol.DiscoveryPort)
	fmt.Fprintf(out, "chat:      tcp/%d\n", protocol.ChatPort)
	fmt.Fprintf(out, "relay:     tcp/%d\n", protocol.RelayPort)
	return nil
}
