package cliplugins

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"lanchat/internal/app"
	"lanchat/internal/util/logger/sl"
)

type RunCommand struct {
	cmd *cobra.Command
	rt  *Runtime
}

func NewRunCommand(rt *Runtime) *RunCommand {
	return &RunCommand{rt: rt}
}

func (c *RunCommand) Meta() *cobra.Command {
	if c.cmd != nil {
		return c.cmd
	}
	c.cmd = &cobra.Command{
		Use:   "run",
		Short: "Join the LAN chat",
		Long: "Starts discovery, the chat inbox and the file relay (with --relay), " +
			"then reads lines from stdin.\n\n" + promptHelp,
		Args: cobra.NoArgs,
	}
	c.cmd.Flags().Bool("relay", false, "act as the file relay (overrides the config)")
	return c.cmd
}

func (c *RunCommand) Execute(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	cfg, log, err := c.rt.Load()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("relay") {
		cfg.Relay, _ = cmd.Flags().GetBool("relay")
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		// роль без порта отключена, остальные работают
		log.Warn("started with disabled roles", sl.Err(err))
	}
	defer a.Stop()

	in, out, restore, err := openPrompt(cmd)
	if err != nil {
		return err
	}
	defer restore()

	fmt.Fprintf(out, "%s (%s), /help for commands\n", cfg.Name, a.Node().Identity().Address)

	s := &session{node: a.Node(), in: in, out: out}
	return s.Run(ctx)
}

// openPrompt включает строковый редактор x/term, если stdin терминал,
// иначе читает строки как есть.
func openPrompt(cmd *cobra.Command) (lineReader, io.Writer, func(), error) {
	fd := int(os.Stdin.Fd())
	if cmd.InOrStdin() != os.Stdin || !term.IsTerminal(fd) {
		return newScannerReader(cmd.InOrStdin()), cmd.OutOrStdout(), func() {}, nil
	}

	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("terminal raw mode: %w", err)
	}
	t := term.NewTerminal(struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}, "> ")

	restore := func() {
		_ = term.Restore(fd, oldState)
	}
	return t, t, restore, nil
}
