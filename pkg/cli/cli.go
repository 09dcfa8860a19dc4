package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type CommandPlugin interface {
	Meta() *cobra.Command
	Execute(cmd *cobra.Command, args []string) error
}

type CLI struct {
	rootCmd    *cobra.Command
	plugins    []CommandPlugin
	completion bool
}

func NewCLI(use, short string) *CLI {
	return &CLI{
		rootCmd: &cobra.Command{
			Use:           use,
			Short:         short,
			SilenceUsage:  true,
			SilenceErrors: true,
		},
		plugins: make([]CommandPlugin, 0, 10),
	}
}

// RootCmd gives access to the root command, e.g. for persistent flags.
func (c *CLI) RootCmd() *cobra.Command {
	return c.rootCmd
}

func (c *CLI) RegisterPlugin(p CommandPlugin) {
	c.plugins = append(c.plugins, p)
	cmd := p.Meta()
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		for _, plugin := range c.plugins {
			if plugin.Meta() == cmd {
				return plugin.Execute(cmd, args)
			}
		}
		return fmt.Errorf("unknown command")
	}
	c.rootCmd.AddCommand(cmd)
}

func (c *CLI) initCompletion() {
	if c.completion {
		return
	}
	c.completion = true

	c.rootCmd.ValidArgsFunction = func(cmd *cobra.Command, args []string, toComplete string,
	) ([]string, cobra.ShellCompDirective) {
		names := make([]string, 0, len(c.plugins))
		for _, plugin := range c.plugins {
			names = append(names, plugin.Meta().Name())
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	}

	completionCmd := &cobra.Command{
		Use:       "completion [bash|zsh|fish|powershell]",
		Short:     "Generate completion script",
		Long:      "Generate completion script for bash, zsh, fish or powershell",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			shell := "bash"
			if len(args) == 1 {
				shell = args[0]
			}
			switch shell {
			case "bash":
				return c.rootCmd.GenBashCompletion(cmd.OutOrStdout())
			case "zsh":
				return c.rootCmd.GenZshCompletion(cmd.OutOrStdout())
			case "fish":
				return c.rootCmd.GenFishCompletion(cmd.OutOrStdout(), true)
			case "powershell":
				return c.rootCmd.GenPowerShellCompletion(cmd.OutOrStdout())
			default:
				return fmt.Errorf("unsupported shell: %s", shell)
			}
		},
	}
	// source <(lanchat completion zsh)
	c.rootCmd.AddCommand(completionCmd)
}

// Run executes the command line with ctx available as cmd.Context().
func (c *CLI) Run(ctx context.Context, args []string) error {
	c.initCompletion()
	c.rootCmd.SetArgs(args)
	return c.rootCmd.ExecuteContext(ctx)
}
