package commands

import (
	"github.com/spf13/cobra"

	"github.com/MVittiS/Sdl3ComputeSample/internal/gpu"
)

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion script",
		Long: `Generate shell completion script for computesample.

To load completions:

Bash:
  $ computesample completion bash > ~/.local/share/bash-completion/completions/computesample
  $ source ~/.local/share/bash-completion/completions/computesample

Zsh:
  $ computesample completion zsh > ~/.zsh/completion/_computesample
  $ echo 'fpath=(~/.zsh/completion $fpath)' >> ~/.zshrc
  $ echo 'autoload -Uz compinit && compinit' >> ~/.zshrc

Fish:
  $ computesample completion fish > ~/.config/fish/completions/computesample.fish

PowerShell:
  PS> computesample completion powershell | Out-String | Invoke-Expression
  # To persist, add the output to your PowerShell profile
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE:                  runCompletion,
	}
}

func runCompletion(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	switch args[0] {
	case "bash":
		return cmd.Root().GenBashCompletion(out)
	case "zsh":
		return cmd.Root().GenZshCompletion(out)
	case "fish":
		return cmd.Root().GenFishCompletion(out, true)
	case "powershell":
		return cmd.Root().GenPowerShellCompletionWithDesc(out)
	}
	return nil
}

func driverCompletions(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{
		gpu.DriverAuto + "\tWebGPU if available, else cpu",
		gpu.DriverCPU + "\tSoftware driver",
		gpu.DriverWebGPU + "\tWebGPU adapter",
	}, cobra.ShellCompDirectiveNoFileComp
}

func layoutCompletions(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	return []string{
		gpu.LayoutSplit.String() + "\tInputs read-only, output read-write",
		gpu.LayoutAllReadWrite.String() + "\tEvery buffer read-write",
	}, cobra.ShellCompDirectiveNoFileComp
}

// registerCompletions attaches value completions to flags that take a fixed set of values.
func registerCompletions(root *cobra.Command) {
	_ = root.RegisterFlagCompletionFunc("device", driverCompletions)
	for _, c := range root.Commands() {
		if c.Flags().Lookup("layout") != nil {
			_ = c.RegisterFlagCompletionFunc("layout", layoutCompletions)
		}
		if c.Flags().Lookup("shader-dir") != nil {
			_ = c.MarkFlagDirname("shader-dir")
		}
	}
}
