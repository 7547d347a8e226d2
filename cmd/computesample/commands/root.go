package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/MVittiS/Sdl3ComputeSample/internal/config"
	"github.com/MVittiS/Sdl3ComputeSample/internal/logging"
)

// Version is the release of the binary.
const Version = "0.1.0"

// app holds the state shared by every subcommand of one invocation.
type app struct {
	cfgFile string
	verbose bool
	quiet   bool

	cfg *config.Config
}

// configKey is the flag annotation naming the config key a flag overrides.
const configKey = "computesample_config_key"

// bindFlag lets the named flag override a config key when it is set.
func bindFlag(fs *pflag.FlagSet, name, key string) {
	if err := fs.SetAnnotation(name, configKey, []string{key}); err != nil {
		panic(err)
	}
}

// boundFlags collects the flags of cmd that override config keys.
func boundFlags(cmd *cobra.Command) map[string]*pflag.Flag {
	out := make(map[string]*pflag.Flag)
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if keys := f.Annotations[configKey]; len(keys) == 1 {
			out[keys[0]] = f
		}
	})
	return out
}

// Execute runs the root command
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "computesample",
		Short: "A GPU compute dispatch sample",
		Long: `computesample uploads two float vectors to a compute device, adds them
element-wise in a kernel, downloads the result and checks it bit for bit
against the same sum computed on the host.

It runs on a WebGPU adapter when one is available and falls back to a
software driver otherwise.`,
		Version:           Version,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logging.Close()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.computesample/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "quiet mode")
	rootCmd.PersistentFlags().String("device", "auto", "compute driver: auto, cpu, webgpu")
	bindFlag(rootCmd.PersistentFlags(), "device", "device.driver")
	rootCmd.PersistentFlags().Bool("debug-device", false, "open the device in debug mode (poisoned fresh buffers, wider error scopes)")
	bindFlag(rootCmd.PersistentFlags(), "debug-device", "device.debug")

	rootCmd.AddCommand(
		newRunCmd(a),
		newRoundTripCmd(a),
		newDeviceCmd(a),
		newVersionCmd(),
		newCompletionCmd(),
	)
	registerCompletions(rootCmd)
	return rootCmd
}

// setup loads the configuration and starts logging before any subcommand runs.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.cfgFile, boundFlags(cmd))
	if err != nil {
		return err
	}

	level, console := cfg.Logging.Level, cfg.Logging.Console
	if a.verbose {
		level = "debug"
	}
	if a.quiet {
		console = false
	}
	if err := logging.Init(level, cfg.Logging.File, console); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	a.cfg = cfg
	return nil
}
