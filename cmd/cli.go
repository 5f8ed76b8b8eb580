// Package cmd parses the command line into a configuration.
package cmd

import (
	"github.com/spf13/cobra"

	"lid/internal/config"
	"lid/pkg/build"
)

// flagValues holds command line values until the configuration is loaded.
// Only flags given explicitly override the file.
type flagValues struct {
	configPath   string
	modelPath    string
	inputDevice  int
	outputDevice int
	inputFile    string
	modelDevice  string
	threads      int
	policy       string
	gate         float64
	outputDir    string
	wsAddress    string
	udpTarget    string
	metricsAddr  string
	headless     bool
	verbose      bool
}

func (f *flagValues) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := cmd.Flags().Changed

	if changed("model") {
		cfg.Model.Path = f.modelPath
	}
	if changed("device") {
		cfg.Audio.InputDevice = f.inputDevice
	}
	if changed("output-device") {
		cfg.Audio.OutputDevice = f.outputDevice
	}
	if changed("model-device") {
		cfg.Model.Device = f.modelDevice
	}
	if changed("threads") {
		cfg.Model.Threads = f.threads
	}
	if changed("policy") {
		cfg.Inference.Policy = f.policy
	}
	if changed("gate") {
		cfg.Inference.GateThreshold = f.gate
	}
	if changed("output-dir") {
		cfg.Recording.OutputDir = f.outputDir
	}
	if changed("ws") {
		cfg.Transport.WebSocketEnabled = true
		cfg.Transport.WebSocketAddress = f.wsAddress
	}
	if changed("udp") {
		cfg.Transport.UDPEnabled = true
		cfg.Transport.UDPTargetAddress = f.udpTarget
	}
	if changed("metrics") {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = f.metricsAddr
	}

	cfg.InputFile = f.inputFile
	cfg.Headless = f.headless
	cfg.Verbose = f.verbose
	if f.verbose {
		cfg.LogLevel = "debug"
	}
}

// ParseArgs parses args (without the program name) and loads the
// configuration they point at. It returns a nil config when only help or
// version output was requested.
func ParseArgs(args []string) (*config.Config, error) {
	buildInfo := build.GetBuildFlags()

	var (
		flags flagValues
		cfg   *config.Config
	)

	load := func(cmd *cobra.Command, command string, cmdArgs []string) error {
		c, err := config.LoadConfig(flags.configPath)
		if err != nil {
			return err
		}
		flags.apply(cmd, c)
		if err := c.Validate(); err != nil {
			return err
		}
		c.Command = command
		c.Args = cmdArgs
		cfg = c
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return load(cmd, "", args)
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return load(cmd, "list", args)
		},
	}

	classifyCmd := &cobra.Command{
		Use:   "classify FILE.wav",
		Short: "Classify the first model window of a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return load(cmd, "classify", args)
		},
	}
	rootCmd.AddCommand(listCmd, classifyCmd)

	pf := rootCmd.PersistentFlags()

	// Configuration
	pf.StringVar(&flags.configPath, "config", "",
		"Path to a YAML configuration file (default: ./config.yaml if present)")
	pf.StringVarP(&flags.modelPath, "model", "m", config.DefaultModelPath,
		"Path to the classifier model file")
	pf.StringVar(&flags.modelDevice, "model-device", config.DefaultModelDevice,
		"Where inference runs: cpu or accelerated")
	pf.IntVar(&flags.threads, "threads", 0,
		"Classifier parallelism for the accelerated device (0 = number of CPUs)")

	// Audio Device Configuration
	pf.IntVarP(&flags.inputDevice, "device", "d", config.DefaultInputDevice,
		"Input device ID. Use 'list' command to see available devices.")
	pf.IntVar(&flags.outputDevice, "output-device", config.DefaultOutputDevice,
		"Output device ID used for playback")
	pf.StringVarP(&flags.inputFile, "input-file", "i", "",
		"Use a WAV file instead of the microphone; playback is rendered to files")

	// Inference
	pf.StringVar(&flags.policy, "policy", config.DefaultPolicy,
		"What to do with a window that arrives while inference is running: coalesce or drop")
	pf.Float64Var(&flags.gate, "gate", config.DefaultGateThreshold,
		"Skip inference while the window peak is below this level (0-1)")

	// Outputs
	pf.StringVarP(&flags.outputDir, "output-dir", "o", config.DefaultOutputDir,
		"Directory for saved windows and rendered playback")
	pf.StringVar(&flags.wsAddress, "ws", config.DefaultWebSocketAddress,
		"Broadcast results to WebSocket clients on this address")
	pf.StringVar(&flags.udpTarget, "udp", config.DefaultUDPTargetAddress,
		"Send binary result packets to this UDP address")
	pf.StringVar(&flags.metricsAddr, "metrics", config.DefaultMetricsAddress,
		"Serve Prometheus metrics on this address")

	// Debug Configuration
	pf.BoolVar(&flags.headless, "headless", false,
		"Log results instead of running the interactive UI; detection starts immediately")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false,
		"Show verbose output")

	// Execute the CLI
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return cfg, nil
}
