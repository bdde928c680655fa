package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"visualizer/internal/config"
	"visualizer/pkg/build"
)

// Commands selected on the command line.
const (
	CommandRun     = "run"
	CommandList    = "list"
	CommandAnalyze = "analyze"
)

// Options is the parsed command line: which command to run and the
// configuration it runs with. Command is empty when cobra handled the
// invocation itself (help, version).
type Options struct {
	Command     string
	Config      *config.Config
	Interactive bool   // list: open the device picker.
	File        string // analyze, run: WAV file to replay instead of capturing.
	Beats       bool   // analyze: print every beat, not just the summary.
}

// flagValues holds flag targets. Only flags the user set are applied over the
// loaded configuration.
type flagValues struct {
	configPath      string
	deviceID        int
	channels        int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool
	verbose         bool
	logLevel        string
	windowSize      int
	frameRate       float64
	gate            float64
	udpTarget       string
	websocket       bool
	metricsAddr     string
}

// ParseArgs parses args (without the program name), loads the configuration
// file and applies flag overrides.
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.GetBuildFlags()
	options := &Options{}
	var flags flagValues

	// resolve runs inside each command so that flag parsing has happened.
	resolve := func(cmd *cobra.Command, command string) error {
		cfg, err := config.LoadConfig(flags.configPath)
		if err != nil {
			return err
		}
		flags.apply(cmd.Flags(), cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid command line: %w", err)
		}
		options.Command = command
		options.Config = cfg
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
			return resolve(cmd, CommandRun)
		},
	}
	rootCmd.Flags().StringVar(&options.File, "replay", "",
		"Replay a WAV file at real-time pace instead of capturing from a device")

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return resolve(cmd, CommandList)
		},
	}
	listCmd.Flags().BoolVarP(&options.Interactive, "interactive", "i", false,
		"Pick a device and sample rate interactively")
	rootCmd.AddCommand(listCmd)

	// Analyze command
	analyzeCmd := &cobra.Command{
		Use:   "analyze FILE.wav",
		Short: "Replay a WAV file through the analysis pipeline and summarize beats and tempo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			options.File = args[0]
			return resolve(cmd, CommandAnalyze)
		},
	}
	analyzeCmd.Flags().BoolVar(&options.Beats, "beats", false, "Print every detected beat")
	rootCmd.AddCommand(analyzeCmd)

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "C", "",
		"Path to a YAML config file (default: ./config.yaml or ./visualizer.yaml if present)")

	// Audio Device Configuration
	pf.IntVarP(&flags.deviceID, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	pf.IntVarP(&flags.channels, "channels", "c", config.DefaultInputChannels,
		"Number of channels to capture (1=mono, 2=stereo)")
	pf.Float64VarP(&flags.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&flags.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	pf.BoolVarP(&flags.lowLatency, "low-latency", "l", config.DefaultLowLatency,
		"Use low latency mode for real-time processing")

	// Analysis Configuration
	pf.IntVarP(&flags.windowSize, "window-size", "w", config.DefaultWindowSize,
		"FFT window size, a power of two")
	pf.Float64Var(&flags.frameRate, "frame-rate", config.DefaultFrameRate,
		"Analysis cycles per second")
	pf.Float64Var(&flags.gate, "gate", config.DefaultGateThreshold,
		"Noise gate threshold in [0, 1]; blocks quieter than this are analysed as silence")

	// Outputs
	pf.StringVar(&flags.udpTarget, "udp", "",
		"Send binary frames over UDP to host:port")
	pf.BoolVar(&flags.websocket, "websocket", true,
		"Serve JSON frames over WebSocket")
	pf.StringVar(&flags.metricsAddr, "metrics", "",
		"Serve /metrics, /healthz and /readyz on this address")

	// Debug Configuration
	pf.BoolVarP(&flags.verbose, "verbose", "v", false,
		"Show verbose output")
	pf.StringVar(&flags.logLevel, "log-level", "",
		"Log level: debug, info, warn, error")

	// Execute the CLI
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	return options, nil
}

// apply copies every flag the user set onto cfg.
func (f *flagValues) apply(fs *pflag.FlagSet, cfg *config.Config) {
	set := func(name string) bool { return fs.Changed(name) }

	if set("device") {
		cfg.Audio.InputDevice = f.deviceID
	}
	if set("channels") {
		cfg.Audio.InputChannels = f.channels
	}
	if set("sample-rate") {
		cfg.Audio.SampleRate = f.sampleRate
	}
	if set("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = f.framesPerBuffer
	}
	if set("low-latency") {
		cfg.Audio.LowLatency = f.lowLatency
	}
	if set("window-size") {
		cfg.Analysis.WindowSize = f.windowSize
	}
	if set("frame-rate") {
		cfg.Analysis.FrameRate = f.frameRate
	}
	if set("gate") {
		cfg.Analysis.GateThreshold = f.gate
	}
	if set("udp") {
		cfg.Transport.UDPEnabled = f.udpTarget != ""
		cfg.Transport.UDPTargetAddress = f.udpTarget
	}
	if set("websocket") {
		cfg.Transport.WebSocketEnabled = f.websocket
	}
	if set("metrics") {
		cfg.Metrics.Enabled = f.metricsAddr != ""
		if f.metricsAddr != "" {
			cfg.Metrics.Address = f.metricsAddr
		}
	}
	if set("verbose") {
		cfg.Debug = f.verbose
	}
	if set("log-level") {
		cfg.LogLevel = f.logLevel
	}
}
