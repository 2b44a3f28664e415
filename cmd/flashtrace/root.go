package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/flashtrace/flashtrace/internal/config"
	"github.com/flashtrace/flashtrace/internal/report"
	"github.com/flashtrace/flashtrace/internal/tracerouter"
)

var (
	targets        string
	grain          uint8
	globalOnly     bool
	allowPrivate   bool
	seed           uint64
	preprobingTTL  uint8
	proximitySpan  uint32
	splitTTL       uint8
	maxTTL         uint8
	gap            uint8
	probingRate    uint64
	dstPort        uint16
	srcPort        uint16
	salt           uint16
	payloadMessage string
	dryRun         bool
	two            bool
	ifaceName      string

	outFormat string
	outFile   string
	noColor   bool
	verbose   bool

	cfgFile string
	cfg     *config.File
)

var rootCmd = &cobra.Command{
	Use:   "flashtrace [flags]",
	Short: "Internet-scale cooperative traceroute engine",
	Long: `flashtrace traces the topology of a target address space by combining
backward probing toward the source with forward probing toward each
destination, stopping early wherever two destinations share a responder.

Examples:
  flashtrace --targets 198.51.100.0/24        Trace a /24
  flashtrace --targets targets.txt --two       Issue at least two backward probes before stopping
  flashtrace --targets 0.0.0.0/0 --grain 8 -o json > topo.json`,
	PersistentPreRunE: loadConfig,
	RunE:              runTracerouter,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: searches ./flashtrace.yaml, then the user config dir)")

	rootCmd.Flags().StringVar(&targets, "targets", "", "CIDR prefix or path to a target list file")
	rootCmd.Flags().Uint8Var(&grain, "grain", 0, "Bits of address space to skip per key (if unset: config file, else 8)")
	rootCmd.Flags().BoolVar(&globalOnly, "global-only", false, "Skip non-globally-routable addresses")
	rootCmd.Flags().BoolVar(&allowPrivate, "allow-private", false, "Admit RFC1918 addresses when --global-only is set")
	rootCmd.Flags().Uint64Var(&seed, "seed", 0, "PRNG seed for target subsampling (if unset: config file, else 114514)")

	rootCmd.Flags().Uint8Var(&preprobingTTL, "preprobing-ttl", 0, "TTL used for the pre-probing phase (if unset: config file, else 32)")
	rootCmd.Flags().Uint32Var(&proximitySpan, "proximity-span", 0, "Neighbor key span for proximity propagation (if unset: config file, else 5)")
	rootCmd.Flags().Uint8Var(&splitTTL, "split-ttl", 0, "Initial DCB split TTL (if unset: config file, else 16)")
	rootCmd.Flags().Uint8Var(&maxTTL, "max-ttl", 0, "Maximum TTL the forward horizon can reach (if unset: config file, else 32)")
	rootCmd.Flags().Uint8Var(&gap, "gap", 0, "Forward horizon extension gap (if unset: config file, else 5)")

	rootCmd.Flags().Uint64Var(&probingRate, "rate", 0, "Probes per second, 0 disables limiting (if unset: config file, else 400000)")
	rootCmd.Flags().Uint16Var(&dstPort, "dst-port", 0, "Destination UDP port (if unset: config file, else 33434)")
	rootCmd.Flags().Uint16Var(&srcPort, "src-port", 0, "Source UDP port (if unset: config file, else 53)")
	rootCmd.Flags().Uint16Var(&salt, "salt", 0, "Checksum-cookie salt")
	rootCmd.Flags().StringVar(&payloadMessage, "payload", "", "UDP payload message (if unset: config file, else \"How are you?\")")

	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Encode probes but never transmit them")
	rootCmd.Flags().BoolVar(&two, "two", false, "Require at least two backward probes per destination before backward probing can stop")
	rootCmd.Flags().StringVarP(&ifaceName, "interface", "i", "", "Network interface to source probes from")

	rootCmd.Flags().StringVarP(&outFormat, "output", "o", "text", "Output format: text, table, json, csv")
	rootCmd.Flags().StringVar(&outFile, "output-file", "", "Write output to a file instead of stdout")
	rootCmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}

func loadConfig(cmd *cobra.Command, args []string) error {
	var err error
	if cfgFile != "" {
		cfg, err = config.LoadFrom(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	return err
}

// resolvedOptions layers flags (only those explicitly set) over the loaded
// config file's defaults.
func resolvedOptions(cmd *cobra.Command) config.Options {
	opts := cfg.Defaults

	set := cmd.Flags().Changed
	if set("targets") {
		opts.Targets = targets
	}
	if set("grain") {
		opts.Grain = grain
	}
	if set("global-only") {
		opts.GlobalOnly = globalOnly
	}
	if set("allow-private") {
		opts.AllowPrivate = allowPrivate
	}
	if set("seed") {
		opts.Seed = seed
	}
	if set("preprobing-ttl") {
		opts.PreprobingTTL = preprobingTTL
	}
	if set("proximity-span") {
		opts.ProximitySpan = proximitySpan
	}
	if set("split-ttl") {
		opts.SplitTTL = splitTTL
	}
	if set("max-ttl") {
		opts.MaxTTL = maxTTL
	}
	if set("gap") {
		opts.Gap = gap
	}
	if set("rate") {
		opts.ProbingRate = probingRate
	}
	if set("dst-port") {
		opts.DstPort = dstPort
	}
	if set("src-port") {
		opts.SrcPort = srcPort
	}
	if set("salt") {
		opts.Salt = salt
	}
	if set("payload") {
		opts.PayloadMessage = payloadMessage
	}
	if set("dry-run") {
		opts.DryRun = dryRun
	}
	if set("two") {
		opts.Two = two
	}
	if set("interface") {
		opts.Interface = ifaceName
	}
	return opts
}

func runTracerouter(cmd *cobra.Command, args []string) error {
	opts := resolvedOptions(cmd)

	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if os.Geteuid() != 0 {
		log.Warn("flashtrace: raw sockets usually require root or CAP_NET_RAW; continuing anyway")
	}

	sourceAddr, err := tracerouter.ResolveSourceAddr(opts.Interface)
	if err != nil {
		return fmt.Errorf("resolving source address: %w", err)
	}

	tr, err := tracerouter.New(opts, sourceAddr, log)
	if err != nil {
		return fmt.Errorf("initializing tracerouter: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		tr.Stop()
	}()

	start := time.Now()
	graph, err := tr.Run(ctx)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	elapsed := time.Since(start)

	result := &report.Result{Graph: graph, Summary: tr.Summary(elapsed)}

	format := report.FormatText
	switch outFormat {
	case "table":
		format = report.FormatTable
	case "json":
		format = report.FormatJSON
	case "csv":
		format = report.FormatCSV
	}

	cfgReport := report.DefaultConfig()
	if noColor {
		cfgReport.Colors = false
	}

	if outFile != "" {
		formatter := report.NewFormatter(format, cfgReport)
		return report.WriteToFile(result, outFile, formatter)
	}

	writer := report.NewWriter(format, cfgReport)
	return writer.Write(result)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("flashtrace %s\n", version)
		fmt.Printf("  Commit: %s\n", commit)
		fmt.Printf("  Built:  %s\n", date)
		fmt.Printf("  Config: %s\n", config.GetConfigPath())
	},
}

var (
	configInit bool
	configShow bool
	configPath bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Manage the flashtrace configuration file.

  flashtrace config --init    Create a default config file
  flashtrace config --show    Print an example configuration
  flashtrace config --path    Print the config file path`,
	RunE: runConfig,
}

func init() {
	configCmd.Flags().BoolVar(&configInit, "init", false, "Create a default config file")
	configCmd.Flags().BoolVar(&configShow, "show", false, "Print an example configuration")
	configCmd.Flags().BoolVar(&configPath, "path", false, "Print the config file path")
}

func runConfig(cmd *cobra.Command, args []string) error {
	if configPath {
		fmt.Println(config.GetConfigPath())
		return nil
	}
	if configInit {
		path := config.GetConfigPath()
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists: %s", path)
		}
		if err := config.DefaultFile().Save(); err != nil {
			return fmt.Errorf("failed to create config: %w", err)
		}
		fmt.Printf("Created config file: %s\n", path)
		return nil
	}
	if configShow {
		fmt.Println(config.GenerateExample())
		return nil
	}
	return cmd.Help()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets version information for the CLI.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}
