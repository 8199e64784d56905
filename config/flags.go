package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

// Flags holds parsed command-line flags.
type Flags struct {
	Help    bool
	Version bool

	ProcessID     int
	DataDir       string
	ConfigFile    string
	CommitteeFile string
	KeyFile       string

	P2PListen string
	P2PPort   int
	KRecv     int

	IngressAddr string
	IngressPort int

	MaxUnits int
	MaxLevel int

	Validation string
	Gossip     string

	CreatePeriod time.Duration
	SyncPeriod   time.Duration
	NParents     int

	LogLevel string
	LogFile  string
	LogJSON  bool

	// Explicitly-set flags (to distinguish "zero" from "unset").
	SetLogJSON bool

	Args []string
}

// ParseFlags parses command-line flags.
func ParseFlags(args []string) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("alephd", flag.ContinueOnError)

	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")

	fs.IntVar(&f.ProcessID, "id", -1, "This process's id (0..N-1)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.ConfigFile, "config", "", "Config file path")
	fs.StringVar(&f.CommitteeFile, "committee", "", "Committee configuration JSON path")
	fs.StringVar(&f.KeyFile, "keyfile", "", "Path to this process's encrypted secret key file")

	fs.StringVar(&f.P2PListen, "listen", "", "P2P listen address")
	fs.IntVar(&f.P2PPort, "port", 0, "P2P listen port")
	fs.IntVar(&f.KRecv, "krecv", 0, "Max concurrent inbound syncs")

	fs.StringVar(&f.IngressAddr, "ingress-addr", "", "Ingress listen address")
	fs.IntVar(&f.IngressPort, "ingress-port", 0, "Ingress listen port")

	fs.IntVar(&f.MaxUnits, "max-units", 0, "Stop creator loop after this many units (0 = unbounded)")
	fs.IntVar(&f.MaxLevel, "max-level", 0, "Stop creator loop once this level is reached (0 = unbounded)")

	fs.StringVar(&f.Validation, "validation", "", "Validation mode: none, snap, or linear")
	fs.StringVar(&f.Gossip, "gossip", "", "Gossip strategy: uniform_random or non_recent_random")

	fs.DurationVar(&f.CreatePeriod, "create-period", 0, "Unit creation period")
	fs.DurationVar(&f.SyncPeriod, "sync-period", 0, "Sync initiation period")
	fs.IntVar(&f.NParents, "nparents", 0, "Number of parents per created unit")

	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = func() { printUsage() }

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.Args = fs.Args()
	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	if f.ProcessID >= 0 {
		cfg.ProcessID = f.ProcessID
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}
	if f.CommitteeFile != "" {
		cfg.CommitteeFile = f.CommitteeFile
	}
	if f.KeyFile != "" {
		cfg.KeyFile = f.KeyFile
	}

	if f.P2PListen != "" {
		cfg.P2P.ListenAddr = f.P2PListen
	}
	if f.P2PPort != 0 {
		cfg.P2P.Port = f.P2PPort
	}
	if f.KRecv != 0 {
		cfg.P2P.KRecv = f.KRecv
	}

	if f.IngressAddr != "" {
		cfg.Ingress.Addr = f.IngressAddr
	}
	if f.IngressPort != 0 {
		cfg.Ingress.Port = f.IngressPort
	}

	if f.MaxUnits != 0 {
		cfg.Limits.MaxUnits = f.MaxUnits
	}
	if f.MaxLevel != 0 {
		cfg.Limits.MaxLevel = f.MaxLevel
	}

	if f.Validation != "" {
		cfg.ValidationMode = ValidationMode(f.Validation)
	}
	if f.Gossip != "" {
		cfg.GossipStrategy = GossipStrategy(f.Gossip)
	}

	if f.CreatePeriod != 0 {
		cfg.CreatePeriod = f.CreatePeriod
	}
	if f.SyncPeriod != 0 {
		cfg.SyncPeriod = f.SyncPeriod
	}
	if f.NParents != 0 {
		cfg.NParents = f.NParents
	}

	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(fl *flag.Flag) {
		if fl.Name == name {
			found = true
		}
	})
	return found
}

func printUsage() {
	usage := `alephd - Byzantine-fault-tolerant poset consensus process

Usage:
  alephd --id=<n> --committee=<path> [options]
  alephd --help

Commands:
  --help, -h      Show this help message
  --version       Show version information

Core Options:
  --id            This process's id (0..N-1) (default: 0)
  --committee     Committee configuration JSON path, required
  --keyfile       Path to this process's encrypted secret key file
  --datadir       Data directory (default: ~/.alephd)
  --config        Config file path

Networking:
  --listen        P2P listen address (default: 0.0.0.0)
  --port          P2P listen port (default: 9000)
  --krecv         Max concurrent inbound syncs (default: 5)
  --ingress-addr  Ingress listen address (default: 127.0.0.1)
  --ingress-port  Ingress listen port (default: 9500)

Protocol:
  --validation     Validation mode: none, snap, or linear (default: linear)
  --gossip         Gossip strategy: uniform_random or non_recent_random
  --create-period  Unit creation period (default: 500ms)
  --sync-period    Sync initiation period (default: 500ms)
  --nparents       Parents per created unit (default: 2)

Limits:
  --max-units     Stop creator loop after this many units (0 = unbounded)
  --max-level     Stop creator loop once this level is reached (0 = unbounded)

Logging:
  --log-level     Log level: debug, info, warn, error (default: info)
  --log-file      Log file path, written alongside stdout
                  (default: <datadir>/process-<id>/logs/alephd.log)
  --log-json      Output logs as JSON
`
	fmt.Print(usage)
}

// Load loads configuration with the following precedence:
//  1. Default values
//  2. Config file
//  3. Command-line flags
func Load(args []string) (*Config, *Flags, error) {
	flags, err := ParseFlags(args)
	if err != nil {
		if err == flag.ErrHelp {
			os.Exit(0)
		}
		return nil, nil, err
	}
	if flags.Help {
		printUsage()
		os.Exit(0)
	}
	if flags.Version {
		fmt.Println("alephd version 0.1.0")
		os.Exit(0)
	}

	cfg := Default()
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	configPath := flags.ConfigFile
	if configPath == "" && flags.DataDir != "" {
		configPath = fmt.Sprintf("%s/alephd.conf", strings.TrimRight(flags.DataDir, "/"))
	}
	if configPath != "" {
		fileValues, err := LoadFile(configPath)
		if err != nil {
			return nil, nil, fmt.Errorf("loading config file: %w", err)
		}
		if err := ApplyFileConfig(cfg, fileValues); err != nil {
			return nil, nil, fmt.Errorf("applying config file: %w", err)
		}
	}

	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, flags, nil
}
