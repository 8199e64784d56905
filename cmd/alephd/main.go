// Alephd: one poset committee process.
//
// Usage:
//
//	alephd --id=<n> --committee=<path> [options]   Run a committee process
//	alephd --help                                  Show help
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/aleph-go/poset/config"
	"github.com/aleph-go/poset/internal/driver"
	klog "github.com/aleph-go/poset/internal/log"
	"github.com/aleph-go/poset/pkg/crypto"
	"golang.org/x/term"
)

func main() {
	// ── 1. Load config (defaults → file → flags) ────────────────────────
	cfg, _, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// ── 2. Init logger ───────────────────────────────────────────────────
	logFile := cfg.Log.File
	if logFile == "" {
		logsDir := cfg.LogsDir()
		if err := os.MkdirAll(logsDir, 0755); err != nil {
			fmt.Fprintf(os.Stderr, "Error creating logs dir: %v\n", err)
			os.Exit(1)
		}
		logFile = logsDir + "/alephd.log"
	}
	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, logFile); err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	logger := klog.Driver.With().Int("process_id", cfg.ProcessID).Logger()

	// ── 3. Load the committee (must be identical across every process) ──
	if cfg.CommitteeFile == "" {
		logger.Fatal().Msg("--committee is required")
	}
	committee, err := config.LoadCommittee(cfg.CommitteeFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("loading committee")
	}
	if cfg.ProcessID < 0 || cfg.ProcessID >= committee.N() {
		logger.Fatal().Int("process_id", cfg.ProcessID).Int("n", committee.N()).Msg("process id out of range for committee")
	}

	// ── 4. Load and decrypt this process's secret key ───────────────────
	if cfg.KeyFile == "" {
		logger.Fatal().Msg("--keyfile is required")
	}
	passphrase, err := readPassphrase()
	if err != nil {
		logger.Fatal().Err(err).Msg("reading passphrase")
	}
	secret, err := config.ReadKeyFile(cfg.KeyFile, passphrase)
	for i := range passphrase {
		passphrase[i] = 0
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("decrypting key file")
	}
	sk, err := crypto.PrivateKeyFromBytes(secret)
	for i := range secret {
		secret[i] = 0
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("loading secret key")
	}
	defer sk.Zero()

	logger.Info().
		Int("committee_size", committee.N()).
		Int("threshold", committee.Threshold()).
		Str("validation", string(cfg.ValidationMode)).
		Str("gossip", string(cfg.GossipStrategy)).
		Msg("starting alephd")

	// ── 5. Build and run the process driver until cancelled ─────────────
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	d, err := driver.New(ctx, cfg, committee, sk)
	if err != nil {
		logger.Fatal().Err(err).Msg("building driver")
	}

	d.Run(ctx)
	d.Shutdown()
	logger.Info().Msg("alephd stopped")
}

// readPassphrase prompts for the key file passphrase on a terminal,
// falling back to the ALEPHD_PASSPHRASE environment variable for
// non-interactive runs (e.g. a test harness spawning several processes).
func readPassphrase() ([]byte, error) {
	if env := os.Getenv("ALEPHD_PASSPHRASE"); env != "" {
		return []byte(env), nil
	}
	fmt.Fprint(os.Stderr, "Key file passphrase: ")
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read passphrase: %w", err)
	}
	return pass, nil
}
