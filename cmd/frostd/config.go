package main

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/frostvault/frostd/build"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultConfigFilename = "frostd.conf"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "frostd.log"
	defaultLogLevel       = "info"
	defaultNetwork        = "mainnet"

	defaultCheckInterval = 30 * time.Second
	defaultCheckTimeout  = 10 * time.Second
	defaultCheckBackoff  = 30 * time.Second
	defaultCheckAttempts = 3
)

var (
	defaultFrostdDir  = btcutil.AppDataDir("frostd", false)
	defaultConfigFile = filepath.Join(defaultFrostdDir, defaultConfigFilename)
	defaultLogDir     = filepath.Join(defaultFrostdDir, defaultLogDirname)
)

// SignerConfig holds the options of the committee member role.
type SignerConfig struct {
	KeyFile string `long:"keyfile" description:"Path to this member's secret share artifact; setting it selects the signer role"`

	ListenAddr string `long:"listen" description:"host:port to serve the signing endpoints on"`
}

// OrchestratorConfig holds the options of the coordinating role.
type OrchestratorConfig struct {
	CommitteeFile string `long:"committeefile" description:"Path to the committee config artifact; setting it selects the orchestrator role"`

	ListenAddr string `long:"listen" description:"host:port to serve the spend endpoints on"`
}

// BitcoinConfig holds the bitcoind endpoint options.
type BitcoinConfig struct {
	Address string `long:"address" description:"URL of the bitcoind JSON-RPC endpoint"`

	Wallet string `long:"wallet" description:"Named bitcoind wallet to route calls through"`

	Auth string `long:"auth" description:"user:password pair for HTTP basic auth"`

	Version string `long:"version" description:"Value for the jsonrpc version field of outgoing requests, omitted when empty"`
}

// HealthCheckConfig holds the retry policy of the bitcoind reachability
// probe.
type HealthCheckConfig struct {
	Interval time.Duration `long:"interval" description:"How often to probe the bitcoin node"`

	Timeout time.Duration `long:"timeout" description:"How long a single probe may take"`

	Backoff time.Duration `long:"backoff" description:"Wait between retries of a failed probe"`

	Attempts int `long:"attempts" description:"Number of probe failures tolerated before shutting down"`
}

// Config is the frostd daemon configuration. The role frostd runs in is
// implied by which artifact it is pointed at: a secret share makes it a
// committee signer, a committee config makes it the orchestrator.
type Config struct {
	ShowVersion bool `short:"V" long:"version" description:"Display version information and exit"`

	FrostdDir  string `long:"frostddir" description:"The base directory for frostd's data"`
	ConfigFile string `short:"C" long:"configfile" description:"Path to configuration file"`

	Network string `long:"network" description:"The bitcoin network frostd operates on" choice:"mainnet" choice:"testnet" choice:"regtest" choice:"signet" choice:"simnet"`

	PublicKeyFile string `long:"publickeyfile" description:"Path to the public key package artifact"`

	DebugLevel string `long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems"`

	LogDir         string `long:"logdir" description:"Directory to log output"`
	MaxLogFiles    int    `long:"maxlogfiles" description:"Maximum logfiles to keep (0 for no rotation)"`
	MaxLogFileSize int    `long:"maxlogfilesize" description:"Maximum logfile size in MB"`
	LogCompressor  string `long:"logcompressor" description:"Compression algorithm to use when rotating logs" choice:"gzip" choice:"zstd"`

	Signer       *SignerConfig       `group:"signer" namespace:"signer"`
	Orchestrator *OrchestratorConfig `group:"orchestrator" namespace:"orchestrator"`
	Bitcoin      *BitcoinConfig      `group:"bitcoin" namespace:"bitcoin"`
	HealthCheck  *HealthCheckConfig  `group:"healthcheck" namespace:"healthcheck"`

	// netParams is materialized from Network during validation.
	netParams *chaincfg.Params
}

// DefaultConfig returns all default values for the Config struct.
func DefaultConfig() Config {
	return Config{
		FrostdDir:      defaultFrostdDir,
		ConfigFile:     defaultConfigFile,
		Network:        defaultNetwork,
		DebugLevel:     defaultLogLevel,
		LogDir:         defaultLogDir,
		MaxLogFiles:    build.DefaultMaxLogFiles,
		MaxLogFileSize: build.DefaultMaxLogFileSize,
		LogCompressor:  build.DefaultLogCompressor,
		Signer:         &SignerConfig{},
		Orchestrator:   &OrchestratorConfig{},
		Bitcoin:        &BitcoinConfig{},
		HealthCheck: &HealthCheckConfig{
			Interval: defaultCheckInterval,
			Timeout:  defaultCheckTimeout,
			Backoff:  defaultCheckBackoff,
			Attempts: defaultCheckAttempts,
		},
	}
}

// loadConfig initializes and parses the config using a config file and
// command line options, sets up logging, and validates everything the daemon
// needs before it starts serving.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings.
//  2. Pre-parse the command line to check for an alternative config file.
//  3. Load configuration file overwriting defaults with any specified
//     options.
//  4. Parse CLI options and overwrite/add any specified options.
func loadConfig() (*Config, error) {
	// Pre-parse the command line options to pick up an alternative config
	// file.
	preCfg := DefaultConfig()
	if _, err := flags.Parse(&preCfg); err != nil {
		return nil, err
	}

	// Show the version and exit if the version flag was specified.
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", build.Version())
		os.Exit(0)
	}

	// If the config file path has not been modified by the user, then
	// we'll use the default config file path. However, if the user has
	// modified their default dir, then we check if the config file is in
	// there.
	configFilePath := cleanAndExpandPath(preCfg.ConfigFile)
	explicitConfig := configFilePath != defaultConfigFile
	if !explicitConfig && preCfg.FrostdDir != defaultFrostdDir {
		configFilePath = filepath.Join(
			cleanAndExpandPath(preCfg.FrostdDir),
			defaultConfigFilename,
		)
	}

	// Next, load any additional configuration options from the file.
	var configFileError error
	cfg := preCfg
	fileParser := flags.NewParser(&cfg, flags.Default)
	err := flags.NewIniParser(fileParser).ParseFile(configFilePath)
	if err != nil {
		// If it's a parsing related error, then we'll return
		// immediately, otherwise we can proceed as possibly the
		// config file doesn't exist which is OK.
		if _, ok := err.(*flags.IniError); ok {
			return nil, err
		}
		if explicitConfig {
			return nil, fmt.Errorf("unable to read config "+
				"file %s: %w", configFilePath, err)
		}

		configFileError = err
	}

	// Finally, parse the remaining command line options again to ensure
	// they take precedence.
	flagParser := flags.NewParser(&cfg, flags.Default)
	if _, err := flagParser.Parse(); err != nil {
		return nil, err
	}

	// As soon as we're done parsing configuration options, ensure all
	// paths to directories and files are cleaned and expanded before
	// attempting to use them later on.
	cfg.FrostdDir = cleanAndExpandPath(cfg.FrostdDir)
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.PublicKeyFile = cleanAndExpandPath(cfg.PublicKeyFile)
	cfg.Signer.KeyFile = cleanAndExpandPath(cfg.Signer.KeyFile)
	cfg.Orchestrator.CommitteeFile = cleanAndExpandPath(
		cfg.Orchestrator.CommitteeFile,
	)

	// Exactly one role artifact selects what this daemon is.
	signerMode := cfg.Signer.KeyFile != ""
	orchestratorMode := cfg.Orchestrator.CommitteeFile != ""
	switch {
	case signerMode && orchestratorMode:
		return nil, fmt.Errorf("signer.keyfile and " +
			"orchestrator.committeefile are mutually exclusive")

	case !signerMode && !orchestratorMode:
		return nil, fmt.Errorf("either signer.keyfile or " +
			"orchestrator.committeefile must be set")
	}

	if cfg.PublicKeyFile == "" {
		return nil, fmt.Errorf("publickeyfile must be set")
	}

	cfg.netParams, err = networkParams(cfg.Network)
	if err != nil {
		return nil, err
	}

	// Initialize logging at the default level. The log file rotates out
	// of the chosen log directory.
	err = logRotator.InitLogRotator(
		&build.FileLoggerConfig{
			Compressor:     cfg.LogCompressor,
			MaxLogFiles:    cfg.MaxLogFiles,
			MaxLogFileSize: cfg.MaxLogFileSize,
		},
		filepath.Join(cfg.LogDir, defaultLogFilename),
	)
	if err != nil {
		return nil, fmt.Errorf("log rotation setup failed: %w", err)
	}

	// Parse, validate, and set debug log level(s).
	err = build.ParseAndSetDebugLevels(cfg.DebugLevel, daemonLoggers)
	if err != nil {
		return nil, err
	}

	// Warn about missing config file only after all other configuration
	// is done. This prevents the warning on help messages and invalid
	// options.
	if configFileError != nil {
		log.Warnf("%v", configFileError)
	}

	return &cfg, nil
}

// networkParams maps a network name to its chain parameters.
func networkParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNet3Params, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	case "signet":
		return &chaincfg.SigNetParams, nil
	case "simnet":
		return &chaincfg.SimNetParams, nil
	}

	return nil, fmt.Errorf("unknown network %q", network)
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		var homeDir string
		u, err := user.Current()
		if err == nil {
			homeDir = u.HomeDir
		} else {
			homeDir = os.Getenv("HOME")
		}

		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}
