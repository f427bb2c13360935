package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/frostvault/frostd/btcrpc"
	"github.com/frostvault/frostd/build"
	"github.com/frostvault/frostd/committee"
	"github.com/frostvault/frostd/frost"
	"github.com/frostvault/frostd/signal"
	"github.com/frostvault/frostd/vaultkeys"
	flags "github.com/jessevdk/go-flags"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// service is the role frostd runs, either a committee member node or the
// orchestrator.
type service interface {
	Start() error
	Stop() error
}

func main() {
	// Load the configuration, parse any command line options, and set up
	// logging. The signal package has already armed its interrupt handler
	// at this point.
	cfg, err := loadConfig()
	if err != nil {
		var flagErr *flags.Error
		if !errors.As(err, &flagErr) || flagErr.Type != flags.ErrHelp {
			// Print error if not due to help request.
			err = fmt.Errorf("failed to load config: %w", err)
			_, _ = fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		// Help was requested, exit normally.
		os.Exit(0)
	}

	// Call the "real" main in a nested manner so the defers will properly
	// be executed in the case of a graceful shutdown.
	if err := frostdMain(cfg); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// frostdMain runs the configured role until an interrupt or an internal
// shutdown request arrives.
func frostdMain(cfg *Config) error {
	defer func() {
		_ = logRotator.Close()
	}()

	log.Infof("Version: %v, role=%v, network=%v", build.Version(),
		roleName(cfg), cfg.Network)

	// Derive the fixed deployment addresses up front. Failing here means
	// the binary carries broken key constants, and nothing that follows
	// can be trusted.
	protocolKey, err := vaultkeys.ProtocolPubKey()
	if err != nil {
		return fmt.Errorf("protocol key: %w", err)
	}
	protocolAddr, err := vaultkeys.TaprootAddress(
		protocolKey, cfg.netParams,
	)
	if err != nil {
		return fmt.Errorf("protocol key: %w", err)
	}

	feeKey, err := vaultkeys.FeePubKey()
	if err != nil {
		return fmt.Errorf("fee key: %w", err)
	}
	feeAddr, err := vaultkeys.TaprootAddress(feeKey, cfg.netParams)
	if err != nil {
		return fmt.Errorf("fee key: %w", err)
	}

	log.Infof("Vault pays to %v, fees to %v", protocolAddr, feeAddr)

	// Both roles need the committee's shared public key material.
	pubPkg, err := committee.LoadPublicPackage(cfg.PublicKeyFile)
	if err != nil {
		return fmt.Errorf("unable to load public key package: %w", err)
	}

	var svc service
	if cfg.Signer.KeyFile != "" {
		svc, err = buildSignerNode(cfg, pubPkg)
	} else {
		svc, err = buildOrchestrator(cfg, pubPkg)
	}
	if err != nil {
		return err
	}

	if err := svc.Start(); err != nil {
		return err
	}

	// Wait for an interrupt signal or an internal shutdown request, then
	// wind the service down.
	<-signal.ShutdownChannel()
	log.Info("Shutdown requested, stopping")

	return svc.Stop()
}

// roleName names the role selected by the config for log output.
func roleName(cfg *Config) string {
	if cfg.Signer.KeyFile != "" {
		return "signer"
	}

	return "orchestrator"
}

// buildSignerNode loads the member's secret share and assembles the
// committee member service around it.
func buildSignerNode(cfg *Config, pubPkg *frost.PublicPackage) (service,
	error) {

	share, err := committee.LoadSecretShare(cfg.Signer.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("unable to load secret share: %w", err)
	}

	log.Infof("Loaded secret share of member %d", share.ID)

	return committee.NewNode(&committee.NodeConfig{
		ListenAddr:    cfg.Signer.ListenAddr,
		Share:         share,
		PublicPackage: pubPkg,
		ChainParams:   cfg.netParams,
	})
}

// buildOrchestrator loads the committee roster and assembles the
// coordinating service, including its bitcoind client and the reachability
// probe watching it.
func buildOrchestrator(cfg *Config, pubPkg *frost.PublicPackage) (service,
	error) {

	committeeCfg, err := committee.LoadConfig(cfg.Orchestrator.CommitteeFile)
	if err != nil {
		return nil, fmt.Errorf("unable to load committee config: %w",
			err)
	}

	log.Infof("Coordinating committee of %d members, threshold %d",
		len(committeeCfg.Members), committeeCfg.Threshold)

	client := btcrpc.New(btcrpc.Config{
		Address: cfg.Bitcoin.Address,
		Wallet:  strOption(cfg.Bitcoin.Wallet),
		Auth:    strOption(cfg.Bitcoin.Auth),
		Version: strOption(cfg.Bitcoin.Version),
	})

	return committee.NewOrchestrator(&committee.OrchestratorConfig{
		ListenAddr:    cfg.Orchestrator.ListenAddr,
		Committee:     committeeCfg,
		PublicPackage: pubPkg,
		Bitcoin:       client,
		ChainParams:   cfg.netParams,
		HealthCheck: &committee.CheckConfig{
			Interval: cfg.HealthCheck.Interval,
			Timeout:  cfg.HealthCheck.Timeout,
			Backoff:  cfg.HealthCheck.Backoff,
			Attempts: cfg.HealthCheck.Attempts,
		},
	})
}

// strOption wraps a possibly empty flag value, where empty means unset.
func strOption(s string) fn.Option[string] {
	if s == "" {
		return fn.None[string]()
	}

	return fn.Some(s)
}
