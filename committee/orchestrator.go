package committee

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/frostvault/frostd/btcrpc"
	"github.com/frostvault/frostd/frost"
	"github.com/frostvault/frostd/signal"
	"github.com/frostvault/frostd/vaultkeys"
	"github.com/go-chi/chi/v5"
	"github.com/lightningnetwork/lnd/healthcheck"
	"github.com/lightningnetwork/lnd/ticker"
)

// DefaultOrchestratorAddress is where the orchestrator listens when the
// config does not say otherwise.
const DefaultOrchestratorAddress = "127.0.0.1:8880"

// CheckConfig is the retry policy of the bitcoind reachability probe.
type CheckConfig struct {
	// Interval is how often the probe runs.
	Interval time.Duration

	// Timeout is how long a single probe may take.
	Timeout time.Duration

	// Backoff is the wait between retries of a failed probe.
	Backoff time.Duration

	// Attempts is how many times a probe may fail before the check gives
	// up and shuts the orchestrator down.
	Attempts int
}

// DefaultCheckConfig returns the production policy for the bitcoind probe.
func DefaultCheckConfig() *CheckConfig {
	return &CheckConfig{
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
		Backoff:  30 * time.Second,
		Attempts: 3,
	}
}

// OrchestratorConfig bundles the dependencies of the coordinating service.
type OrchestratorConfig struct {
	// ListenAddr is the host:port to bind. Empty means
	// DefaultOrchestratorAddress.
	ListenAddr string

	// Committee is the roster and threshold to coordinate.
	Committee *Config

	// PublicPackage holds the group key the committee signs under.
	PublicPackage *frost.PublicPackage

	// Bitcoin is the node client driving the transaction pipeline.
	Bitcoin *btcrpc.Client

	// SpendHandler answers spend authorization requests on the spend
	// route. Nil serves 501 there.
	SpendHandler http.Handler

	// ChainParams names the network used to render the group key as a
	// Taproot address in startup diagnostics. Nil means mainnet.
	ChainParams *chaincfg.Params

	// HealthCheck tunes the bitcoind reachability probe. Nil takes
	// DefaultCheckConfig.
	HealthCheck *CheckConfig

	// Shutdown is invoked when the bitcoind probe exhausts its attempts.
	// Nil requests a process shutdown through the signal package.
	Shutdown func(format string, params ...interface{})
}

// Orchestrator is the coordinating service shell. It validates the committee
// artifacts before serving, answers health probes, routes spend requests to
// the configured handler, and watches bitcoind reachability in the
// background. A spend flow without a reachable node can only fail half way
// through, so losing the node takes the whole service down.
type Orchestrator struct {
	started uint32 // to be used atomically
	stopped uint32 // to be used atomically

	cfg *OrchestratorConfig

	groupAddr *btcutil.AddressTaproot

	monitor *healthcheck.Monitor

	server   *http.Server
	listener net.Listener

	wg sync.WaitGroup
}

// NewOrchestrator validates the committee artifacts and prepares the
// service. An unusable committee config, in particular a zero threshold,
// fails here so nothing ever serves on top of it.
func NewOrchestrator(cfg *OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Committee == nil {
		return nil, errors.New("orchestrator requires a committee " +
			"config")
	}
	if err := cfg.Committee.Validate(); err != nil {
		return nil, err
	}

	if cfg.PublicPackage == nil {
		return nil, errors.New("orchestrator requires the public " +
			"key package")
	}
	if cfg.Bitcoin == nil {
		return nil, errors.New("orchestrator requires a bitcoin " +
			"node client")
	}

	// Every member of the roster needs a verification share, else its
	// partial signatures could never be checked.
	for id := range cfg.Committee.Members {
		if _, err := cfg.PublicPackage.VerificationShare(id); err != nil {
			return nil, err
		}
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultOrchestratorAddress
	}
	if cfg.ChainParams == nil {
		cfg.ChainParams = &chaincfg.MainNetParams
	}
	if cfg.HealthCheck == nil {
		cfg.HealthCheck = DefaultCheckConfig()
	}
	if cfg.Shutdown == nil {
		cfg.Shutdown = func(format string, params ...interface{}) {
			log.Criticalf("Health check failed, requesting "+
				"shutdown: "+format, params...)
			signal.RequestShutdown()
		}
	}

	groupAddr, err := vaultkeys.TaprootAddress(
		cfg.PublicPackage.GroupKey, cfg.ChainParams,
	)
	if err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:       cfg,
		groupAddr: groupAddr,
	}

	o.monitor = healthcheck.NewMonitor(&healthcheck.Config{
		Checks: []*healthcheck.Observation{{
			Check:    o.checkBitcoind,
			Interval: ticker.New(cfg.HealthCheck.Interval),
			Timeout:  cfg.HealthCheck.Timeout,
			Backoff:  cfg.HealthCheck.Backoff,
			Attempts: cfg.HealthCheck.Attempts,

			// The healthcheck package only defaults these
			// callbacks when an Observation is built through
			// NewObservation; a literal must supply them itself
			// or the monitor panics on a nil callback.
			OnSuccess: func() {},
			OnFailure: func() {},
		}},
		Shutdown: cfg.Shutdown,
	})

	o.server = &http.Server{
		Handler: o.router(),
	}

	return o, nil
}

// checkBitcoind probes the node with a getblockcount round trip, reporting
// the outcome on the returned channel.
func (o *Orchestrator) checkBitcoind() chan error {
	errChan := make(chan error, 1)
	go func() {
		ctx, cancel := context.WithTimeout(
			context.Background(), o.cfg.HealthCheck.Timeout,
		)
		defer cancel()

		rawBody, err := o.cfg.Bitcoin.Call(ctx, "getblockcount", nil)
		if err == nil {
			_, err = btcrpc.ParseReply(rawBody)
		}
		if err != nil {
			log.Warnf("Bitcoin node probe failed: %v", err)
		}

		errChan <- err
	}()

	return errChan
}

// router builds the orchestrator's HTTP surface.
func (o *Orchestrator) router() http.Handler {
	mux := chi.NewRouter()
	mux.Get("/healthz", o.handleHealth)
	mux.Post("/v1/spend", o.handleSpend)

	return mux
}

func (o *Orchestrator) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (o *Orchestrator) handleSpend(w http.ResponseWriter, r *http.Request) {
	if o.cfg.SpendHandler == nil {
		http.Error(
			w, "spend flow not wired", http.StatusNotImplemented,
		)
		return
	}

	o.cfg.SpendHandler.ServeHTTP(w, r)
}

// Start launches the health monitor and begins serving. It is idempotent.
func (o *Orchestrator) Start() error {
	if !atomic.CompareAndSwapUint32(&o.started, 0, 1) {
		return nil
	}

	if err := o.monitor.Start(); err != nil {
		return fmt.Errorf("unable to start health monitor: %w", err)
	}

	listener, err := net.Listen("tcp", o.cfg.ListenAddr)
	if err != nil {
		if stopErr := o.monitor.Stop(); stopErr != nil {
			log.Warnf("Unable to stop health monitor: %v",
				stopErr)
		}

		return fmt.Errorf("unable to listen on %s: %w",
			o.cfg.ListenAddr, err)
	}
	o.listener = listener

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		err := o.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Orchestrator server exited: %v", err)
		}
	}()

	log.Infof("Orchestrator started: committee=%d-of-%d, listen=%v, "+
		"group_address=%v", o.cfg.Committee.Threshold,
		len(o.cfg.Committee.Members), listener.Addr(), o.groupAddr)

	return nil
}

// Stop halts the health monitor, shuts the server down, and waits for the
// serve loop to exit. It is idempotent.
func (o *Orchestrator) Stop() error {
	if !atomic.CompareAndSwapUint32(&o.stopped, 0, 1) {
		return nil
	}

	log.Infof("Orchestrator shutting down...")

	if atomic.LoadUint32(&o.started) == 1 {
		if err := o.monitor.Stop(); err != nil {
			log.Warnf("Unable to stop health monitor: %v", err)
		}
	}

	ctx, cancel := context.WithTimeout(
		context.Background(), serverShutdownTimeout,
	)
	defer cancel()

	if err := o.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("unable to stop orchestrator server: %w",
			err)
	}

	o.wg.Wait()

	log.Infof("Orchestrator shutdown complete")

	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (o *Orchestrator) Addr() net.Addr {
	if o.listener == nil {
		return nil
	}

	return o.listener.Addr()
}

// GroupAddress returns the Taproot address of the committee's group key on
// the configured network.
func (o *Orchestrator) GroupAddress() *btcutil.AddressTaproot {
	return o.groupAddr
}
