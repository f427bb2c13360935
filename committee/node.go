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
	"github.com/frostvault/frostd/frost"
	"github.com/frostvault/frostd/vaultkeys"
	"github.com/go-chi/chi/v5"
)

const (
	// DefaultNodeAddress is where a committee node listens when the
	// config does not say otherwise. The port matches the first
	// placeholder address the ceremony hands out.
	DefaultNodeAddress = "127.0.0.1:8890"

	// serverShutdownTimeout bounds how long Stop waits for in-flight
	// requests to finish.
	serverShutdownTimeout = 5 * time.Second
)

// NodeConfig bundles everything one committee member's service needs.
type NodeConfig struct {
	// ListenAddr is the host:port to bind. Empty means
	// DefaultNodeAddress.
	ListenAddr string

	// Share is this member's secret share, loaded from its key file.
	Share *frost.SecretShare

	// PublicPackage is the committee's shared public key material.
	PublicPackage *frost.PublicPackage

	// SignHandler answers signing round requests on the signing route.
	// Nil serves 501 there, for deployments that drive rounds out of
	// band.
	SignHandler http.Handler

	// ChainParams names the network used to render the group key as a
	// Taproot address in startup diagnostics. Nil means mainnet.
	ChainParams *chaincfg.Params
}

// Node is the service shell of a single committee member. It holds the
// member's secret share, answers health probes, and routes signing round
// requests to the configured handler.
type Node struct {
	started uint32 // to be used atomically
	stopped uint32 // to be used atomically

	cfg *NodeConfig

	// groupAddr is the Taproot address of the committee's group key,
	// derived once at construction as a startup diagnostic.
	groupAddr *btcutil.AddressTaproot

	server   *http.Server
	listener net.Listener

	wg sync.WaitGroup
}

// NewNode validates the loaded artifacts against each other and prepares a
// node for Start.
func NewNode(cfg *NodeConfig) (*Node, error) {
	if cfg.Share == nil {
		return nil, errors.New("committee node requires a secret " +
			"share")
	}
	if cfg.PublicPackage == nil {
		return nil, errors.New("committee node requires the public " +
			"key package")
	}

	// The share and the public package must come from the same dealing.
	if !cfg.Share.GroupKey.IsEqual(cfg.PublicPackage.GroupKey) {
		return nil, errors.New("secret share and public key package " +
			"disagree on the group key")
	}

	verShare, err := cfg.PublicPackage.VerificationShare(cfg.Share.ID)
	if err != nil {
		return nil, err
	}
	if !verShare.IsEqual(cfg.Share.PublicShare) {
		return nil, fmt.Errorf("verification share of member %d "+
			"does not match the secret share", cfg.Share.ID)
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultNodeAddress
	}
	if cfg.ChainParams == nil {
		cfg.ChainParams = &chaincfg.MainNetParams
	}

	// If the group key cannot be rendered as a Taproot address, the
	// committee cannot custody anything and must not pretend to.
	groupAddr, err := vaultkeys.TaprootAddress(
		cfg.PublicPackage.GroupKey, cfg.ChainParams,
	)
	if err != nil {
		return nil, err
	}

	node := &Node{
		cfg:       cfg,
		groupAddr: groupAddr,
	}
	node.server = &http.Server{
		Handler: node.router(),
	}

	return node, nil
}

// router builds the node's HTTP surface.
func (n *Node) router() http.Handler {
	mux := chi.NewRouter()
	mux.Get("/healthz", n.handleHealth)
	mux.Post("/v1/sign", n.handleSign)

	return mux
}

func (n *Node) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (n *Node) handleSign(w http.ResponseWriter, r *http.Request) {
	if n.cfg.SignHandler == nil {
		http.Error(
			w, "signing rounds not wired",
			http.StatusNotImplemented,
		)
		return
	}

	n.cfg.SignHandler.ServeHTTP(w, r)
}

// Start binds the listen address and begins serving. It is idempotent.
func (n *Node) Start() error {
	if !atomic.CompareAndSwapUint32(&n.started, 0, 1) {
		return nil
	}

	listener, err := net.Listen("tcp", n.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("unable to listen on %s: %w",
			n.cfg.ListenAddr, err)
	}
	n.listener = listener

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		err := n.server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Committee node server exited: %v", err)
		}
	}()

	log.Infof("Committee node started: member=%d, listen=%v, "+
		"group_address=%v", n.cfg.Share.ID, listener.Addr(),
		n.groupAddr)

	return nil
}

// Stop shuts the server down and waits for the serve loop to exit. It is
// idempotent.
func (n *Node) Stop() error {
	if !atomic.CompareAndSwapUint32(&n.stopped, 0, 1) {
		return nil
	}

	log.Infof("Committee node of member %d shutting down...",
		n.cfg.Share.ID)

	ctx, cancel := context.WithTimeout(
		context.Background(), serverShutdownTimeout,
	)
	defer cancel()

	if err := n.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("unable to stop node server: %w", err)
	}

	n.wg.Wait()

	log.Infof("Committee node of member %d shutdown complete",
		n.cfg.Share.ID)

	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (n *Node) Addr() net.Addr {
	if n.listener == nil {
		return nil
	}

	return n.listener.Addr()
}

// GroupAddress returns the Taproot address of the committee's group key on
// the configured network.
func (n *Node) GroupAddress() *btcutil.AddressTaproot {
	return n.groupAddr
}
