package committee

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/frostvault/frostd/frost"
	"github.com/stretchr/testify/require"
)

// testNodeConfig deals a fresh 2-of-3 committee and returns a node config
// for its first member, bound to an ephemeral port.
func testNodeConfig(t *testing.T) *NodeConfig {
	t.Helper()

	shares, pubPkg, err := frost.GenerateShares(3, 2)
	require.NoError(t, err)

	return &NodeConfig{
		ListenAddr:    "127.0.0.1:0",
		Share:         shares[0],
		PublicPackage: pubPkg,
		ChainParams:   &chaincfg.RegressionNetParams,
	}
}

// TestNewNodeValidation asserts that mixed or incomplete artifacts are
// rejected at construction.
func TestNewNodeValidation(t *testing.T) {
	t.Parallel()

	t.Run("missing share", func(t *testing.T) {
		t.Parallel()

		cfg := testNodeConfig(t)
		cfg.Share = nil

		_, err := NewNode(cfg)
		require.ErrorContains(t, err, "secret share")
	})

	t.Run("missing public package", func(t *testing.T) {
		t.Parallel()

		cfg := testNodeConfig(t)
		cfg.PublicPackage = nil

		_, err := NewNode(cfg)
		require.ErrorContains(t, err, "public key package")
	})

	t.Run("artifacts from different dealings", func(t *testing.T) {
		t.Parallel()

		cfg := testNodeConfig(t)
		_, otherPkg, err := frost.GenerateShares(3, 2)
		require.NoError(t, err)
		cfg.PublicPackage = otherPkg

		_, err = NewNode(cfg)
		require.ErrorContains(t, err, "disagree on the group key")
	})

	t.Run("member missing from package", func(t *testing.T) {
		t.Parallel()

		cfg := testNodeConfig(t)
		delete(cfg.PublicPackage.VerificationShares, cfg.Share.ID)

		_, err := NewNode(cfg)
		require.ErrorIs(t, err, frost.ErrUnknownMember)
	})

	t.Run("verification share mismatch", func(t *testing.T) {
		t.Parallel()

		cfg := testNodeConfig(t)
		cfg.PublicPackage.VerificationShares[cfg.Share.ID] =
			cfg.PublicPackage.VerificationShares[2]

		_, err := NewNode(cfg)
		require.ErrorContains(t, err, "does not match")
	})

	t.Run("defaults applied", func(t *testing.T) {
		t.Parallel()

		cfg := testNodeConfig(t)
		cfg.ListenAddr = ""
		cfg.ChainParams = nil

		node, err := NewNode(cfg)
		require.NoError(t, err)
		require.Equal(t, DefaultNodeAddress, cfg.ListenAddr)

		// Mainnet taproot addresses carry the bc1p prefix.
		require.True(t, strings.HasPrefix(
			node.GroupAddress().String(), "bc1p",
		))
	})
}

// TestNodeServes boots a node on an ephemeral port and exercises its HTTP
// surface along with Start/Stop idempotency.
func TestNodeServes(t *testing.T) {
	t.Parallel()

	cfg := testNodeConfig(t)
	cfg.SignHandler = http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("round played"))
		},
	)

	node, err := NewNode(cfg)
	require.NoError(t, err)

	require.NoError(t, node.Start())
	require.NoError(t, node.Start(), "second start must be a no-op")

	baseURL := fmt.Sprintf("http://%s", node.Addr())

	resp, err := http.Get(baseURL + "/healthz")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"status":"ok"}`, string(body))

	resp, err = http.Post(baseURL+"/v1/sign", "application/json", nil)
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "round played", string(body))

	require.NoError(t, node.Stop())
	require.NoError(t, node.Stop(), "second stop must be a no-op")

	// The listener is gone after Stop.
	_, err = http.Get(baseURL + "/healthz")
	require.Error(t, err)
}

// TestNodeSignRouteUnwired asserts the signing route reports as not
// implemented when no handler is injected.
func TestNodeSignRouteUnwired(t *testing.T) {
	t.Parallel()

	node, err := NewNode(testNodeConfig(t))
	require.NoError(t, err)

	require.NoError(t, node.Start())
	t.Cleanup(func() {
		require.NoError(t, node.Stop())
	})

	resp, err := http.Post(
		fmt.Sprintf("http://%s/v1/sign", node.Addr()),
		"application/json", nil,
	)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	require.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}
