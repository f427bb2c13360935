// Package btcrpc is a purpose-built JSON-RPC 1.0 client for the handful of
// bitcoind calls the vault needs: funding, signing, and broadcasting raw
// transactions. It is deliberately not a generic RPC client. Generic clients
// throw away the response body when the HTTP status is unsuccessful, but
// bitcoind routinely answers non-2xx requests with a JSON-RPC error body
// whose message is exactly what the operator of a custodial signer needs to
// see. This client therefore hands back the raw body no matter what the
// status line said, and leaves interpretation to the per-method callers.
package btcrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

const (
	// DefaultAddress is the development node endpoint used when the
	// config does not name one.
	DefaultAddress = "http://127.0.0.1:18331"

	// defaultRequestTimeout bounds every RPC exchange. The node is
	// assumed to be local or near-local, so a slow answer is a failure,
	// not something to wait out.
	defaultRequestTimeout = 2 * time.Second

	// requestID is the id field sent with every request. Responses are
	// matched to requests by the HTTP exchange itself, so the value is an
	// opaque placeholder.
	requestID = "frostd"
)

// Config describes the node endpoint a Client talks to. It is immutable
// after the client is constructed; a process that needs to talk to two nodes
// constructs two clients.
type Config struct {
	// Address is the URL of the bitcoind JSON-RPC endpoint. Empty means
	// DefaultAddress.
	Address string

	// Wallet optionally routes requests to a named bitcoind wallet via
	// the /wallet/<name> endpoint.
	Wallet fn.Option[string]

	// Auth optionally holds the "user:password" pair for HTTP basic
	// authentication. Absent means unauthenticated requests.
	Auth fn.Option[string]

	// Version optionally pins the jsonrpc version tag in the request
	// envelope. When absent the field is omitted entirely, since some
	// node versions reject a tag they do not expect.
	Version fn.Option[string]
}

// Client performs request/response exchanges against one bitcoind endpoint.
// Calls are independent and stateless, so a single client may be used
// concurrently.
type Client struct {
	cfg Config

	address    string
	httpClient *http.Client
}

// New creates a client for the given node config.
func New(cfg Config) *Client {
	address := strings.TrimSuffix(cfg.Address, "/")
	if address == "" {
		address = DefaultAddress
	}

	return &Client{
		cfg:     cfg,
		address: address,
		httpClient: &http.Client{
			Timeout: defaultRequestTimeout,
		},
	}
}

// request is the JSON-RPC 1.0 request envelope.
type request struct {
	Version string            `json:"jsonrpc,omitempty"`
	ID      string            `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

// Call invokes the named RPC method with the given pre-serialized positional
// parameters and returns the raw response body.
//
// The body is returned verbatim regardless of the HTTP status code: an error
// status with a readable JSON-RPC body is a successful exchange at this
// layer, and ParseReply turns the embedded error object into an *RPCError.
// Only failures to complete the exchange at all (unreachable node, timeout,
// unreadable body) are errors here.
func (c *Client) Call(ctx context.Context, method string,
	params []json.RawMessage) ([]byte, error) {

	if params == nil {
		params = []json.RawMessage{}
	}

	payload, err := json.Marshal(&request{
		Version: c.cfg.Version.UnwrapOr(""),
		ID:      requestID,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to encode %s request: %w",
			method, err)
	}

	url := c.url()
	log.Debugf("Sending %s request to %s: %s", method, url, payload)

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, url, bytes.NewReader(payload),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create %s request: %w",
			method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.cfg.Auth.WhenSome(func(auth string) {
		user, pass, _ := strings.Cut(auth, ":")
		req.SetBasicAuth(user, pass)
	})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to reach bitcoin node: %w",
			err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read node response: %w",
			err)
	}

	log.Debugf("Node answered %s with status %v: %s", method,
		resp.Status, rawBody)

	return rawBody, nil
}

// url returns the endpoint requests are posted to, routing through the
// configured wallet if there is one.
func (c *Client) url() string {
	wallet := c.cfg.Wallet.UnwrapOr("")
	if wallet == "" {
		return c.address
	}

	return fmt.Sprintf("%s/wallet/%s", c.address, wallet)
}
