package btcrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

const (
	// testTxid is the txid our stub node reports after a broadcast.
	testTxid = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b93" +
		"4ca495991b7852b855"

	// testSpentInput is an outpoint txid used in per-input sign errors.
	testSpentInput = "aa5ec1e3b0c44298fc1c149afbf4c8996fb92427ae41" +
		"e4649b934ca495991b78"
)

// pipelineNode fakes the three raw transaction RPCs. The hex handed to each
// method is recorded so tests can check that every pipeline step forwards
// the previous step's output untouched.
type pipelineNode struct {
	t *testing.T

	fundedHex string
	signedHex string

	gotFundHex string
	gotSignHex string
	gotSendHex string

	server *httptest.Server
}

func newPipelineNode(t *testing.T) *pipelineNode {
	// The stub wallet "funds" by attaching one input and a change
	// output, then "signs" by filling in witness data, the way the real
	// node would.
	prevHash := chainhash.HashH([]byte("vault utxo"))

	fundedTx := wire.NewMsgTx(2)
	fundedTx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: prevHash, Index: 3},
		Sequence:         wire.MaxTxInSequenceNum,
	})
	fundedTx.AddTxOut(newTestOutput(90_000))
	fundedTx.AddTxOut(newTestOutput(9_000))

	signedTx := fundedTx.Copy()
	signedTx.TxIn[0].Witness = wire.TxWitness{make([]byte, 64)}

	fundedHex, err := EncodeTx(fundedTx)
	require.NoError(t, err)
	signedHex, err := EncodeTx(signedTx)
	require.NoError(t, err)

	node := &pipelineNode{
		t:         t,
		fundedHex: fundedHex,
		signedHex: signedHex,
	}
	node.server = httptest.NewServer(http.HandlerFunc(node.handle))
	t.Cleanup(node.server.Close)

	return node
}

func (n *pipelineNode) client() *Client {
	return New(Config{Address: n.server.URL})
}

func (n *pipelineNode) handle(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}

	rawBody, err := io.ReadAll(r.Body)
	require.NoError(n.t, err)
	require.NoError(n.t, json.Unmarshal(rawBody, &req))

	require.NotEmpty(n.t, req.Params)
	var txHex string
	require.NoError(n.t, json.Unmarshal(req.Params[0], &txHex))

	switch req.Method {
	case "fundrawtransaction":
		n.gotFundHex = txHex
		fmt.Fprintf(w, `{"result":{"hex":%q,"fee":0.0001,`+
			`"changepos":1},"error":null,"id":"frostd"}`,
			n.fundedHex)

	case "signrawtransactionwithwallet":
		n.gotSignHex = txHex
		fmt.Fprintf(w, `{"result":{"hex":%q,"complete":true},`+
			`"error":null,"id":"frostd"}`, n.signedHex)

	case "sendrawtransaction":
		n.gotSendHex = txHex
		fmt.Fprintf(w, `{"result":%q,"error":null,"id":"frostd"}`,
			testTxid)

	default:
		n.t.Errorf("unexpected RPC method %s", req.Method)
	}
}

// TestPipelineChainsExactHex walks a transaction through fund, sign and
// broadcast, asserting that each step relays the node's previous answer byte
// for byte and that the reported txid survives parsing unchanged.
func TestPipelineChainsExactHex(t *testing.T) {
	t.Parallel()

	node := newPipelineNode(t)
	client := node.client()
	ctx := context.Background()

	fundedHex, fundedTx, err := client.FundTransaction(
		ctx, TxRefFromHex(zeroInputTxHex),
	)
	require.NoError(t, err)
	require.Equal(t, zeroInputTxHex, node.gotFundHex)
	require.Equal(t, node.fundedHex, fundedHex)
	require.Len(t, fundedTx.TxIn, 1)
	require.Len(t, fundedTx.TxOut, 2)

	signedHex, signedTx, err := client.SignTransaction(
		ctx, TxRefFromHex(fundedHex),
	)
	require.NoError(t, err)
	require.Equal(t, node.fundedHex, node.gotSignHex)
	require.Equal(t, node.signedHex, signedHex)

	// Signing only fills in witness data, so the txid is stable across
	// the two stages.
	require.Equal(t, fundedTx.TxHash(), signedTx.TxHash())

	txid, err := client.SendTransaction(ctx, TxRefFromHex(signedHex))
	require.NoError(t, err)
	require.Equal(t, node.signedHex, node.gotSendHex)
	require.Equal(t, testTxid, txid.String())
}

// TestFundTransactionStructuredTx asserts that a structured transaction is
// serialized exactly once, at the RPC boundary.
func TestFundTransactionStructuredTx(t *testing.T) {
	t.Parallel()

	node := newPipelineNode(t)

	tx, err := DecodeTx(zeroInputTxHex)
	require.NoError(t, err)

	fundedHex, _, err := node.client().FundTransaction(
		context.Background(), TxRefFromTx(tx),
	)
	require.NoError(t, err)
	require.Equal(t, zeroInputTxHex, node.gotFundHex)
	require.Equal(t, node.fundedHex, fundedHex)
}

// TestSignTransactionIncomplete asserts that a partial signing result is
// surfaced as an error carrying the node's per-input explanations.
func TestSignTransactionIncomplete(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		result  string
		wantErr string
	}{{
		name: "with input details",
		result: fmt.Sprintf(`{"hex":"00","complete":false,`+
			`"errors":[{"txid":%q,"vout":1,"error":`+
			`"Input not found or already spent"}]}`,
			testSpentInput),
		wantErr: testSpentInput + ":1: Input not found or already " +
			"spent",
	}, {
		name:    "without details",
		result:  `{"hex":"00","complete":false}`,
		wantErr: "no details from node",
	}}

	for _, tc := range testCases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server, _ := newStubNode(
				t, http.StatusOK, fmt.Sprintf(
					`{"result":%s,"error":null,`+
						`"id":"frostd"}`, tc.result,
				),
			)

			client := New(Config{Address: server.URL})
			_, _, err := client.SignTransaction(
				context.Background(),
				TxRefFromHex("deadbeef01"),
			)
			require.ErrorContains(
				t, err, "could not fully sign",
			)
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

// TestPipelineNodeError asserts that a node error delivered with a non-2xx
// status still surfaces as a protocol error with the node's code and
// message.
func TestPipelineNodeError(t *testing.T) {
	t.Parallel()

	server, _ := newStubNode(
		t, http.StatusInternalServerError,
		`{"result":null,"error":{"code":-6,"message":`+
			`"Insufficient funds"},"id":"frostd"}`,
	)

	client := New(Config{Address: server.URL})
	_, _, err := client.FundTransaction(
		context.Background(), TxRefFromHex(zeroInputTxHex),
	)

	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	require.Equal(t, -6, rpcErr.Code)
	require.Equal(t, "Insufficient funds", rpcErr.Message)
	require.ErrorContains(t, err, "fundrawtransaction")
}

// TestPipelineMalformedResults asserts that result payloads of the wrong
// shape are rejected rather than silently zeroed.
func TestPipelineMalformedResults(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		body    string
		call    func(*Client) error
		wantErr string
	}{{
		name: "fund result not an object",
		body: `{"result":"deadbeef","error":null,"id":"frostd"}`,
		call: func(c *Client) error {
			_, _, err := c.FundTransaction(
				context.Background(), TxRefFromHex("00"),
			)
			return err
		},
		wantErr: "malformed",
	}, {
		name: "fund result carries undecodable tx",
		body: `{"result":{"hex":"beef"},"error":null,"id":"frostd"}`,
		call: func(c *Client) error {
			_, _, err := c.FundTransaction(
				context.Background(), TxRefFromHex("00"),
			)
			return err
		},
		wantErr: "undecodable",
	}, {
		name: "send result not a string",
		body: `{"result":{"txid":"00"},"error":null,"id":"frostd"}`,
		call: func(c *Client) error {
			_, err := c.SendTransaction(
				context.Background(), TxRefFromHex("00"),
			)
			return err
		},
		wantErr: "malformed",
	}, {
		name: "send result not a txid",
		body: `{"result":"notahash","error":null,"id":"frostd"}`,
		call: func(c *Client) error {
			_, err := c.SendTransaction(
				context.Background(), TxRefFromHex("00"),
			)
			return err
		},
		wantErr: "invalid txid",
	}}

	for _, tc := range testCases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server, _ := newStubNode(t, http.StatusOK, tc.body)
			client := New(Config{Address: server.URL})

			err := tc.call(client)
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}
