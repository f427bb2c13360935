package btcrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/davecgh/go-spew/spew"
)

// marshalParams serializes positional RPC parameters.
func marshalParams(params ...interface{}) ([]json.RawMessage, error) {
	rawParams := make([]json.RawMessage, 0, len(params))
	for _, param := range params {
		rawParam, err := json.Marshal(param)
		if err != nil {
			return nil, fmt.Errorf("unable to encode param %v: %w",
				param, err)
		}

		rawParams = append(rawParams, rawParam)
	}

	return rawParams, nil
}

// fundResult is the response payload of fundrawtransaction.
type fundResult struct {
	Hex       string  `json:"hex"`
	Fee       float64 `json:"fee"`
	ChangePos int     `json:"changepos"`
}

// FundTransaction asks the node's wallet to attach inputs and a change
// output to the given transaction. The node selects the coins and computes
// the fee, so the input transaction typically carries outputs only.
//
// The funded transaction is returned both as the node's hex, which the next
// pipeline stage forwards byte for byte, and in decoded form for callers
// that want to inspect it.
func (c *Client) FundTransaction(ctx context.Context, tx TxRef) (string,
	*wire.MsgTx, error) {

	txHex, err := tx.serialize()
	if err != nil {
		return "", nil, err
	}

	params, err := marshalParams(txHex)
	if err != nil {
		return "", nil, err
	}

	rawBody, err := c.Call(ctx, "fundrawtransaction", params)
	if err != nil {
		return "", nil, err
	}

	result, err := ParseReply(rawBody)
	if err != nil {
		return "", nil, fmt.Errorf("fundrawtransaction: %w", err)
	}

	var funded fundResult
	if err := json.Unmarshal(result, &funded); err != nil {
		return "", nil, fmt.Errorf("malformed fundrawtransaction "+
			"result %q: %w", result, err)
	}

	fundedTx, err := DecodeTx(funded.Hex)
	if err != nil {
		return "", nil, fmt.Errorf("node returned undecodable "+
			"funded tx: %w", err)
	}

	log.Debugf("Node funded tx %v with fee=%v, changepos=%v",
		fundedTx.TxHash(), funded.Fee, funded.ChangePos)
	log.Tracef("Funded tx: %v", newLogClosure(func() string {
		return spew.Sdump(fundedTx)
	}))

	return funded.Hex, fundedTx, nil
}

// signError is one per-input failure reported by the node while signing.
type signError struct {
	TxID  string `json:"txid"`
	Vout  uint32 `json:"vout"`
	Error string `json:"error"`
}

// signResult is the response payload of signrawtransactionwithwallet.
type signResult struct {
	Hex      string      `json:"hex"`
	Complete bool        `json:"complete"`
	Errors   []signError `json:"errors"`
}

// SignTransaction asks the node's wallet to sign every input it has keys
// for. A partially signed result is an error: the vault's flows need fully
// signed transactions, and the node's per-input explanations tell the
// operator which input was left unsigned.
//
// Like FundTransaction, the signed transaction is returned as the node's
// hex plus its decoded form.
func (c *Client) SignTransaction(ctx context.Context, tx TxRef) (string,
	*wire.MsgTx, error) {

	txHex, err := tx.serialize()
	if err != nil {
		return "", nil, err
	}

	params, err := marshalParams(txHex)
	if err != nil {
		return "", nil, err
	}

	rawBody, err := c.Call(ctx, "signrawtransactionwithwallet", params)
	if err != nil {
		return "", nil, err
	}

	result, err := ParseReply(rawBody)
	if err != nil {
		return "", nil, fmt.Errorf("signrawtransactionwithwallet: %w",
			err)
	}

	var signed signResult
	if err := json.Unmarshal(result, &signed); err != nil {
		return "", nil, fmt.Errorf("malformed "+
			"signrawtransactionwithwallet result %q: %w",
			result, err)
	}

	if !signed.Complete {
		var details []string
		for _, signErr := range signed.Errors {
			details = append(details, fmt.Sprintf("%s:%d: %s",
				signErr.TxID, signErr.Vout, signErr.Error))
		}
		if len(details) == 0 {
			details = append(details, "no details from node")
		}

		return "", nil, fmt.Errorf("node could not fully sign "+
			"tx: %s", strings.Join(details, "; "))
	}

	signedTx, err := DecodeTx(signed.Hex)
	if err != nil {
		return "", nil, fmt.Errorf("node returned undecodable "+
			"signed tx: %w", err)
	}

	log.Debugf("Node fully signed tx %v", signedTx.TxHash())
	log.Tracef("Signed tx: %v", newLogClosure(func() string {
		return spew.Sdump(signedTx)
	}))

	return signed.Hex, signedTx, nil
}

// SendTransaction broadcasts the given transaction and returns its txid as
// reported by the node.
func (c *Client) SendTransaction(ctx context.Context, tx TxRef) (
	*chainhash.Hash, error) {

	txHex, err := tx.serialize()
	if err != nil {
		return nil, err
	}

	params, err := marshalParams(txHex)
	if err != nil {
		return nil, err
	}

	rawBody, err := c.Call(ctx, "sendrawtransaction", params)
	if err != nil {
		return nil, err
	}

	result, err := ParseReply(rawBody)
	if err != nil {
		return nil, fmt.Errorf("sendrawtransaction: %w", err)
	}

	var txidStr string
	if err := json.Unmarshal(result, &txidStr); err != nil {
		return nil, fmt.Errorf("malformed sendrawtransaction "+
			"result %q: %w", result, err)
	}

	txid, err := chainhash.NewHashFromStr(txidStr)
	if err != nil {
		return nil, fmt.Errorf("node returned invalid txid %q: %w",
			txidStr, err)
	}

	log.Infof("Broadcast tx %v", txid)

	return txid, nil
}
