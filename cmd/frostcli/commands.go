package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/frostvault/frostd/btcrpc"
	"github.com/frostvault/frostd/build"
	"github.com/frostvault/frostd/committee"
	"github.com/urfave/cli"
)

// actionDecorator is used to add additional information and error handling
// to command actions.
func actionDecorator(f func(*cli.Context) error) func(*cli.Context) error {
	return func(c *cli.Context) error {
		if err := f(c); err != nil {
			fatal(err)
		}

		return nil
	}
}

func printJSON(resp interface{}) {
	b, err := json.MarshalIndent(resp, "", "    ")
	if err != nil {
		fatal(err)
	}

	fmt.Println(string(b))
}

var generateCommitteeCommand = cli.Command{
	Name:     "generatecommittee",
	Category: "Ceremony",
	Usage:    "Run the threshold key ceremony for a new committee.",
	ArgsUsage: "--members=N --threshold=T [--output=DIR]",
	Description: `
	Generate a fresh t-of-n FROST committee and write its artifacts into
	the output directory: one secret share file per member (key-0.json,
	key-1.json, ...), the shared public key package, and the committee
	config with placeholder member addresses.

	The group public key is guaranteed to have an even y coordinate so
	its x-only form matches the Taproot outputs derived from it; odd-y
	dealings are discarded and redealt from fresh randomness.

	Hand each key-<ordinal>.json to exactly one member over a secure
	channel and then delete the local copy. Re-running the ceremony
	produces an unrelated key and invalidates every address funded under
	the previous one.
	`,
	Flags: []cli.Flag{
		cli.UintFlag{
			Name:  "members",
			Usage: "the committee size n",
		},
		cli.UintFlag{
			Name: "threshold",
			Usage: "how many members t must collaborate to " +
				"produce a signature",
		},
		cli.StringFlag{
			Name:      "output",
			Value:     ".",
			Usage:     "the directory to write the artifacts into",
			TakesFile: true,
		},
	},
	Action: actionDecorator(generateCommittee),
}

func generateCommittee(ctx *cli.Context) error {
	members := ctx.Uint("members")
	threshold := ctx.Uint("threshold")
	if members == 0 || threshold == 0 {
		return cli.ShowCommandHelp(ctx, "generatecommittee")
	}
	if members > 0xffff || threshold > 0xffff {
		return fmt.Errorf("committee size out of range")
	}

	ceremony := &committee.Ceremony{
		Members:   uint16(members),
		Threshold: uint16(threshold),
		OutputDir: ctx.String("output"),
	}
	result, err := ceremony.Run()
	if err != nil {
		return err
	}

	printJSON(struct {
		GroupKey  string   `json:"group_key"`
		Threshold uint16   `json:"threshold"`
		Members   int      `json:"members"`
		KeyFiles  []string `json:"key_files"`
		Dealings  int      `json:"dealings"`
	}{
		GroupKey: fmt.Sprintf(
			"%x",
			result.PublicPackage.GroupKey.SerializeCompressed(),
		),
		Threshold: result.Config.Threshold,
		Members:   len(result.Config.Members),
		KeyFiles:  result.KeyFiles,
		Dealings:  result.Attempts,
	})

	return nil
}

// txArg reads the raw transaction hex for a pipeline command, either from
// the positional argument or from stdin when the argument is "-".
func txArg(ctx *cli.Context) (btcrpc.TxRef, error) {
	arg := ctx.Args().First()
	if arg == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return btcrpc.TxRef{}, fmt.Errorf("unable to read "+
				"tx from stdin: %w", err)
		}
		arg = strings.TrimSpace(string(data))
	}

	if arg == "" {
		return btcrpc.TxRef{}, fmt.Errorf("raw transaction hex " +
			"argument is required")
	}

	return btcrpc.TxRefFromHex(arg), nil
}

var fundTransactionCommand = cli.Command{
	Name:      "fundtransaction",
	Category:  "Transactions",
	Usage:     "Have the bitcoind wallet fund a raw transaction.",
	ArgsUsage: "txhex",
	Description: `
	Pass the serialized transaction to fundrawtransaction. The node's
	wallet selects inputs and attaches a change output so the named
	outputs plus the fee are covered. Prints the funded hex, ready to be
	passed to signtransaction.
	`,
	Action: actionDecorator(fundTransaction),
}

func fundTransaction(ctx *cli.Context) error {
	tx, err := txArg(ctx)
	if err != nil {
		return err
	}

	txHex, fundedTx, err := getClient(ctx).FundTransaction(
		context.Background(), tx,
	)
	if err != nil {
		return err
	}

	printJSON(struct {
		Hex     string `json:"hex"`
		Inputs  int    `json:"inputs"`
		Outputs int    `json:"outputs"`
	}{
		Hex:     txHex,
		Inputs:  len(fundedTx.TxIn),
		Outputs: len(fundedTx.TxOut),
	})

	return nil
}

var signTransactionCommand = cli.Command{
	Name:      "signtransaction",
	Category:  "Transactions",
	Usage:     "Have the bitcoind wallet sign a funded raw transaction.",
	ArgsUsage: "txhex",
	Description: `
	Pass the serialized transaction to signrawtransactionwithwallet. The
	command fails with the node's per-input detail if the wallet cannot
	sign every input. Prints the signed hex, ready to be passed to
	sendtransaction.
	`,
	Action: actionDecorator(signTransaction),
}

func signTransaction(ctx *cli.Context) error {
	tx, err := txArg(ctx)
	if err != nil {
		return err
	}

	txHex, _, err := getClient(ctx).SignTransaction(
		context.Background(), tx,
	)
	if err != nil {
		return err
	}

	printJSON(struct {
		Hex string `json:"hex"`
	}{
		Hex: txHex,
	})

	return nil
}

var sendTransactionCommand = cli.Command{
	Name:      "sendtransaction",
	Category:  "Transactions",
	Usage:     "Broadcast a signed raw transaction.",
	ArgsUsage: "txhex",
	Description: `
	Pass the serialized transaction to sendrawtransaction and print the
	transaction id the node reports.
	`,
	Action: actionDecorator(sendTransaction),
}

func sendTransaction(ctx *cli.Context) error {
	tx, err := txArg(ctx)
	if err != nil {
		return err
	}

	txid, err := getClient(ctx).SendTransaction(context.Background(), tx)
	if err != nil {
		return err
	}

	printJSON(struct {
		Txid string `json:"txid"`
	}{
		Txid: txid.String(),
	})

	return nil
}

var versionCommand = cli.Command{
	Name:   "version",
	Usage:  "Display frostcli version info.",
	Action: actionDecorator(version),
}

func version(_ *cli.Context) error {
	printJSON(struct {
		Version string `json:"version"`
	}{
		Version: build.Version(),
	})

	return nil
}
