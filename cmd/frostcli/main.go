package main

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/frostvault/frostd/btcrpc"
	"github.com/frostvault/frostd/build"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/urfave/cli"
	"golang.org/x/term"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[frostcli] %v\n", err)
	os.Exit(1)
}

// getClient builds the bitcoind client from the global RPC flags. An auth
// value of "-" prompts for the credentials on the terminal so they stay out
// of the shell history.
func getClient(ctx *cli.Context) *btcrpc.Client {
	auth := ctx.GlobalString("rpcauth")
	if auth == "-" {
		user, err := readTerminalLine("bitcoind RPC user: ")
		if err != nil {
			fatal(err)
		}

		pass, err := readPassword("bitcoind RPC password: ")
		if err != nil {
			fatal(err)
		}

		auth = fmt.Sprintf("%s:%s", user, pass)
	}

	return btcrpc.New(btcrpc.Config{
		Address: ctx.GlobalString("rpcaddress"),
		Wallet:  stringOption(ctx.GlobalString("rpcwallet")),
		Auth:    stringOption(auth),
		Version: stringOption(ctx.GlobalString("rpcversion")),
	})
}

// stringOption treats an empty flag value as an unset option.
func stringOption(s string) fn.Option[string] {
	if s == "" {
		return fn.None[string]()
	}

	return fn.Some(s)
}

func main() {
	app := cli.NewApp()
	app.Name = "frostcli"
	app.Version = build.Version()
	app.Usage = "control plane for your FROST vault daemon (frostd)"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rpcaddress",
			Value: btcrpc.DefaultAddress,
			Usage: "The URL of the bitcoind JSON-RPC endpoint.",
		},
		cli.StringFlag{
			Name: "rpcwallet",
			Usage: "The named bitcoind wallet to route calls " +
				"through.",
		},
		cli.StringFlag{
			Name: "rpcauth",
			Usage: "The user:password pair for HTTP basic " +
				"authentication against bitcoind. Use \"-\" " +
				"to be prompted on the terminal instead of " +
				"leaving the credentials in the shell " +
				"history.",
		},
		cli.StringFlag{
			Name: "rpcversion",
			Usage: "The value for the jsonrpc version field of " +
				"outgoing requests. Omitted from the " +
				"envelope entirely when empty.",
		},
	}
	app.Commands = []cli.Command{
		generateCommitteeCommand,
		fundTransactionCommand,
		signTransactionCommand,
		sendTransactionCommand,
		versionCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

// readPassword reads a password from the terminal. This requires there to be
// an actual TTY so passing in a password from stdin won't work.
func readPassword(text string) ([]byte, error) {
	fmt.Print(text)

	// The variable syscall.Stdin is of a different type in the Windows API
	// that's why we need the explicit cast. And of course the linter
	// doesn't like it either.
	pw, err := term.ReadPassword(int(syscall.Stdin)) // nolint:unconvert
	fmt.Println()
	return pw, err
}

// readTerminalLine reads one echoed line from stdin, for values that are not
// secret themselves but belong to a prompted credential pair.
func readTerminalLine(text string) (string, error) {
	fmt.Print(text)

	var line string
	if _, err := fmt.Scanln(&line); err != nil {
		return "", err
	}

	return strings.TrimSpace(line), nil
}
