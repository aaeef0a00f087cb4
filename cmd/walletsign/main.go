// Command walletsign signs a sign-in message the way a wallet would.
// It is meant for local testing of the login flow without a browser wallet.
//
//	walletsign -k <hex private key> -f message.txt
//	walletsign -g    # print a fresh private key and its address
package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/pflag"

	"github.com/layer-3/zeoauth/internal/eth"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "walletsign: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := pflag.NewFlagSet("walletsign", pflag.ContinueOnError)

	keyHex := fs.StringP("key", "k", os.Getenv("WALLET_PRIVATE_KEY"), "Hex encoded secp256k1 private key")
	file := fs.StringP("file", "f", "", "File with the message to sign, stdin when empty")
	generate := fs.BoolP("generate", "g", false, "Generate a new private key")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *generate {
		key, err := crypto.GenerateKey()
		if err != nil {
			return fmt.Errorf("error while generating key: %w", err)
		}
		fmt.Fprintf(stdout, "%x\n%s\n", crypto.FromECDSA(key), crypto.PubkeyToAddress(key.PublicKey).Hex())
		return nil
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(*keyHex, "0x"))
	if err != nil {
		return fmt.Errorf("invalid private key: %w", err)
	}

	var message []byte
	if *file != "" {
		message, err = os.ReadFile(*file)
	} else {
		message, err = io.ReadAll(stdin)
	}
	if err != nil {
		return fmt.Errorf("error while reading message: %w", err)
	}

	sig, err := eth.SignPersonal(string(message), key)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, sig)
	return nil
}
