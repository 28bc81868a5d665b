package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/alejandrodnm/darkpool/internal/adapters/onchain"
)

var (
	keyCmd = cli.Command{
		Name:        "key",
		Usage:       "manage encrypted key files",
		Subcommands: []*cli.Command{keyEncryptCmd},
	}

	keyEncryptCmd = &cli.Command{
		Name:  "encrypt",
		Usage: "encrypt a private key into a key file (PBKDF2 + AES-GCM)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "private-key",
				Usage:   "hex private key to encrypt",
				EnvVars: []string{"DARKPOOL_PRIVATE_KEY"},
			},
			&cli.StringFlag{
				Name:     "password",
				Usage:    "password for the key file",
				EnvVars:  []string{"DARKPOOL_KEY_PASSWORD"},
				Required: true,
			},
			&cli.StringFlag{
				Name:     "out",
				Usage:    "output file",
				Required: true,
			},
		},
		Action: keyEncryptAction,
	}
)

func keyEncryptAction(c *cli.Context) error {
	key := c.String("private-key")
	if key == "" {
		return errors.New("pass --private-key or set DARKPOOL_PRIVATE_KEY")
	}
	out := c.String("out")
	if _, err := os.Stat(out); err == nil {
		return fmt.Errorf("%s already exists, refusing to overwrite", out)
	}

	data, err := onchain.EncryptKey(key, c.String("password"))
	if err != nil {
		return err
	}
	address, err := onchain.AddressOf(key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	fmt.Printf("Encrypted key for %s written to %s\n", address, out)
	return nil
}
