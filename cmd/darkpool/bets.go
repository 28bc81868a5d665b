package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/alejandrodnm/darkpool/internal/adapters/notify"
	"github.com/alejandrodnm/darkpool/internal/application/secrets"
)

var walletFlag = &cli.StringFlag{
	Name:  "wallet",
	Usage: "wallet address (default: derived from the bettor key)",
}

var (
	betsCmd = cli.Command{
		Name:  "bets",
		Usage: "manage the local sealed-bet secrets",
		Subcommands: []*cli.Command{
			betsListCmd, betsExportCmd, betsImportCmd, betsBackupCmd, betsRestoreCmd,
		},
	}

	betsListCmd = &cli.Command{
		Name:   "list",
		Usage:  "list the bets stored for the wallet",
		Flags:  []cli.Flag{walletFlag},
		Action: betsListAction,
	}
	betsExportCmd = &cli.Command{
		Name:  "export",
		Usage: "print the bets as JSON (or write them to --out)",
		Flags: []cli.Flag{
			walletFlag,
			&cli.StringFlag{Name: "out", Usage: "output file (default: stdout)"},
		},
		Action: betsExportAction,
	}
	betsImportCmd = &cli.Command{
		Name:      "import",
		Usage:     "merge bets from a JSON backup; existing bets are never overwritten",
		ArgsUsage: "<file|->",
		Flags:     []cli.Flag{walletFlag},
		Action:    betsImportAction,
	}
	betsBackupCmd = &cli.Command{
		Name:   "backup",
		Usage:  "upload the bets to the backup bucket",
		Flags:  []cli.Flag{walletFlag},
		Action: betsBackupAction,
	}
	betsRestoreCmd = &cli.Command{
		Name:  "restore",
		Usage: "merge bets from a backup in the bucket (default: latest)",
		Flags: []cli.Flag{
			walletFlag,
			&cli.StringFlag{Name: "key", Usage: "object key to restore"},
		},
		Action: betsRestoreAction,
	}
)

func betsListAction(c *cli.Context) error {
	wallet, err := walletAddress(c)
	if err != nil {
		return err
	}
	store, cleanup, err := openSecrets(c)
	if err != nil {
		return err
	}
	defer cleanup()

	fmt.Printf("Wallet %s\n", wallet)
	notify.NewConsole(false).PrintBets(store.GetBets(c.Context, wallet))
	return nil
}

func betsExportAction(c *cli.Context) error {
	wallet, err := walletAddress(c)
	if err != nil {
		return err
	}
	store, cleanup, err := openSecrets(c)
	if err != nil {
		return err
	}
	defer cleanup()

	text, err := store.ExportBets(c.Context, wallet)
	if err != nil {
		return err
	}
	if out := c.String("out"); out != "" {
		if err := os.WriteFile(out, []byte(text+"\n"), 0o600); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		fmt.Printf("Exported to %s\n", out)
		return nil
	}
	fmt.Println(text)
	return nil
}

func betsImportAction(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("usage: darkpool bets import <file|->")
	}
	wallet, err := walletAddress(c)
	if err != nil {
		return err
	}

	var data []byte
	if path := c.Args().First(); path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}

	store, cleanup, err := openSecrets(c)
	if err != nil {
		return err
	}
	defer cleanup()

	added, err := store.ImportBets(c.Context, wallet, string(data))
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d new bet(s)\n", added)
	return nil
}

func betsBackupAction(c *cli.Context) error {
	wallet, err := walletAddress(c)
	if err != nil {
		return err
	}
	backup, err := openBackup(c)
	if err != nil {
		return err
	}
	store, cleanup, err := openSecrets(c)
	if err != nil {
		return err
	}
	defer cleanup()

	key, err := store.Backup(c.Context, wallet, backup)
	if err != nil {
		return err
	}
	fmt.Printf("Backed up to s3://%s/%s\n", getConfig(c).Backup.Bucket, key)
	return nil
}

func betsRestoreAction(c *cli.Context) error {
	wallet, err := walletAddress(c)
	if err != nil {
		return err
	}
	backup, err := openBackup(c)
	if err != nil {
		return err
	}

	key := c.String("key")
	if key == "" {
		if key, err = secrets.LatestBackup(c.Context, wallet, backup); err != nil {
			return err
		}
	}

	store, cleanup, err := openSecrets(c)
	if err != nil {
		return err
	}
	defer cleanup()

	added, err := store.Restore(c.Context, wallet, backup, key)
	if err != nil {
		return err
	}
	fmt.Printf("Restored %d new bet(s) from %s\n", added, key)
	return nil
}
