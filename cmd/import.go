/*
Copyright © 2025 Katie Mulliken <katie@mulliken.net>
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/seckatie/arkive/internal/core/db"
	"github.com/seckatie/arkive/internal/core/importer"
	"github.com/seckatie/arkive/internal/logger"
	"github.com/spf13/cobra"
)

// importCmd loads a browser bookmark export for one owner.
//
// Example usage:
//
//	arkive import bookmarks.html --owner 6f1c... --email me@example.com
var importCmd = &cobra.Command{
	Use:   "import <bookmarks.html>",
	Short: "Import a Netscape bookmark file",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runImport(cmd, args[0]); err != nil {
			fail(cmd, err)
		}
	},
}

func init() {
	importCmd.Flags().String("owner", "", "Owner id the bookmarks are imported for")
	importCmd.Flags().String("email", "", "Owner email, registers the owner if it is new")
	_ = importCmd.MarkFlagRequired("owner")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, path string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log := logger.New(cfg.LogLevel, cfg.PrettyLog)
	defer func() { _ = log.Sync() }()

	owner, _ := cmd.Flags().GetString("owner")
	email, _ := cmd.Flags().GetString("email")

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open bookmark file: %w", err)
	}
	defer f.Close()

	ctx := cmd.Context()
	database, err := openDB(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer database.Close()

	if email != "" {
		if err := database.RegisterIdentity(ctx, db.Identity{ID: owner, Email: email}); err != nil {
			return err
		}
	}

	res, err := importer.New(database, log).Import(ctx, owner, f)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Imported %d bookmarks (%d new collections, %d already saved, %d skipped)\n",
		res.Created, res.Collections, res.Duplicates, res.Invalid)
	return nil
}
