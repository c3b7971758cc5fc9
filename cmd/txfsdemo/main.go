// Command txfsdemo is a thin manual smoke-test harness for the txfs
// package. It is not part of the transaction engine itself — the core has
// no CLI surface — it just exercises Manager.Run against a base directory
// so the behavior can be poked at by hand.
package main

import (
	"fmt"
	"os"

	"github.com/apex/log"
	"github.com/spf13/cobra"

	"github.com/pelicanfs/txfs/txfs"
)

var baseDir string

var root = &cobra.Command{
	Use:   "txfsdemo",
	Short: "Exercise the txfs transaction engine against a base directory",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if baseDir == "" {
			return fmt.Errorf("--base is required")
		}
		return nil
	},
}

var writeCmd = &cobra.Command{
	Use:   "write <path> <content>",
	Short: "Commit a single write transaction",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := txfs.NewManager(baseDir)
		if err := mgr.Initialize(); err != nil {
			return err
		}
		return mgr.Run(func(tx *txfs.Tx) error {
			return tx.Write(args[0], []byte(args[1]))
		})
	},
}

var recoverCmd = &cobra.Command{
	Use:   "recover",
	Short: "Run Initialize (and its recovery pass) and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr := txfs.NewManager(baseDir)
		return mgr.Initialize()
	},
}

func init() {
	root.PersistentFlags().StringVar(&baseDir, "base", "", "base directory to operate on (required)")
	root.AddCommand(writeCmd, recoverCmd)
}

func main() {
	if err := root.Execute(); err != nil {
		log.WithField("error", err).Error("txfsdemo: command failed")
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
