package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var cfgFile string

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "hexarchive",
		Short:         "Sync and serve the Cox & Rathvon hex puzzle archive",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")

	root.AddCommand(serveCmd())
	root.AddCommand(runCmd())
	root.AddCommand(syncCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(importCmd())
	root.AddCommand(lookupCmd())
	root.AddCommand(signCmd())

	return root
}

func serveCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP server over the local cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func runCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start daemon with periodic sync and HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(port)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "server port (default: from config)")
	return cmd
}

func syncCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Refresh the local cache from the remote store once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the sync report as JSON")
	return cmd
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the writable cache from the bundled default if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed()
		},
	}
}

func importCmd() *cobra.Command {
	var collection string

	cmd := &cobra.Command{
		Use:   "import <file.json>",
		Short: "Load a JSON collection export into the remote store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(collection, args[0])
		},
	}

	cmd.Flags().StringVar(&collection, "collection", "puzzles", "target collection (puzzles or hexgrids)")
	return cmd
}

func lookupCmd() *cobra.Command {
	var withGeometry bool

	cmd := &cobra.Command{
		Use:   "lookup <id>",
		Short: "Print a cached puzzle record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLookup(args[0], withGeometry)
		},
	}

	cmd.Flags().BoolVar(&withGeometry, "geometry", false, "print the prepared geometry instead")
	return cmd
}

func signCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "sign <bucket> <object>",
		Short: "Issue a signed URL for a stored asset",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSign(args[0], args[1], ttl)
		},
	}

	cmd.Flags().DurationVar(&ttl, "ttl", 0, "URL lifetime (default: from config)")
	return cmd
}
