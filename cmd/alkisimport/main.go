package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/mjbo/alkisimport"
	"github.com/mjbo/alkisimport/internal/loader"
)

var (
	verbose       bool
	loaderCommand string
)

// exitCode carries the loader's verbatim exit code out of the cobra run.
var exitCode int

var rootCmd = &cobra.Command{
	Use:   "alkisimport [flags] <run-control-file>",
	Short: "Import ALKIS cadastral data into PostgreSQL/PostGIS",
	Long: `alkisimport prepares a PostgreSQL/PostGIS database for an ALKIS import and
hands the actual NAS conversion off to an external loader.

It creates the database, the postgis extension and the target schema on
demand (asking before each creation), resolves conflicts with data from
earlier runs, relaxes known overly strict NOT NULL constraints before and
after loading, and reports per-table row counts when done.`,
	Args:         cobra.ExactArgs(1),
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false,
		"Verbose output, teed to alkisimport.log next to the binary")
	rootCmd.Flags().StringVar(&loaderCommand, "loader", loader.DefaultCommand,
		"Loader command to invoke")
}

func run(cmd *cobra.Command, args []string) error {
	code, err := alkisimport.Run(cmd.Context(), &alkisimport.Options{
		ConfigPath:    args[0],
		Verbose:       verbose,
		LoaderCommand: loaderCommand,
	})
	if err != nil {
		if errors.Is(err, alkisimport.ErrAborted) {
			// A deliberate stop, not a failure.
			return nil
		}
		return err
	}
	exitCode = code
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
	os.Exit(exitCode)
}
