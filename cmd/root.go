// Package cmd provides the command-line interface for cachesim.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any
// subcommands.
var rootCmd = &cobra.Command{
	Use:   "cachesim -s bits -E ways -b bits -t tracefile",
	Short: "Cachesim replays a memory trace against a cache model.",
	Long: `Cachesim simulates a set-associative, write-back cache with LRU ` +
		`replacement. It replays the memory accesses of a valgrind-style ` +
		`trace file and reports the resulting hits, misses, evictions, ` +
		`dirty bytes, and dirty evictions.`,
	Run: runSimulation,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().IntP("set-bits", "s", 0,
		"number of set index bits")
	rootCmd.Flags().IntP("associativity", "E", 1,
		"number of lines per set")
	rootCmd.Flags().IntP("block-bits", "b", 0,
		"number of block offset bits")
	rootCmd.Flags().StringP("trace", "t", "",
		"path of the trace file to replay")
	rootCmd.Flags().BoolP("verbose", "v", false,
		"print the outcome of every access")
	rootCmd.Flags().String("record", "",
		"record the run into a SQLite database at this path")

	err := rootCmd.MarkFlagRequired("trace")
	if err != nil {
		panic(err)
	}
}
