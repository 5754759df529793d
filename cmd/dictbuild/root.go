package main

import (
	"flag"
	"fmt"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/japaniel/dictbuild/pkg/builder"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "dictbuild",
		Short: "Build and inspect morphological analysis dictionaries",
		Long: `dictbuild compiles lexicon sources (mecab-ipadic, NEologd seeds, plain CSV,
jmdict-simplified JSON or a Japanese text corpus) into a single dictionary artifact
holding a minimal trie of surface forms, the entry table and the connection cost matrix.

Examples:
  dictbuild build --variant ipadic --input mecab-ipadic-2.7.0 --output ipadic.bin
  dictbuild build --config dictbuild.toml
  dictbuild inspect ipadic.bin
  dictbuild lookup ipadic.bin 猫 東京都
  dictbuild history --db builds.db`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	root.PersistentFlags().AddGoFlagSet(klogFlags)

	root.AddCommand(newBuildCmd(), newInspectCmd(), newLookupCmd(), newHistoryCmd(), newVariantsCmd())
	return root
}

func newVariantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "variants",
		Short: "List the dictionary variants build accepts",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range builder.DefaultRegistry().Names() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
		},
	}
}
