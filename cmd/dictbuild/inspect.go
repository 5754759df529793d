package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/japaniel/dictbuild/pkg/artifact"
	"github.com/japaniel/dictbuild/pkg/lexicon"
)

var (
	labelColor   = color.New(color.FgCyan, color.Bold)
	surfaceColor = color.New(color.FgGreen, color.Bold)
	missColor    = color.New(color.FgYellow)
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect FILE",
		Short: "Print the header and sizes of a dictionary artifact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := artifact.Open(args[0])
			if err != nil {
				return err
			}
			printStats(cmd.OutOrStdout(), args[0], d.Stats())
			return nil
		},
	}
}

func printStats(w io.Writer, path string, s artifact.Stats) {
	rows := [][2]string{
		{"file", path},
		{"variant", s.Variant},
		{"format", s.Version},
		{"compressed", strconv.FormatBool(s.Compressed)},
		{"keys", strconv.Itoa(s.Keys)},
		{"entries", strconv.Itoa(s.Entries)},
		{"trie", fmt.Sprintf("%d nodes, %d edges", s.Nodes, s.Edges)},
		{"matrix", fmt.Sprintf("%dx%d, %d connected", s.Rows, s.Cols, s.Connected)},
	}
	if s.Categories > 0 {
		rows = append(rows, [2]string{"unknown", fmt.Sprintf("%d categories, %d entries", s.Categories, s.UnknownEntries)})
	}
	for _, r := range rows {
		labelColor.Fprintf(w, "%-11s", r[0])
		fmt.Fprintln(w, r[1])
	}
}

func newLookupCmd() *cobra.Command {
	var prefix bool
	cmd := &cobra.Command{
		Use:   "lookup FILE WORD...",
		Short: "Look words up in a dictionary artifact",
		Long: `Look words up in a dictionary artifact. By default each WORD must match a
surface form exactly; with --prefix every surface form that starts WORD is listed.`,
		Example: `  dictbuild lookup ipadic.bin 猫
  dictbuild lookup --prefix ipadic.bin 東京都庁`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := artifact.Open(args[0])
			if err != nil {
				return err
			}
			var results []result
			for _, word := range args[1:] {
				if !prefix {
					results = append(results, result{surface: word, entries: d.Exact(word)})
					continue
				}
				hits := d.CommonPrefix(word)
				if len(hits) == 0 {
					results = append(results, result{surface: word})
				}
				for _, h := range hits {
					results = append(results, result{surface: h.Surface, entries: h.Entries})
				}
			}
			printResults(cmd.OutOrStdout(), d, results)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&prefix, "prefix", "p", false, "list every surface form that is a prefix of WORD")
	return cmd
}

type result struct {
	surface string
	entries []lexicon.Entry
}

// printResults writes one line per entry with the surfaces padded to a common display
// width, so full-width and ASCII surfaces line up. A miss lists the unknown word
// templates of its first character when the dictionary has them.
func printResults(w io.Writer, d *artifact.Dictionary, results []result) {
	width := 0
	for _, r := range results {
		if len(r.entries) > 0 {
			width = max(width, runewidth.StringWidth(r.surface))
		}
	}
	for _, r := range results {
		if len(r.entries) > 0 {
			printEntries(w, r.surface, width, r.entries)
			continue
		}
		first, _ := utf8.DecodeRuneInString(r.surface)
		cat, unk := d.Unknown(first)
		if cat == "" {
			missColor.Fprintf(w, "%s: no entries\n", r.surface)
			continue
		}
		missColor.Fprintf(w, "%s: no entries, unknown word category %s\n", r.surface, cat)
		for _, e := range unk {
			fmt.Fprintf(w, "%s  %5d %5d %6d  %s\n", strings.Repeat(" ", width), e.LeftID, e.RightID, e.Cost, strings.Join(e.Features, ","))
		}
	}
}

func printEntries(w io.Writer, surface string, width int, entries []lexicon.Entry) {
	for _, e := range entries {
		surfaceColor.Fprint(w, runewidth.FillRight(surface, width))
		fmt.Fprintf(w, "  %5d %5d %6d  %s\n", e.LeftID, e.RightID, e.Cost, strings.Join(e.Features, ","))
	}
}
