// mgen headers <file...>
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/qobs-build/mgen/internal/builder"
	"github.com/qobs-build/mgen/internal/msg"
	"github.com/spf13/cobra"
)

var flagProject string

func doHeaders(cmd *cobra.Command, args []string) {
	cfg, err := builder.ParseConfigFromFile(filepath.Join(flagProject, builder.ConfigFilename), builder.NewConfigEnv())
	if err != nil {
		msg.Fatal("%v", err)
	}
	b, err := builder.NewBuilder(cfg.Options(flagProject))
	if err != nil {
		msg.Fatal("%v", err)
	}
	resolver := b.Headers()

	for _, file := range args {
		if !filepath.IsAbs(file) {
			if abs, err := filepath.Abs(file); err == nil {
				file = abs
			}
		}
		if _, err := os.Stat(file); err != nil {
			msg.Error("%v", err)
			continue
		}

		headers := resolver.HeadersOf(file)
		fmt.Printf("%s (%d headers)\n", color.HiCyanString(filepath.ToSlash(file)), len(headers))
		w := &msg.IndentWriter{Indent: "  ", W: os.Stdout}
		for _, h := range headers {
			rel, err := filepath.Rel(b.Root(), h)
			if err != nil {
				rel = h
			}
			fmt.Fprintln(w, filepath.ToSlash(rel))
		}
		for _, ext := range resolver.External(file) {
			fmt.Fprintf(w, "%s %s\n", color.YellowString("external"), ext)
		}
	}
}

var headersCmd = &cobra.Command{
	Use:   "headers <file...>",
	Short: "Print the project headers each file transitively includes",
	Args:  cobra.MinimumNArgs(1),
	Run:   doHeaders,
}

func init() {
	// mgen headers subcommand
	rootCmd.AddCommand(headersCmd)
	headersCmd.Flags().StringVarP(&flagProject, "project", "C", ".", "Project directory containing "+builder.ConfigFilename)
}
