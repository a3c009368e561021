// mgen build [path] [goal...]
package cmd

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/qobs-build/mgen/internal/builder"
	"github.com/qobs-build/mgen/internal/msg"
	"github.com/spf13/cobra"
)

// buildTool returns the command line that runs the generated build file
func buildTool(generator, root, file string, goals []string) []string {
	var tool []string
	switch generator {
	case builder.GeneratorNinja:
		tool = []string{"ninja", "-C", root, "-f", file}
	default:
		tool = []string{"make", "-C", root, "-f", file}
	}
	return append(tool, goals...)
}

func doBuild(cmd *cobra.Command, args []string) {
	target := "."
	if len(args) > 0 {
		target = args[0]
		args = args[1:] // other arguments are goals for the build tool
	}
	b, err := builder.NewBuilderInDirectory(target)
	if err != nil {
		msg.Fatal("%v", err)
	}
	path, err := b.Write(flagOutput, builder.CreateGenerator(flagGenerator.Value()))
	if err != nil {
		msg.Fatal("%v", err)
	}
	fmt.Printf("  %s %s\n", color.HiGreenString("Generated"), filepath.ToSlash(path))

	argv := buildTool(flagGenerator.Value(), b.Root(), path, args)
	msg.Debug("running %v", argv)
	c := exec.Command(argv[0], argv[1:]...)
	c.Stdin, c.Stdout, c.Stderr = os.Stdin, os.Stdout, os.Stderr
	if err := c.Run(); err != nil {
		msg.Fatal("%s: %v", argv[0], err)
	}
}

var buildCmd = &cobra.Command{
	Use:   "build [project path] [goal...]",
	Short: "Generate the build file and run make or ninja on it",
	Long:  `Generate the build file and run the matching build tool. If no project path is given, uses "."`,
	Args:  cobra.ArbitraryArgs,
	Run:   doBuild,
}

func init() {
	// mgen build subcommand
	rootCmd.AddCommand(buildCmd)
	buildCmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Build file name, relative to the project (default depends on --gen)")
	buildCmd.Flags().VarP(&flagGenerator, "gen", "g", "Generator to use, one of "+flagGenerator.HelpString())
	buildCmd.RegisterFlagCompletionFunc("gen", flagGenerator.CompletionFunc())
}
