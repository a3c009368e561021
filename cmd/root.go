// mgen [path...], mgen gen [path...]
package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/fatih/color"
	"github.com/qobs-build/mgen/internal/builder"
	"github.com/qobs-build/mgen/internal/msg"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	flagOutput   string
	flagDiff     bool
	flagJobs     int
	flagLogLevel EnumValue = NewEnumValue("info", map[string]string{
		"debug": "Trace header resolution and target declaration",
		"info":  "Report generated files (default)",
		"warn":  "Only report warnings, such as assumed external headers",
		"error": "Only report errors",
	})
	flagGenerator EnumValue = NewEnumValue(builder.GeneratorMake, map[string]string{
		builder.GeneratorMake:  "Generates a Makefile (default)",
		builder.GeneratorNinja: "Generates a build.ninja file",
	})
)

// generateIn loads the project in dir and writes (or diffs) its build file
func generateIn(dir string) error {
	b, err := builder.NewBuilderInDirectory(dir)
	if err != nil {
		return fmt.Errorf("%s: %w", dir, err)
	}
	g := builder.CreateGenerator(flagGenerator.Value())

	if flagDiff {
		out, err := b.Generate(g)
		if err != nil {
			return fmt.Errorf("%s: %w", dir, err)
		}
		name := flagOutput
		if name == "" {
			name = g.BuildFile()
		}
		if !filepath.IsAbs(name) {
			name = filepath.Join(b.Root(), name)
		}
		return printDiff(name, out)
	}

	path, err := b.Write(flagOutput, g)
	if err != nil {
		return fmt.Errorf("%s: %w", dir, err)
	}
	fmt.Printf("  %s %s\n", color.HiGreenString("Generated"), filepath.ToSlash(path))
	return nil
}

// printDiff shows how the build file at path would change if out was written
func printDiff(path, out string) error {
	old, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(string(old), out)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	changed := false
	for _, d := range diffs {
		if d.Type != diffmatchpatch.DiffEqual {
			changed = true
			break
		}
	}
	if !changed {
		fmt.Printf("  %s %s\n", color.HiCyanString("Unchanged"), filepath.ToSlash(path))
		return nil
	}

	fmt.Printf("  %s %s\n", color.HiYellowString("Changes"), filepath.ToSlash(path))
	w := &msg.IndentWriter{Indent: "    ", W: os.Stdout}
	_, err = fmt.Fprintln(w, dmp.DiffPrettyText(diffs))
	return err
}

func applyLogLevel(cmd *cobra.Command, args []string) {
	level, err := msg.ParseLevel(flagLogLevel.Value())
	if err != nil {
		msg.Fatal("%v", err)
	}
	msg.SetLevel(level)
}

func doGenerate(cmd *cobra.Command, args []string) {
	targets := args
	if len(targets) == 0 {
		targets = []string{"."}
	}

	// every project gets its own builder, nothing is shared between them
	var eg errgroup.Group
	eg.SetLimit(max(flagJobs, 1))
	for _, dir := range targets {
		eg.Go(func() error {
			return generateIn(dir)
		})
	}
	if err := eg.Wait(); err != nil {
		msg.Fatal("%v", err)
	}
}

var rootCmd = &cobra.Command{
	Use:   "mgen [project path...]",
	Short: "Makefile generator for C and C++ projects",
	Long: `mgen reads MGen.toml and generates a Makefile whose compile rules depend on
every project header each source transitively includes.`,
	Args:             cobra.ArbitraryArgs,
	PersistentPreRun: applyLogLevel,
	Run:              doGenerate,
}

var genCmd = &cobra.Command{
	Use:   "gen [project path...]",
	Short: "Generate the build file",
	Long:  `Generate the build file of each project. If no project path is given, uses "."`,
	Args:  cobra.ArbitraryArgs,
	Run:   doGenerate,
}

func init() {
	rootCmd.PersistentFlags().Var(&flagLogLevel, "log-level", "Minimum message level, one of "+flagLogLevel.HelpString())
	rootCmd.RegisterFlagCompletionFunc("log-level", flagLogLevel.CompletionFunc())
	addGenFlags(rootCmd)

	// mgen gen subcommand
	rootCmd.AddCommand(genCmd)
	addGenFlags(genCmd)
}

func addGenFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&flagOutput, "output", "o", "", "Build file name, relative to the project (default depends on --gen)")
	cmd.Flags().BoolVar(&flagDiff, "diff", false, "Print changes to the build file instead of writing it")
	cmd.Flags().IntVarP(&flagJobs, "jobs", "j", runtime.NumCPU(), "Number of projects to generate concurrently")
	cmd.Flags().VarP(&flagGenerator, "gen", "g", "Generator to use, one of "+flagGenerator.HelpString())
	cmd.RegisterFlagCompletionFunc("gen", flagGenerator.CompletionFunc())
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
