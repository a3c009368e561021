// mgen init [name], mgen new [path]
package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/go-git/go-git/v6"
	"github.com/qobs-build/mgen/internal/builder"
	"github.com/qobs-build/mgen/internal/msg"
	"github.com/spf13/cobra"
)

func writefile(content string, elem ...string) {
	path := filepath.Join(elem...)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err = os.WriteFile(path, []byte(content), 0o644); err != nil {
			msg.Fatal("create file %s: %v", path, err)
		}
		fmt.Printf("%s file: %s\n", color.HiGreenString("Created"), filepath.ToSlash(path))
	}
}

func mkdir(elem ...string) {
	path := filepath.Join(elem...)
	if err := os.MkdirAll(path, 0o755); err != nil {
		msg.Fatal("mkdir %s: %v", path, err)
	}
}

func getProgramName() string {
	if len(os.Args) == 0 {
		return "mgen"
	}
	basename := filepath.Base(os.Args[0])
	return strings.TrimSuffix(basename, filepath.Ext(basename))
}

// gitInit creates a repository in dir unless dir already is inside one
func gitInit(dir string) {
	_, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err == nil {
		return
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		msg.Warn("could not inspect git repository in %s: %v", dir, err)
		return
	}
	if _, err := git.PlainInit(dir, false); err != nil {
		msg.Warn("git init %s: %v", dir, err)
		return
	}
	fmt.Printf("%s git repository: %s\n", color.HiGreenString("Initialized"), filepath.ToSlash(dir))
}

func libraryConfig(name string) string {
	return `[project]
source-dirs = ["src"]
include-dirs = ["include"]

[library."lib` + name + `.so"]
sources = ["**/*.cpp"]
# links = ["pthread"]
# install-dir = "/usr/local/lib"

[library."lib` + name + `.so".'target_os == "darwin"']
lflags = ["-undefined", "dynamic_lookup"]

[[install]]
path = "include/` + name + `.hpp"
install-dir = "/usr/local/include"
`
}

func executableConfig(name string) string {
	return `[project]
source-dirs = ["src"]
include-dirs = ["include"]

[executable.` + name + `]
sources = ["**/*.cpp"]
# links = ["pthread"]
`
}

// initIn initializes a project in an existing specified directory
func initIn(dir, name string, lib bool) {
	mkdir(dir, "src")
	mkdir(dir, "include")

	if lib {
		writefile(libraryConfig(name), dir, builder.ConfigFilename)

		writefile(`#pragma once

void hello_world();
`, dir, "include", name+".hpp")

		writefile(`#include <cstdio>
#include "`+name+`.hpp"

void hello_world() {
    std::puts("Hello, World!");
}
`, dir, "src", name+".cpp")
	} else {
		writefile(executableConfig(name), dir, builder.ConfigFilename)

		writefile(`#pragma once

inline const char* greeting() { return "Hello, World!"; }
`, dir, "include", "greeting.hpp")

		writefile(`#include <cstdio>
#include "greeting.hpp"

int main() {
    std::puts(greeting());
    return 0;
}
`, dir, "src", "main.cpp")
	}

	writefile(`build/
Makefile
build.ninja
`, dir, ".gitignore")

	gitInit(dir)

	programName := getProgramName()
	fmt.Printf("You can now do %s to generate a Makefile, then %s to build.\n",
		color.HiCyanString(programName+" "+dir), color.HiCyanString("make -C "+dir))
}

var library bool

var initCmd = &cobra.Command{
	Use:   "init [name]",
	Short: "Create a new project in the current directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		initIn(".", args[0], library)
	},
}

var newCmd = &cobra.Command{
	Use:   "new [path]",
	Short: "Create a new project in a new directory",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		mkdir(args[0])
		initIn(args[0], filepath.Base(args[0]), library)
	},
}

func init() {
	// mgen init subcommand
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().BoolVarP(&library, "lib", "l", false, "Create a library target")

	// mgen new subcommand
	rootCmd.AddCommand(newCmd)
	newCmd.Flags().BoolVarP(&library, "lib", "l", false, "Create a library target")
}
