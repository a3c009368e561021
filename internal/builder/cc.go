package builder

import (
	"os"
	"os/exec"
	"path/filepath"
	"slices"
)

// Compiler describes how to drive a compiler binary
type Compiler struct {
	Name         string   `toml:"name"`
	CompileOnly  string   `toml:"compile-only"`
	Shared       string   `toml:"shared"`
	PIC          string   `toml:"pic"`
	Debug        string   `toml:"debug"`
	DefaultFlags []string `toml:"default-flags"`
}

var GCC = Compiler{
	Name:         "g++",
	CompileOnly:  "-c",
	Shared:       "-shared",
	PIC:          "-fPIC",
	Debug:        "-g",
	DefaultFlags: []string{"--std=c++17", "-O3", "-flto", "-march=native"},
}

// TODO: zig cc
var commonCxxCompilers = []string{"g++", "clang++", "icpx", "icpc"}

// findCompiler attempts to find a suitable C++ compiler on the system
func findCompiler() string {
	if cxx := os.Getenv("CXX"); cxx != "" {
		return cxx
	}
	if cc := os.Getenv("CC"); cc != "" {
		return cc
	}

	for _, compiler := range commonCxxCompilers {
		if _, err := exec.LookPath(compiler); err == nil {
			return compiler
		}
	}

	return ""
}

// DetectCompiler returns the GCC descriptor driving whichever compiler the
// environment or PATH provides. All supported compilers accept GCC-style flags.
func DetectCompiler() Compiler {
	c := GCC
	c.DefaultFlags = slices.Clone(GCC.DefaultFlags)
	if name := findCompiler(); name != "" {
		c.Name = name
	}
	return c
}

// identity is the part of the compiler that determines object file contents
func (c Compiler) identity() string {
	return filepath.ToSlash(c.Name)
}
