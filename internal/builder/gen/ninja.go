package gen

import (
	"strings"
)

// Ninja writes the rule set as a build.ninja file. Every rule becomes a `build`
// statement of the generic `run` rule carrying its own command line.
type Ninja struct{}

func (Ninja) BuildFile() string { return "build.ninja" }

var ninjaPathEscaper = strings.NewReplacer("$", "$$", ":", "$:", " ", "$ ")

func quote(s string) string { return ninjaPathEscaper.Replace(s) }

var ninjaVarEscaper = strings.NewReplacer("$", "$$")

// ninjaCommand joins a recipe into one shell line
func ninjaCommand(cmds []string) string {
	parts := make([]string, 0, len(cmds))
	for _, cmd := range cmds {
		cmd, ignore := splitIgnore(cmd)
		if ignore {
			cmd = "(" + cmd + " || true)"
		}
		parts = append(parts, cmd)
	}
	return ninjaVarEscaper.Replace(strings.Join(parts, " && "))
}

func (Ninja) Generate(rules []Rule) string {
	var sb strings.Builder

	writeln(&sb, "# Automatically generated by mgen.")
	writeln(&sb, "# DO NOT MODIFY.")
	writeln(&sb, "ninja_required_version = 1.1")
	writeln(&sb)

	write(&sb,
		`rule run
  command = $cmd
  description = $desc
`)
	writeln(&sb)

	for _, rule := range rules {
		write(&sb, "build ", quote(rule.Name), ": ")
		if len(rule.Commands) == 0 {
			write(&sb, "phony")
		} else {
			write(&sb, "run")
		}
		for _, dep := range rule.Deps {
			write(&sb, " ", quote(dep))
		}
		writeln(&sb)
		if len(rule.Commands) > 0 {
			writeln(&sb, "  cmd = ", ninjaCommand(rule.Commands))
			writeln(&sb, "  desc = ", ninjaVarEscaper.Replace(rule.Name))
		}
	}

	// the first rule is the default in make, mirror that here
	if len(rules) > 0 {
		writeln(&sb)
		writeln(&sb, "default ", quote(rules[0].Name))
	}

	return sb.String()
}
