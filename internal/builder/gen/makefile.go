package gen

import (
	"strings"
)

const makefileBanner = "# Automatically generated by mgen.\n# DO NOT MODIFY."

// verbosity makes recipes silent unless VERBOSE is set in the environment
const makefileVerbosity = `ifdef VERBOSE
	AT=
else
	AT=@
endif`

type Makefile struct{}

func (Makefile) BuildFile() string { return "Makefile" }

var makePathEscaper = strings.NewReplacer("$", "$$", " ", `\ `, ":", `\:`, "#", `\#`)

// make expands variables in recipes too, the shell must still see a literal $
var makeRecipeEscaper = strings.NewReplacer("$", "$$")

func escapeMake(s string) string { return makePathEscaper.Replace(s) }

func (Makefile) Generate(rules []Rule) string {
	var sb strings.Builder

	writeln(&sb, makefileBanner)
	writeln(&sb, makefileVerbosity)

	var phony []string
	for _, rule := range rules {
		if rule.Phony {
			phony = append(phony, escapeMake(rule.Name))
		}
	}
	if len(phony) > 0 {
		writeln(&sb)
		writeln(&sb, ".PHONY: ", strings.Join(phony, " "))
	}

	for _, rule := range rules {
		writeln(&sb)
		write(&sb, escapeMake(rule.Name), ":")
		for _, dep := range rule.Deps {
			write(&sb, " ", escapeMake(dep))
		}
		writeln(&sb)
		for _, cmd := range rule.Commands {
			cmd, ignore := splitIgnore(cmd)
			cmd = makeRecipeEscaper.Replace(cmd)
			if ignore {
				writeln(&sb, "\t-$(AT)", cmd)
			} else {
				writeln(&sb, "\t$(AT)", cmd)
			}
		}
	}

	return sb.String()
}
