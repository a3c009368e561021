package gen

import (
	"slices"
	"strings"
)

// Rule is a single named node of the emitted build graph. Two rules are the
// same rule if they share a name.
type Rule struct {
	Name     string
	Deps     []string
	Commands []string
	Phony    bool
	Help     string
}

// Equal reports whether r and o would serialize identically
func (r Rule) Equal(o Rule) bool {
	return r.Name == o.Name &&
		r.Phony == o.Phony &&
		r.Help == o.Help &&
		slices.Equal(r.Deps, o.Deps) &&
		slices.Equal(r.Commands, o.Commands)
}

// IgnoreErrors marks a command whose failure must not stop the build
func IgnoreErrors(cmd string) string { return "-" + cmd }

func splitIgnore(cmd string) (string, bool) {
	if len(cmd) > 0 && cmd[0] == '-' {
		return cmd[1:], true
	}
	return cmd, false
}

type Generator interface {
	// Generate serializes the rules in the order given
	Generate(rules []Rule) string
	// BuildFile is the conventional file name of the generated script
	BuildFile() string
}

// write appends every part to sb
func write(sb *strings.Builder, parts ...string) {
	for _, part := range parts {
		sb.WriteString(part)
	}
}

// writeln is write followed by a newline
func writeln(sb *strings.Builder, parts ...string) {
	write(sb, parts...)
	sb.WriteByte('\n')
}
