// ABOUTME: Minimal argument parsing for memex subcommands
// ABOUTME: Splits positional arguments from --name value flags

package main

import (
	"fmt"
	"strings"
)

// cliArgs holds one subcommand's arguments
type cliArgs struct {
	positional []string
	flags      map[string]string
}

// parseArgs accepts "--name value" and "--name=value". Short aliases map to
// their long names. A flag with no following value is recorded as empty.
// Everything after a bare "--" is positional.
func parseArgs(args []string) cliArgs {
	out := cliArgs{flags: map[string]string{}}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			out.positional = append(out.positional, args[i+1:]...)
			break
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			out.positional = append(out.positional, arg)
			continue
		}

		name := strings.TrimLeft(arg, "-")
		if key, value, ok := strings.Cut(name, "="); ok {
			out.flags[expandAlias(key)] = value
			continue
		}
		value := ""
		if i+1 < len(args) {
			value = args[i+1]
			i++
		}
		out.flags[expandAlias(name)] = value
	}

	return out
}

func expandAlias(name string) string {
	switch name {
	case "w":
		return "workspace"
	case "m":
		return "model"
	case "t":
		return "title"
	case "r":
		return "role"
	}
	return name
}

func (a cliArgs) flag(name string) string {
	return a.flags[name]
}

// require returns the first n positional arguments or a usage error.
func (a cliArgs) require(usage string, n int) ([]string, error) {
	if len(a.positional) < n {
		return nil, fmt.Errorf("usage: memex %s", usage)
	}
	return a.positional[:n], nil
}

// rest joins the positional arguments from index i onward
func (a cliArgs) rest(i int) string {
	if i >= len(a.positional) {
		return ""
	}
	return strings.Join(a.positional[i:], " ")
}
