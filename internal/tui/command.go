package tui

import (
	"fmt"
	"strings"
)

// Command is a parsed ":" command with its name resolved from any alias.
type Command struct {
	Name string
	Args string
}

type commandDef struct {
	aliases  []string
	min, max int // max < 0 means unbounded
	usage    string
	valid    func(args []string) bool
}

var commands = map[string]commandDef{
	"quit":   {aliases: []string{"q"}, usage: "quit"},
	"help":   {aliases: []string{"h"}, usage: "help"},
	"search": {aliases: []string{"filter", "f"}, max: -1, usage: "search [text]"},
	"single": {min: 1, max: 1, usage: "single <user-id>"},
	"group":  {min: 1, max: -1, usage: "group <name> [user-id...]"},
	"wifi":   {min: 1, max: 1, usage: "wifi on|off", valid: onOff},
	"logout": {usage: "logout"},
}

func onOff(args []string) bool {
	return args[0] == "on" || args[0] == "off"
}

func lookup(name string) (string, commandDef, bool) {
	if def, ok := commands[name]; ok {
		return name, def, true
	}
	for canonical, def := range commands {
		for _, a := range def.aliases {
			if a == name {
				return canonical, def, true
			}
		}
	}
	return "", commandDef{}, false
}

// ParseCommand parses input without its leading ':' and checks the argument
// count. The error text is shown to the user as is.
func ParseCommand(input string) (Command, error) {
	name, args, _ := strings.Cut(strings.TrimSpace(input), " ")
	name = strings.ToLower(name)
	canonical, def, ok := lookup(name)
	if !ok {
		return Command{}, fmt.Errorf("unknown command: %s", name)
	}
	cmd := Command{Name: canonical, Args: strings.TrimSpace(args)}
	n := len(cmd.Fields())
	if n < def.min || (def.max >= 0 && n > def.max) || (def.valid != nil && !def.valid(cmd.Fields())) {
		return Command{}, fmt.Errorf("usage: %s", def.usage)
	}
	return cmd, nil
}

// Fields splits the arguments on whitespace.
func (c Command) Fields() []string {
	return strings.Fields(c.Args)
}
