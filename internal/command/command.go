// Package command parses slash commands typed into the input line and
// dispatches them to registered handlers.
package command

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/meszmate/jabber/internal/autocomplete"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrUsage          = errors.New("invalid usage")
	ErrDuplicate      = errors.New("command already registered")
)

// ParseArgs splits input into whitespace separated arguments, dropping the
// leading command token. ok is false for blank input or when the number of
// arguments is outside [min, max]. A valid command without arguments yields
// an empty, non-nil slice.
func ParseArgs(input string, min, max int) (args []string, ok bool) {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return nil, false
	}

	n := len(fields) - 1
	if n < min || n > max {
		return nil, false
	}
	args = make([]string, n)
	copy(args, fields[1:])
	return args, true
}

// ParseArgsWithFreetext is like ParseArgs, except that everything after the
// first max-1 arguments is returned verbatim as one final argument
func ParseArgsWithFreetext(input string, min, max int) (args []string, ok bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, false
	}

	_, rest := nextToken(input)
	args = []string{}
	for len(args) < max-1 && rest != "" {
		var tok string
		tok, rest = nextToken(rest)
		args = append(args, tok)
	}
	if rest != "" {
		if max == 0 {
			return nil, false
		}
		args = append(args, rest)
	}

	if len(args) < min || len(args) > max {
		return nil, false
	}
	return args, true
}

// nextToken splits s at the first run of whitespace
func nextToken(s string) (tok, rest string) {
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimLeftFunc(s[i:], unicode.IsSpace)
}

// Name returns the command token of input, empty for blank input
func Name(input string) string {
	fields := strings.Fields(input)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// Handler runs a command with its parsed arguments
type Handler func(args []string) error

// Command represents a registered command
type Command struct {
	Name        string
	Usage       string
	Description string
	Min         int
	Max         int

	// Freetext joins the trailing words into the last argument
	Freetext bool
	Handler  Handler
}

// Parse extracts the arguments of input for this command
func (c Command) Parse(input string) ([]string, bool) {
	if c.Freetext {
		return ParseArgsWithFreetext(input, c.Min, c.Max)
	}
	return ParseArgs(input, c.Min, c.Max)
}

// Registry holds the known commands and completes their names
type Registry struct {
	commands map[string]Command
	names    *autocomplete.Completer
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]Command),
		names:    autocomplete.New(),
	}
}

// Register adds a command
func (r *Registry) Register(cmd Command) error {
	if _, ok := r.commands[cmd.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, cmd.Name)
	}
	r.commands[cmd.Name] = cmd
	r.names.Add(cmd.Name)
	return nil
}

// Lookup returns a command by name
func (r *Registry) Lookup(name string) (Command, bool) {
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Commands returns all commands ordered by name
func (r *Registry) Commands() []Command {
	out := make([]Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute parses input and runs the matching handler
func (r *Registry) Execute(input string) error {
	name := Name(input)
	cmd, ok := r.Lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}
	args, ok := cmd.Parse(input)
	if !ok {
		return fmt.Errorf("%w, usage: %s", ErrUsage, cmd.Usage)
	}
	if cmd.Handler == nil {
		return nil
	}
	return cmd.Handler(args)
}

// Complete cycles through command names starting with prefix
func (r *Registry) Complete(prefix string) string {
	return r.names.Complete(prefix)
}

// ResetCompletion restarts the completion cycle
func (r *Registry) ResetCompletion() {
	r.names.Reset()
}
