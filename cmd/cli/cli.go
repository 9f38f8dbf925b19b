package cli

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/midbel/distance"
	"github.com/spf13/pflag"
)

var ErrMissing = errors.New("missing subcommand")

type SuggestionError struct {
	Name   string
	Others []string
}

func (e SuggestionError) Error() string {
	return fmt.Sprintf("%s: unknown subcommand", e.Name)
}

type Command struct {
	Name    string
	Alias   []string
	Summary string
	Help    string
	Handler
}

type Handler interface {
	Run([]string) error
}

type HandlerFunc func([]string) error

func (f HandlerFunc) Run(args []string) error {
	return f(args)
}

type CommandNode struct {
	Name     string
	Children map[string]*CommandNode
	Handler
}

func createNode(name string) *CommandNode {
	return &CommandNode{
		Name:     name,
		Children: make(map[string]*CommandNode),
	}
}

type CommandTrie struct {
	root     *CommandNode
	commands []*Command
}

func New() *CommandTrie {
	trie := CommandTrie{
		root: createNode(""),
	}
	return &trie
}

// Register adds handler under paths. A command is also registered under
// each of its aliases.
func (t *CommandTrie) Register(paths []string, handler Handler) error {
	if len(paths) == 0 {
		return fmt.Errorf("empty command path")
	}
	node := t.root
	for _, name := range paths {
		if node.Children[name] == nil {
			node.Children[name] = createNode(name)
		}
		node = node.Children[name]
	}
	if node.Handler != nil {
		return fmt.Errorf("%s: command already registered", strings.Join(paths, " "))
	}
	node.Handler = handler
	if cmd, ok := handler.(*Command); ok {
		t.commands = append(t.commands, cmd)
		for _, a := range cmd.Alias {
			alias := append(slices.Clone(paths[:len(paths)-1]), a)
			if err := t.Register(alias, cmd.Handler); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *CommandTrie) Execute(args []string) error {
	var (
		node = t.root
		ix   int
	)
	for _, name := range args {
		child := node.Children[name]
		if child == nil {
			break
		}
		node = child
		ix++
	}
	if node.Handler == nil {
		if ix >= len(args) {
			return ErrMissing
		}
		list := slices.Collect(maps.Keys(node.Children))
		return t.suggest(args[ix], list)
	}
	return node.Handler.Run(args[ix:])
}

// Usage writes the summary of every registered command.
func (t *CommandTrie) Usage(w io.Writer) {
	list := slices.Clone(t.commands)
	slices.SortFunc(list, func(a, b *Command) int {
		return strings.Compare(a.Name, b.Name)
	})
	var width int
	for _, c := range list {
		width = max(width, len(c.Name))
	}
	for _, c := range list {
		fmt.Fprintf(w, "  %-*s  %s\n", width, c.Name, c.Summary)
	}
}

func (t *CommandTrie) suggest(name string, others []string) error {
	return SuggestionError{
		Name:   name,
		Others: distance.Levenshtein(name, others),
	}
}

// NewFlagSet gives a flag set that reports parse errors to its caller
// instead of exiting.
func NewFlagSet(name string) *pflag.FlagSet {
	set := pflag.NewFlagSet(name, pflag.ContinueOnError)
	set.SortFlags = false
	return set
}
