package types

import "fmt"

// Command is the single byte that opens every connection.
type Command byte

// Command values on the wire. No other values are valid.
const (
	CommandUpload Command = 1
	CommandSearch Command = 2
	CommandDelete Command = 3
	CommandList   Command = 4
)

// Valid reports whether c is one of the defined commands.
func (c Command) Valid() bool {
	switch c {
	case CommandUpload, CommandSearch, CommandDelete, CommandList:
		return true
	default:
		return false
	}
}

// String returns the lowercase command name used in logs and journal records.
func (c Command) String() string {
	switch c {
	case CommandUpload:
		return "upload"
	case CommandSearch:
		return "search"
	case CommandDelete:
		return "delete"
	case CommandList:
		return "list"
	default:
		return fmt.Sprintf("unknown(%d)", byte(c))
	}
}

// ParseCommand maps a command name back to its Command.
func ParseCommand(name string) (Command, bool) {
	for _, c := range Commands() {
		if c.String() == name {
			return c, true
		}
	}
	return 0, false
}

// Commands returns all valid commands in wire order.
func Commands() []Command {
	return []Command{CommandUpload, CommandSearch, CommandDelete, CommandList}
}
