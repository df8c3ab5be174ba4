package service

import (
	"regexp"
	"strconv"
	"strings"
)

// Subcommand is the action a clear command asks for.
type Subcommand int

const (
	SubHelp Subcommand = iota
	SubAll
	SubRecent
	SubBefore
	SubAmnesia
	SubAmnesiaConfirm
	SubUnknown
)

const (
	DefaultRecentCount  = 10
	DefaultBeforeHours  = 24
	commandPrefixGroups = 3
)

var commandRegex = regexp.MustCompile(`(?s)^/(clear|清除上下文|清空上下文)(?:@\w+)?(?:\s+(.*))?$`)

var subcommands = map[string]Subcommand{
	"all":     SubAll,
	"全部":      SubAll,
	"recent":  SubRecent,
	"最近":      SubRecent,
	"before":  SubBefore,
	"之前":      SubBefore,
	"help":    SubHelp,
	"帮助":      SubHelp,
	"amnesia": SubAmnesia,
	"失忆":      SubAmnesia,
}

// Command is a parsed clear command.
type Command struct {
	Sub Subcommand
	// Arg is the count for SubRecent or the hours for SubBefore.
	Arg int
	// Raw holds the unrecognised subcommand, or the rejected argument when BadArg is set.
	Raw    string
	BadArg bool
}

// ParseCommand reports whether text is a clear command and parses it.
func ParseCommand(text string) (Command, bool) {
	m := commandRegex.FindStringSubmatch(strings.TrimSpace(text))
	if len(m) != commandPrefixGroups {
		return Command{}, false
	}

	parts := strings.Fields(m[2])
	if len(parts) == 0 {
		return Command{Sub: SubHelp}, true
	}

	sub, ok := subcommands[parts[0]]
	if !ok {
		return Command{Sub: SubUnknown, Raw: parts[0]}, true
	}

	cmd := Command{Sub: sub}
	switch sub {
	case SubRecent:
		cmd.Arg = DefaultRecentCount
	case SubBefore:
		cmd.Arg = DefaultBeforeHours
	case SubAmnesia:
		if len(parts) > 1 && IsConfirmWord(parts[1]) {
			cmd.Sub = SubAmnesiaConfirm
		}
		return cmd, true
	default:
		return cmd, true
	}

	if len(parts) > 1 {
		n, err := strconv.Atoi(parts[1])
		if err != nil || n <= 0 {
			cmd.BadArg = true
			cmd.Raw = parts[1]
			return cmd, true
		}
		cmd.Arg = n
	}
	return cmd, true
}

// IsConfirmWord matches the freestanding confirmation message.
func IsConfirmWord(text string) bool {
	switch strings.TrimSpace(text) {
	case "confirm", "确认":
		return true
	}
	return false
}

func (s Subcommand) String() string {
	switch s {
	case SubHelp:
		return "help"
	case SubAll:
		return "all"
	case SubRecent:
		return "recent"
	case SubBefore:
		return "before"
	case SubAmnesia:
		return "amnesia"
	case SubAmnesiaConfirm:
		return "amnesia confirm"
	default:
		return "unknown"
	}
}
