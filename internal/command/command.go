// Package command implements the textual command grammar referenced by
// spec.md §6 "Input file grammar (token level, exhaustive)". Grammar
// parsing itself is an out-of-core-rigor concern (spec.md §1), but the
// token set and field semantics it references are binding, so this
// package implements them in full to keep the module runnable.
package command

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mistakeknot/ems/internal/ems"
)

// Kind tags the variant of a parsed command (spec.md §4.C dispatch table).
type Kind int

const (
	Create Kind = iota
	Reserve
	Show
	List
	Barrier
	Wait
	Help
	Empty
	Comment
	Invalid
	EOC
)

func (k Kind) String() string {
	switch k {
	case Create:
		return "CREATE"
	case Reserve:
		return "RESERVE"
	case Show:
		return "SHOW"
	case List:
		return "LIST"
	case Barrier:
		return "BARRIER"
	case Wait:
		return "WAIT"
	case Help:
		return "HELP"
	case Empty:
		return "EMPTY"
	case Comment:
		return "COMMENT"
	case Invalid:
		return "INVALID"
	case EOC:
		return "EOC"
	default:
		return "UNKNOWN"
	}
}

// Command is one parsed line of input.
type Command struct {
	Kind Kind

	EventID uint32
	Rows    int
	Cols    int
	Coords  []ems.Coord

	WaitDelayMs  uint32
	WaitThreadID uint32
	HasThreadID  bool

	Raw string
	Err string // populated for Invalid/ParseError
}

// HelpText is the fixed usage string emitted for HELP (spec.md §4.C).
const HelpText = `Available commands:
  CREATE <event_id> <rows> <cols>
  RESERVE <event_id> [(<x>,<y>) ...]
  SHOW <event_id>
  LIST
  WAIT <delay_ms> [<thread_id>]
  BARRIER
  HELP
`

// Parser reads commands from an input stream line by line. A token that
// does not begin with one of the keyword first letters is INVALID;
// trailing whitespace before a newline is not permitted; '#' comments
// consume to end of line.
type Parser struct {
	scanner *bufio.Scanner
	done    bool
}

func NewParser(r io.Reader) *Parser {
	return &Parser{scanner: bufio.NewScanner(r)}
}

// Next returns the next parsed Command, or EOC once the stream is
// exhausted. Next never returns an error itself: malformed lines become
// Kind==Invalid commands that the executor reports and skips (spec.md
// §7 "Recovered locally").
func (p *Parser) Next() *Command {
	if p.done {
		return &Command{Kind: EOC}
	}
	if !p.scanner.Scan() {
		p.done = true
		return &Command{Kind: EOC}
	}
	return parseLine(p.scanner.Text())
}

func parseLine(line string) *Command {
	trimmed := strings.TrimRight(line, " \t")
	if trimmed != line {
		return &Command{Kind: Invalid, Raw: line, Err: "trailing whitespace before newline"}
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return &Command{Kind: Empty, Raw: line}
	}
	if strings.HasPrefix(fields[0], "#") {
		return &Command{Kind: Comment, Raw: line}
	}

	switch strings.ToUpper(fields[0]) {
	case "CREATE":
		return parseCreate(fields, line)
	case "RESERVE":
		return parseReserve(fields, line)
	case "SHOW":
		return parseShow(fields, line)
	case "LIST":
		if len(fields) != 1 {
			return &Command{Kind: Invalid, Raw: line, Err: "LIST takes no arguments"}
		}
		return &Command{Kind: List, Raw: line}
	case "BARRIER":
		if len(fields) != 1 {
			return &Command{Kind: Invalid, Raw: line, Err: "BARRIER takes no arguments"}
		}
		return &Command{Kind: Barrier, Raw: line}
	case "WAIT":
		return parseWait(fields, line)
	case "HELP":
		if len(fields) != 1 {
			return &Command{Kind: Invalid, Raw: line, Err: "HELP takes no arguments"}
		}
		return &Command{Kind: Help, Raw: line}
	default:
		return &Command{Kind: Invalid, Raw: line, Err: fmt.Sprintf("unrecognized keyword %q", fields[0])}
	}
}

func parseUint(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%q is not a valid unsigned integer", s)
	}
	return uint32(v), nil
}

func parseCreate(fields []string, line string) *Command {
	if len(fields) != 4 {
		return &Command{Kind: Invalid, Raw: line, Err: "CREATE requires event_id, rows, cols"}
	}
	id, err := parseUint(fields[1])
	if err != nil {
		return &Command{Kind: Invalid, Raw: line, Err: err.Error()}
	}
	rows, err := parseUint(fields[2])
	if err != nil {
		return &Command{Kind: Invalid, Raw: line, Err: err.Error()}
	}
	cols, err := parseUint(fields[3])
	if err != nil {
		return &Command{Kind: Invalid, Raw: line, Err: err.Error()}
	}
	return &Command{Kind: Create, EventID: id, Rows: int(rows), Cols: int(cols), Raw: line}
}

func parseShow(fields []string, line string) *Command {
	if len(fields) != 2 {
		return &Command{Kind: Invalid, Raw: line, Err: "SHOW requires event_id"}
	}
	id, err := parseUint(fields[1])
	if err != nil {
		return &Command{Kind: Invalid, Raw: line, Err: err.Error()}
	}
	return &Command{Kind: Show, EventID: id, Raw: line}
}

func parseReserve(fields []string, line string) *Command {
	if len(fields) < 2 {
		return &Command{Kind: Invalid, Raw: line, Err: "RESERVE requires event_id"}
	}
	id, err := parseUint(fields[1])
	if err != nil {
		return &Command{Kind: Invalid, Raw: line, Err: err.Error()}
	}
	coords := make([]ems.Coord, 0, len(fields)-2)
	for _, tok := range fields[2:] {
		c, err := parseCoord(tok)
		if err != nil {
			return &Command{Kind: Invalid, Raw: line, Err: err.Error()}
		}
		coords = append(coords, c)
	}
	return &Command{Kind: Reserve, EventID: id, Coords: coords, Raw: line}
}

func parseCoord(tok string) (ems.Coord, error) {
	if len(tok) < 5 || tok[0] != '(' || tok[len(tok)-1] != ')' {
		return ems.Coord{}, fmt.Errorf("%q is not a valid (x,y) coordinate", tok)
	}
	inner := tok[1 : len(tok)-1]
	parts := strings.Split(inner, ",")
	if len(parts) != 2 {
		return ems.Coord{}, fmt.Errorf("%q is not a valid (x,y) coordinate", tok)
	}
	x, err := parseUint(parts[0])
	if err != nil {
		return ems.Coord{}, err
	}
	y, err := parseUint(parts[1])
	if err != nil {
		return ems.Coord{}, err
	}
	return ems.Coord{Row: int(x), Col: int(y)}, nil
}

func parseWait(fields []string, line string) *Command {
	if len(fields) != 2 && len(fields) != 3 {
		return &Command{Kind: Invalid, Raw: line, Err: "WAIT requires delay_ms [thread_id]"}
	}
	delay, err := parseUint(fields[1])
	if err != nil {
		return &Command{Kind: Invalid, Raw: line, Err: err.Error()}
	}
	cmd := &Command{Kind: Wait, WaitDelayMs: delay, Raw: line}
	if len(fields) == 3 {
		tid, err := parseUint(fields[2])
		if err != nil {
			return &Command{Kind: Invalid, Raw: line, Err: err.Error()}
		}
		cmd.WaitThreadID = tid
		cmd.HasThreadID = true
	}
	return cmd
}
