package command

import (
	"strings"
	"testing"
)

func parseAll(t *testing.T, input string) []*Command {
	t.Helper()
	p := NewParser(strings.NewReader(input))
	var out []*Command
	for {
		cmd := p.Next()
		if cmd.Kind == EOC {
			break
		}
		out = append(out, cmd)
	}
	return out
}

func TestParseCreate(t *testing.T) {
	cmds := parseAll(t, "CREATE 1 2 3\n")
	if len(cmds) != 1 {
		t.Fatalf("expected 1 command, got %d", len(cmds))
	}
	c := cmds[0]
	if c.Kind != Create || c.EventID != 1 || c.Rows != 2 || c.Cols != 3 {
		t.Fatalf("unexpected parse: %+v", c)
	}
}

func TestParseReserveWithCoords(t *testing.T) {
	cmds := parseAll(t, "RESERVE 1 (1,1) (1,2)\n")
	c := cmds[0]
	if c.Kind != Reserve || c.EventID != 1 {
		t.Fatalf("unexpected parse: %+v", c)
	}
	if len(c.Coords) != 2 || c.Coords[0].Row != 1 || c.Coords[0].Col != 1 || c.Coords[1].Col != 2 {
		t.Fatalf("unexpected coords: %+v", c.Coords)
	}
}

func TestParseWaitBroadcast(t *testing.T) {
	cmds := parseAll(t, "WAIT 500\n")
	c := cmds[0]
	if c.Kind != Wait || c.WaitDelayMs != 500 || c.HasThreadID {
		t.Fatalf("unexpected parse: %+v", c)
	}
}

func TestParseWaitTargeted(t *testing.T) {
	cmds := parseAll(t, "WAIT 500 2\n")
	c := cmds[0]
	if c.Kind != Wait || c.WaitDelayMs != 500 || !c.HasThreadID || c.WaitThreadID != 2 {
		t.Fatalf("unexpected parse: %+v", c)
	}
}

func TestParseCommentAndEmpty(t *testing.T) {
	cmds := parseAll(t, "# a comment\n\nLIST\n")
	if len(cmds) != 3 {
		t.Fatalf("expected 3 commands, got %d", len(cmds))
	}
	if cmds[0].Kind != Comment || cmds[1].Kind != Empty || cmds[2].Kind != List {
		t.Fatalf("unexpected kinds: %v %v %v", cmds[0].Kind, cmds[1].Kind, cmds[2].Kind)
	}
}

func TestParseInvalidKeyword(t *testing.T) {
	cmds := parseAll(t, "FROBNICATE 1\n")
	if cmds[0].Kind != Invalid {
		t.Fatalf("expected Invalid, got %v", cmds[0].Kind)
	}
}

func TestParseTrailingWhitespaceInvalid(t *testing.T) {
	cmds := parseAll(t, "LIST \n")
	if cmds[0].Kind != Invalid {
		t.Fatalf("expected Invalid for trailing whitespace, got %v", cmds[0].Kind)
	}
}

func TestParseBadCoordInvalid(t *testing.T) {
	cmds := parseAll(t, "RESERVE 1 (1,a)\n")
	if cmds[0].Kind != Invalid {
		t.Fatalf("expected Invalid, got %v", cmds[0].Kind)
	}
}

func TestEOCAfterExhaustion(t *testing.T) {
	p := NewParser(strings.NewReader("LIST\n"))
	if cmd := p.Next(); cmd.Kind != List {
		t.Fatalf("expected List, got %v", cmd.Kind)
	}
	if cmd := p.Next(); cmd.Kind != EOC {
		t.Fatalf("expected EOC, got %v", cmd.Kind)
	}
	if cmd := p.Next(); cmd.Kind != EOC {
		t.Fatalf("expected EOC on repeated call, got %v", cmd.Kind)
	}
}
