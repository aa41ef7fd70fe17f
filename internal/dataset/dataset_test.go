package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sample = `Space Name,Phase,Fee,Negotiate,Description
OWNER-SCOPE-INITIATION,OWNER,$1500,Yes,"Scope, budget and goals"
ARCH-INITIATION,DESIGN,10%,No,"Line one
line two"

CON-INSPECT,CONSTRUCTION,,,
`

func TestParseHeaderMapping(t *testing.T) {
	tbl, err := Parse("spaces", strings.NewReader(sample))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(tbl.Rows) != 3 {
		t.Fatalf("expected 3 rows (blank skipped), got %d", len(tbl.Rows))
	}

	r := tbl.Rows[0]
	if got := r.String("Description"); got != "Scope, budget and goals" {
		t.Errorf("quoted field with delimiter: got %q", got)
	}
	if n, ok := r.Int("Fee"); !ok || n != 1500 {
		t.Errorf("expected fee 1500, got %d (%v)", n, ok)
	}
	if !r.Bool("Negotiate") {
		t.Error("expected Negotiate=Yes to be true")
	}

	r = tbl.Rows[1]
	if n, _ := r.Int("Fee"); n != 10 {
		t.Errorf("expected percent fee 10, got %d", n)
	}
	if got := r.String("Description"); got != "Line one\nline two" {
		t.Errorf("multiline field: got %q", got)
	}

	if got := tbl.Rows[2].String("Missing"); got != "" {
		t.Errorf("absent column should be empty, got %q", got)
	}
	if tbl.Rows[2].IntOr("Fee", 7) != 7 {
		t.Error("expected IntOr default for empty cell")
	}
}

func TestRequireReportsAllMissingColumns(t *testing.T) {
	tbl, err := Parse("dice", strings.NewReader("Space Name,1,2\nX,a,b\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	err = tbl.Require("Space Name", "Die Roll", "Visit Type", "1")
	var mc *MissingColumnsError
	if !errors.As(err, &mc) {
		t.Fatalf("expected MissingColumnsError, got %v", err)
	}
	if len(mc.Columns) != 2 || mc.Columns[0] != "Die Roll" || mc.Columns[1] != "Visit Type" {
		t.Errorf("unexpected missing columns: %v", mc.Columns)
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := Parse("empty", strings.NewReader("")); !errors.Is(err, ErrEmpty) {
		t.Errorf("expected ErrEmpty, got %v", err)
	}
}

func TestCoerce(t *testing.T) {
	if v := Coerce("42"); v != 42 {
		t.Errorf("expected int 42, got %#v", v)
	}
	if v := Coerce("1.5"); v != 1.5 {
		t.Errorf("expected float 1.5, got %#v", v)
	}
	if v := Coerce("TRUE"); v != true {
		t.Errorf("expected bool true, got %#v", v)
	}
	if v := Coerce("FINISH"); v != "FINISH" {
		t.Errorf("expected string, got %#v", v)
	}
}

func TestRowMapAndBOM(t *testing.T) {
	tbl, err := Parse("cards", strings.NewReader("\ufeffCard ID,Amount\nB001,10000\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	m := tbl.Rows[0].Map()
	if m["Card ID"] != "B001" || m["Amount"] != 10000 {
		t.Errorf("unexpected row map: %#v", m)
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spaces.csv")
	if err := os.WriteFile(path, []byte(sample), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tbl, err := ParseFile(path)
	if err != nil {
		t.Fatalf("parse file: %v", err)
	}
	if tbl.Name != path || !tbl.Has("Phase") {
		t.Errorf("unexpected table: name=%s headers=%v", tbl.Name, tbl.Headers)
	}
	if _, err := ParseFile(filepath.Join(t.TempDir(), "nope.csv")); err == nil {
		t.Error("expected error for missing file")
	}
}
