package subwaytext

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBlock_JSONRoundTrip(t *testing.T) {
	input := "# Title\n" +
		"Some text with /a-link and [[Wiki]] and https://example.com\n" +
		"\n" +
		"- one\n" +
		"- two\n" +
		"1. first\n" +
		"> quoted\n" +
		"```go\n" +
		"x := 1\n" +
		"```\n" +
		"/standalone\n" +
		"https://example.org/page\n"
	blocks := Parse(input)

	data, err := json.Marshal(blocks)
	if err != nil {
		t.Fatal(err)
	}
	var got []Block
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if diff := cmp.Diff(blocks, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	seen := make(map[BlockType]bool)
	for _, b := range got {
		seen[b.Type] = true
	}
	for _, bt := range AllBlockTypes {
		if !seen[bt] {
			t.Errorf("input should produce a %s block", bt)
		}
	}
}

func TestBlock_UnmarshalUnknownType(t *testing.T) {
	var b Block
	if err := json.Unmarshal([]byte(`{"type":"table","data":{}}`), &b); err == nil {
		t.Fatal("expected error for unknown block type")
	}
}

func TestParseBlockType(t *testing.T) {
	if bt, ok := ParseBlockType("code"); !ok || bt != BlockCode {
		t.Errorf("ParseBlockType(code) = %q, %v", bt, ok)
	}
	if _, ok := ParseBlockType("table"); ok {
		t.Error("table is not a block type")
	}
}
