package codec

import (
	"strings"
	"testing"
)

func TestLookup(t *testing.T) {
	for _, name := range []string{"json", "msgpack", "cbor", "protobuf", " JSON "} {
		if _, err := Lookup(name); err != nil {
			t.Fatalf("Lookup(%q): %v", name, err)
		}
	}
	_, err := Lookup("pickle")
	if err == nil || !strings.Contains(err.Error(), "json") {
		t.Fatalf("expected unknown codec error listing names, got %v", err)
	}
}

// Annotation replies carry nested lists of word/tag pairs; every codec must
// bring them back as []any of []any so handlers can treat them uniformly.
func TestJobMappingSurvivesEveryCodec(t *testing.T) {
	job := map[string]any{
		"lang":  "en",
		"text":  "New York rocks",
		"x_ne":  []any{[]any{"New York", "LOCATION"}, []any{"rocks", "O"}},
		"x_err": "none",
	}
	r := NewRegistry()
	for _, name := range r.Names() {
		c, _ := r.Get(name)
		b, err := c.Marshal(job)
		if err != nil {
			t.Fatalf("%s marshal: %v", name, err)
		}
		var out map[string]any
		if err := c.Unmarshal(b, &out); err != nil {
			t.Fatalf("%s unmarshal: %v", name, err)
		}
		if out["text"] != "New York rocks" || out["x_err"] != "none" {
			t.Fatalf("%s: scalar fields lost: %#v", name, out)
		}
		ne, ok := out["x_ne"].([]any)
		if !ok || len(ne) != 2 {
			t.Fatalf("%s: x_ne not a list: %#v", name, out["x_ne"])
		}
		first, ok := ne[0].([]any)
		if !ok || first[0] != "New York" || first[1] != "LOCATION" {
			t.Fatalf("%s: pair mangled: %#v", name, ne[0])
		}
	}
}

func TestProtoRejectsNonMapping(t *testing.T) {
	if _, err := Proto().Marshal([]string{"a"}); err == nil {
		t.Fatalf("expected error for non-map value")
	}
	var s string
	if err := Proto().Unmarshal(nil, &s); err == nil {
		t.Fatalf("expected error for non-map target")
	}
}
