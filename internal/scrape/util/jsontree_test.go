package util

import (
	"encoding/json"
	"testing"
)

func TestFindFirstKeyDocumentOrder(t *testing.T) {
	t.Parallel()

	doc := []byte(`{
		"a": {"level": "deep-first"},
		"b": {"nested": {"level": "deeper"}},
		"level": "top"
	}`)

	raw, ok := FindFirstKey(doc, "level")
	if !ok {
		t.Fatal("key not found")
	}
	var got string
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	// depth-first in document order: the occurrence inside "a" wins
	if got != "deep-first" {
		t.Fatalf("got %q, want deep-first", got)
	}
}

func TestFindFirstKeyInsideArrays(t *testing.T) {
	t.Parallel()

	doc := []byte(`{"items": [ {"x": 1}, {"target": {"y": 2}} ]}`)

	raw, ok := FindFirstKey(doc, "target")
	if !ok {
		t.Fatal("key not found")
	}
	var got map[string]int
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["y"] != 2 {
		t.Fatalf("got %v", got)
	}
}

func TestFindFirstKeyAbsent(t *testing.T) {
	t.Parallel()

	if _, ok := FindFirstKey([]byte(`{"a": [1, 2, {"b": null}]}`), "missing"); ok {
		t.Fatal("found a key that is not there")
	}
}

func TestFindFirstKeyMalformed(t *testing.T) {
	t.Parallel()

	if _, ok := FindFirstKey([]byte(`{"a": `), "a"); ok {
		t.Fatal("reported success on truncated input")
	}
}

func TestScalarString(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want string
		ok   bool
	}{
		{`"Senior"`, "Senior", true},
		{`"<p>5 years</p>"`, "5 years", true},
		{`3`, "3", true},
		{`2.5`, "2.5", true},
		{`true`, "true", true},
		{`null`, "", false},
		{`{"a":1}`, "", false},
		{`[1]`, "", false},
	}
	for _, tc := range cases {
		got, ok := ScalarString(json.RawMessage(tc.raw))
		if got != tc.want || ok != tc.ok {
			t.Fatalf("ScalarString(%s) = %q, %v; want %q, %v", tc.raw, got, ok, tc.want, tc.ok)
		}
	}
}
