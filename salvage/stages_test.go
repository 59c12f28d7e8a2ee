package salvage

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", `  {"a": 1}  `, `{"a": 1}`},
		{"json tagged", "Here you go:\n```json\n{\"a\": 1}\n```\nThanks", `{"a": 1}`},
		{"untagged", "```\n[1, 2]\n```", `[1, 2]`},
		{"unterminated", "```json\n{\"a\": [1, 2", `{"a": [1, 2`},
		{"skips non-json block", "```bash\nls -la\n```\n```json\n{\"b\": 2}\n```", `{"b": 2}`},
		{"single line", "```{\"a\": 1}```", `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractFence(tt.in))
		})
	}
}

func TestExtractEnvelope(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"prose around object", `Sure! {"a": {"b": 1}} Hope that helps.`, `{"a": {"b": 1}}`},
		{"bare array", `Result: [{"a": 1}] done`, `[{"a": 1}]`},
		{"no closer", `note {"a": [1`, `{"a": [1`},
		{"nothing", `no json here`, `no json here`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractEnvelope(tt.in))
		})
	}
}

func TestStripTrailingCommas(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"object", `{"a": 1,}`, `{"a": 1}`},
		{"array with space", `[1, 2 , ]`, `[1, 2  ]`},
		{"nested", `{"a": [1, {"b": 2,},],}`, `{"a": [1, {"b": 2}]}`},
		{"repeated commas", `[1,,]`, `[1]`},
		{"inside string untouched", `{"a": "x,}"}`, `{"a": "x,}"}`},
		{"escaped quote", `{"a": "say \",]\"",}`, `{"a": "say \",]\""}`},
		{"line comment", "{\"a\": 1, // note\n\"b\": 2}", "{\"a\": 1, \n\"b\": 2}"},
		{"url in string", `{"u": "https://x.dev",}`, `{"u": "https://x.dev"}`},
		{"valid unchanged", `{"a": [1, 2]}`, `{"a": [1, 2]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StripTrailingCommas(tt.in))
		})
	}
}

func TestRepairTruncation(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"complete unchanged", `{"a": [1, 2]}`, `{"a": [1, 2]}`},
		{"open array", `{"a": [1, 2`, `{"a": [1, 2]}`},
		{"unterminated string value", `{"a": 1, "b": "hel`, `{"a": 1}`},
		{"dangling colon", `{"a": 1, "b":`, `{"a": 1}`},
		{"dangling key", `{"a": 1, "b"`, `{"a": 1}`},
		{"dangling comma", `[{"a": 1},`, `[{"a": 1}]`},
		{"partial literal", `{"a": 1, "b": tru`, `{"a": 1}`},
		{"complete literal", `{"a": true`, `{"a": true}`},
		{"partial number", `[1, 2.`, `[1]`},
		{"nested closers innermost first", `{"items": [{"t": "x", "tags": ["a"`, `{"items": [{"t": "x", "tags": ["a"]}]}`},
		{"empty container", `{"items": [`, `{"items": []}`},
		{"string in array", `["a", "b`, `["a"]`},
		{"braces in string", `{"a": "}{", "b": [`, `{"a": "}{", "b": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RepairTruncation(tt.in)
			assert.Equal(t, tt.want, got)
			assert.True(t, json.Valid([]byte(got)), "repaired output should parse: %s", got)
		})
	}
}

func TestSliceArrayField(t *testing.T) {
	assert.Equal(t, `[{"a": "]"}]`, SliceArrayField(`{"meta": 1, "items" : [{"a": "]"}], "x": 2`, "items"))
	assert.Equal(t, `[{"a": 1}, {"b"`, SliceArrayField(`{"items": [{"a": 1}, {"b"`, "items"))
	assert.Empty(t, SliceArrayField(`{"other": []}`, "items"))
	assert.Empty(t, SliceArrayField(`{"items": []}`, ""))
}

func TestObjectFragments(t *testing.T) {
	got := ObjectFragments(`junk {"a": {"b": 1}} more {"c": "}"} {"broken": `)
	assert.Equal(t, []string{`{"a": {"b": 1}}`, `{"b": 1}`, `{"c": "}"}`}, got)
}
