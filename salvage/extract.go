// Package salvage recovers validated items from model output that may be fenced,
// wrapped in prose, carry trailing commas, or be cut off mid-document.
//
// Extract runs an ordered cascade of pure text stages and stops at the first
// whose output parses to the expected shape with at least one valid item.
// Malformed input is never an error: the worst case is zero items.
package salvage

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Stage names a step of the recovery cascade.
type Stage string

const (
	StageDirect             Stage = "direct"
	StageFenceExtract       Stage = "fence_extract"
	StageBraceBalance       Stage = "brace_balance"
	StageTrailingCommaStrip Stage = "trailing_comma_strip"
	StageTruncationRepair   Stage = "truncation_repair"
	StageArraySliceExtract  Stage = "array_slice_extract"
	StageItemByItemExtract  Stage = "item_by_item_extract"
)

// Stages lists the cascade in order.
var Stages = []Stage{
	StageDirect,
	StageFenceExtract,
	StageBraceBalance,
	StageTrailingCommaStrip,
	StageTruncationRepair,
	StageArraySliceExtract,
	StageItemByItemExtract,
}

// Attempt records what one stage produced. Diagnostic only.
type Attempt struct {
	Stage     Stage
	Text      string
	Succeeded bool
}

// Rejection is a candidate dropped by validation.
type Rejection struct {
	Index  int
	Reason string
}

// Result is the outcome of Extract.
type Result[T any] struct {
	// Items passed validation, capped at maxItems.
	Items []T

	// Stage is the winning stage, empty if none produced a usable shape.
	Stage Stage

	Attempts []Attempt

	// Rejected lists candidates of the winning (or last parsed) stage that failed validation.
	Rejected []Rejection
}

// Extract pulls up to maxItems valid items out of raw. maxItems <= 0 means no cap.
// Well-formed input wins at the direct stage, so the cascade adds nothing to it.
func Extract[T any](raw string, schema Schema[T], maxItems int) Result[T] {
	var res Result[T]

	try := func(stage Stage, text string) bool {
		elems, ok := parseShape(text, schema.ArrayField)
		items, rejected := validateAll(schema, elems)

		won := ok && (len(items) > 0 || len(elems) == 0)
		res.Attempts = append(res.Attempts, Attempt{Stage: stage, Text: text, Succeeded: won})
		if ok {
			res.Rejected = rejected
		}
		if won {
			res.Stage = stage
			res.Items = capItems(items, maxItems)
		}
		return won
	}

	direct := strings.TrimSpace(raw)
	if try(StageDirect, direct) {
		return res
	}

	fenced := ExtractFence(raw)
	if try(StageFenceExtract, fenced) {
		return res
	}

	envelope := ExtractEnvelope(fenced)
	if try(StageBraceBalance, envelope) {
		return res
	}

	stripped := StripTrailingCommas(envelope)
	if try(StageTrailingCommaStrip, stripped) {
		return res
	}

	if try(StageTruncationRepair, RepairTruncation(stripped)) {
		return res
	}

	if slice := SliceArrayField(fenced, schema.ArrayField); slice != "" {
		// The slice is re-wrapped as a bare array.
		if try(StageArraySliceExtract, RepairTruncation(StripTrailingCommas(slice))) {
			return res
		}
	}

	items, rejected, text := extractFragments(schema, fenced)
	won := len(items) > 0
	res.Attempts = append(res.Attempts, Attempt{Stage: StageItemByItemExtract, Text: text, Succeeded: won})
	if won {
		res.Stage = StageItemByItemExtract
		res.Items = capItems(items, maxItems)
		res.Rejected = rejected
	}
	return res
}

// parseShape decodes text into the element list: the named array field of an
// object, or a bare array.
func parseShape(text, arrayField string) ([]json.RawMessage, bool) {
	trimmed := bytes.TrimSpace([]byte(text))
	if len(trimmed) == 0 {
		return nil, false
	}

	if trimmed[0] == '[' {
		var elems []json.RawMessage
		if err := json.Unmarshal(trimmed, &elems); err != nil {
			return nil, false
		}
		return elems, true
	}

	if arrayField == "" || trimmed[0] != '{' {
		return nil, false
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, false
	}
	field, ok := obj[arrayField]
	if !ok {
		return nil, false
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(field, &elems); err != nil {
		return nil, false
	}
	return elems, true
}

func validateAll[T any](schema Schema[T], elems []json.RawMessage) ([]T, []Rejection) {
	var (
		items    []T
		rejected []Rejection
	)
	for i, raw := range elems {
		v := schema.Validate(raw)
		if !v.Valid() {
			rejected = append(rejected, Rejection{Index: i, Reason: v.Reason})
			continue
		}
		items = append(items, v.Item)
	}
	return items, rejected
}

// extractFragments validates every object fragment that names all required
// fields. Fragments nested inside an accepted one are skipped.
func extractFragments[T any](schema Schema[T], text string) ([]T, []Rejection, string) {
	required := schema.RequiredFields()

	var (
		items    []T
		rejected []Rejection
		kept     []string
		keptEnd  int
	)
	for i, sp := range objectSpans(text) {
		if sp[0] < keptEnd {
			continue
		}
		frag := text[sp[0]:sp[1]]
		if !mentionsAll(frag, required) {
			continue
		}

		v := schema.Validate(json.RawMessage(StripTrailingCommas(frag)))
		if !v.Valid() {
			rejected = append(rejected, Rejection{Index: i, Reason: v.Reason})
			continue
		}
		items = append(items, v.Item)
		kept = append(kept, frag)
		keptEnd = sp[1]
	}
	return items, rejected, strings.Join(kept, "\n")
}

func mentionsAll(frag string, fields []string) bool {
	for _, f := range fields {
		if !strings.Contains(frag, `"`+f+`"`) {
			return false
		}
	}
	return true
}

func capItems[T any](items []T, maxItems int) []T {
	if maxItems > 0 && len(items) > maxItems {
		return items[:maxItems]
	}
	return items
}
