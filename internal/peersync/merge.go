package peersync

import (
	"bytes"
	"encoding/json"
	"slices"
	"strings"

	"github.com/roach88/tether/internal/model"
)

// MergeBest is a Resolver that keeps the most progress from both sides.
// Objects merge key by key, numbers keep the larger value and arrays become
// the union of their elements. Null yields to the other side. Any other
// differing pair keeps the value whose canonical JSON sorts last.
//
// The result does not depend on argument order, so two peers that resolve
// the same conflict at once agree on the outcome. Returns nil if either side
// is not valid JSON.
func MergeBest(local, remote json.RawMessage) json.RawMessage {
	l, err := decodeValue(local)
	if err != nil {
		return nil
	}
	r, err := decodeValue(remote)
	if err != nil {
		return nil
	}
	out, err := json.Marshal(mergeValues(l, r))
	if err != nil {
		return nil
	}
	return out
}

func decodeValue(data json.RawMessage) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func mergeValues(a, b any) any {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	}

	switch av := a.(type) {
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok {
			break
		}
		out := make(map[string]any, len(av)+len(bv))
		for k, v := range av {
			out[k] = v
		}
		for k, v := range bv {
			if cur, ok := out[k]; ok {
				out[k] = mergeValues(cur, v)
			} else {
				out[k] = v
			}
		}
		return out
	case json.Number:
		bv, ok := b.(json.Number)
		if !ok {
			break
		}
		af, errA := av.Float64()
		bf, errB := bv.Float64()
		if errA == nil && errB == nil && af != bf {
			if af > bf {
				return av
			}
			return bv
		}
	case []any:
		if bv, ok := b.([]any); ok {
			return union(av, bv)
		}
	}
	return later(a, b)
}

// union returns the distinct elements of a and b ordered by canonical form.
func union(a, b []any) []any {
	byKey := make(map[string]any, len(a)+len(b))
	for _, v := range slices.Concat(a, b) {
		byKey[canonical(v)] = v
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := make([]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, byKey[k])
	}
	return out
}

func later(a, b any) any {
	if strings.Compare(canonical(b), canonical(a)) > 0 {
		return b
	}
	return a
}

func canonical(v any) string {
	out, err := model.MarshalCanonical(v)
	if err != nil {
		raw, _ := json.Marshal(v)
		return string(raw)
	}
	return string(out)
}
