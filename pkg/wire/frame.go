package wire

import "encoding/json"

// filterJSON is the on-wire NIP-01 filter object. Field presence (not zero
// value) controls whether a constraint applies, so empty slices/maps are
// omitted rather than sent as `[]`/`{}`.
type filterJSON struct {
	IDs     []string            `json:"ids,omitempty"`
	Authors []string            `json:"authors,omitempty"`
	Kinds   []int               `json:"kinds,omitempty"`
	Since   *int64              `json:"since,omitempty"`
	Until   *int64              `json:"until,omitempty"`
	Limit   int                 `json:"limit,omitempty"`
	Search  string              `json:"search,omitempty"`
	Tags    map[string][]string `json:"-"`
}

// MarshalJSON flattens Tags into "#<key>" members alongside the named
// fields, per NIP-01's tag-filter convention.
func (f filterJSON) MarshalJSON() ([]byte, error) {
	out := make(map[string]any)
	if len(f.IDs) > 0 {
		out["ids"] = f.IDs
	}
	if len(f.Authors) > 0 {
		out["authors"] = f.Authors
	}
	if len(f.Kinds) > 0 {
		out["kinds"] = f.Kinds
	}
	if f.Since != nil {
		out["since"] = *f.Since
	}
	if f.Until != nil {
		out["until"] = *f.Until
	}
	if f.Limit > 0 {
		out["limit"] = f.Limit
	}
	if f.Search != "" {
		out["search"] = f.Search
	}
	for k, v := range f.Tags {
		out["#"+k] = v
	}
	return json.Marshal(out)
}

func toFilterJSON(r Request) filterJSON {
	fj := filterJSON{
		IDs:     r.IDs,
		Authors: r.Authors,
		Kinds:   r.Kinds,
		Limit:   r.Limit,
		Search:  r.Search,
		Tags:    r.Tags,
	}
	if r.Since != 0 {
		fj.Since = &r.Since
	}
	if r.Until != 0 {
		fj.Until = &r.Until
	}
	return fj
}

// BuildReq encodes a `["REQ", subID, filter...]` frame from one or more
// requests (spec.md §6 "request shape"). Non-goal carve-out: this only
// builds the envelope array and generic filter object; it does not parse or
// validate individual event kinds.
func BuildReq(subID string, requests ...Request) ([]byte, error) {
	arr := make([]any, 0, 2+len(requests))
	arr = append(arr, "REQ", subID)
	for _, r := range requests {
		arr = append(arr, toFilterJSON(r))
	}
	return json.Marshal(arr)
}

// BuildClose encodes a `["CLOSE", subID]` frame.
func BuildClose(subID string) ([]byte, error) {
	return json.Marshal([]any{"CLOSE", subID})
}

// BuildEvent encodes a `["EVENT", event]` frame, where event is an
// already-serialized, signed event (opaque to this package: constructing
// and signing the event body is pkg/signer's job).
func BuildEvent(rawEvent json.RawMessage) ([]byte, error) {
	return json.Marshal([]any{"EVENT", rawEvent})
}
