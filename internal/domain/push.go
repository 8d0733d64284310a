package domain

import (
	"encoding/json"
	"maps"
)

// PushItem is a single remote push notification. Titles "Accept", "Reject"
// and "Skip" mark a push as a moderator response; any other title is an
// ordinary bot push carrying encoded action blocks in Body.
type PushItem struct {
	Iden     string  `json:"iden"`
	Type     string  `json:"type,omitempty"`
	Title    string  `json:"title"`
	Body     string  `json:"body"`
	Active   bool    `json:"active,omitempty"`
	Created  float64 `json:"created,omitempty"`
	Modified float64 `json:"modified,omitempty"`
}

// Feed is the aggregated push response. It accumulates pages in fetch order:
// Pushes is append-only while Cursor and every other top-level field of the
// latest page overwrite earlier values.
type Feed struct {
	Pushes []PushItem
	Cursor string
	// Extra holds remote top-level fields other than "pushes" and "cursor".
	Extra map[string]json.RawMessage
}

// Merge folds page into f.
func (f *Feed) Merge(page Feed) {
	f.Pushes = append(f.Pushes, page.Pushes...)
	f.Cursor = page.Cursor
	if len(page.Extra) > 0 {
		if f.Extra == nil {
			f.Extra = make(map[string]json.RawMessage, len(page.Extra))
		}
		maps.Copy(f.Extra, page.Extra)
	}
}

// Clone returns a deep copy safe to hand to readers.
func (f Feed) Clone() Feed {
	out := Feed{Cursor: f.Cursor}
	if f.Pushes != nil {
		out.Pushes = make([]PushItem, len(f.Pushes))
		copy(out.Pushes, f.Pushes)
	}
	if f.Extra != nil {
		out.Extra = maps.Clone(f.Extra)
	}
	return out
}

// UnmarshalJSON keeps unknown top-level fields in Extra.
func (f *Feed) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*f = Feed{}
	if v, ok := raw["pushes"]; ok {
		if err := json.Unmarshal(v, &f.Pushes); err != nil {
			return err
		}
		delete(raw, "pushes")
	}
	if v, ok := raw["cursor"]; ok {
		// cursor may be null on the last page
		var c *string
		if err := json.Unmarshal(v, &c); err != nil {
			return err
		}
		if c != nil {
			f.Cursor = *c
		}
		delete(raw, "cursor")
	}
	if len(raw) > 0 {
		f.Extra = raw
	}
	return nil
}

// MarshalJSON writes Extra back at the top level.
func (f Feed) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(f.Extra)+2)
	for k, v := range f.Extra {
		out[k] = v
	}
	pushes := f.Pushes
	if pushes == nil {
		pushes = []PushItem{}
	}
	out["pushes"] = pushes
	if f.Cursor != "" {
		out["cursor"] = f.Cursor
	}
	return json.Marshal(out)
}
