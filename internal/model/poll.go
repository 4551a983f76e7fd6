package model

import "encoding/json"

// PollRecord holds the card bindings of a poll. The zero value is an empty poll.
type PollRecord struct {
	// Choices maps the raw binding key (e.g. "choice1_label") to its value.
	Choices  map[string]string
	End      *string
	Updated  *string
	Ended    *bool
	Duration *string
}

func (p PollRecord) IsEmpty() bool {
	return len(p.Choices) == 0 && p.End == nil && p.Updated == nil && p.Ended == nil && p.Duration == nil
}

// SetChoice records a choice binding, allocating the map on first use.
func (p *PollRecord) SetChoice(key, value string) {
	if p.Choices == nil {
		p.Choices = make(map[string]string)
	}
	p.Choices[key] = value
}

// Document returns the poll as a flat document: choice keys plus end, updated,
// ended and duration when present.
func (p PollRecord) Document() map[string]any {
	doc := make(map[string]any, len(p.Choices)+4)
	for k, v := range p.Choices {
		doc[k] = v
	}
	if p.End != nil {
		doc["end"] = *p.End
	}
	if p.Updated != nil {
		doc["updated"] = *p.Updated
	}
	if p.Ended != nil {
		doc["ended"] = *p.Ended
	}
	if p.Duration != nil {
		doc["duration"] = *p.Duration
	}
	return doc
}

// MarshalJSON encodes the poll document; map keys come out sorted.
func (p PollRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Document())
}
