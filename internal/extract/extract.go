// Package extract turns an intercepted post result into a normalized record.
package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"xharvest/internal/model"
)

// ErrMalformedPayload reports a payload without a usable post-result object.
var ErrMalformedPayload = errors.New("malformed payload")

const (
	bindingsPath = "card.legacy.binding_values"
	authorPath   = "core.user_results.result"
)

// Extract builds a PostRecord from the raw JSON of a post result. Missing
// optional paths leave fields absent; only a payload that is not an object,
// or carries no post id, is rejected.
func Extract(payload []byte) (model.PostRecord, error) {
	var rec model.PostRecord
	if !gjson.ValidBytes(payload) {
		return rec, fmt.Errorf("%w: invalid json", ErrMalformedPayload)
	}
	doc := gjson.ParseBytes(payload)
	if !doc.IsObject() {
		return rec, fmt.Errorf("%w: result is %s, want object", ErrMalformedPayload, doc.Type)
	}
	doc = unwrap(doc)

	apply(&rec, doc, postFields)
	if rec.ID == "" {
		return rec, fmt.Errorf("%w: no post id (typename %q)", ErrMalformedPayload, doc.Get("__typename").String())
	}
	rec.Poll = Poll(doc.Get(bindingsPath))
	if user := doc.Get(authorPath); user.IsObject() {
		var a model.AuthorRecord
		apply(&a, user, authorFields)
		rec.MergeAuthor(a)
	}
	return rec, nil
}

// unwrap descends into visibility-limited results, which nest the post under "tweet".
func unwrap(doc gjson.Result) gjson.Result {
	if doc.Get("__typename").String() == "TweetWithVisibilityResults" {
		if inner := doc.Get("tweet"); inner.IsObject() {
			return inner
		}
	}
	return doc
}

// Poll classifies card bindings by key substring. Anything other than an
// array of bindings yields an empty poll.
func Poll(bindings gjson.Result) model.PollRecord {
	var p model.PollRecord
	if !bindings.IsArray() {
		return p
	}
	for _, b := range bindings.Array() {
		key := b.Get("key").String()
		val := b.Get("value")
		str := val.Get("string_value").String()
		switch {
		case strings.Contains(key, "choice"):
			p.SetChoice(key, str)
		case strings.Contains(key, "end_datetime"):
			p.End = &str
		case strings.Contains(key, "last_updated_datetime"):
			p.Updated = &str
		case strings.Contains(key, "counts_are_final"):
			ended := val.Get("boolean_value").Bool()
			p.Ended = &ended
		case strings.Contains(key, "duration_minutes"):
			p.Duration = &str
		}
	}
	return p
}
