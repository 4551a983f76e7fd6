package model

import (
	"encoding/json"
	"strconv"
)

// Header is the fixed column set of every output table, in order.
var Header = []string{
	"id", "created_at", "attached_urls", "attached_urls2", "attached_media",
	"tagged_users", "tagged_hashtags", "favorite_count", "bookmark_count",
	"quote_count", "reply_count", "retweet_count", "text", "is_quote",
	"is_retweet", "language", "user_id", "source", "views", "poll",
	"username", "display_name", "user_created_at", "description",
	"followers_count", "friends_count", "statuses_count", "profile_image_url",
	"verified",
}

// values lists the record's values in Header order. Absent values are nil.
func (r PostRecord) values() []any {
	a := r.Author
	return []any{
		r.ID, r.CreatedAt, r.AttachedURLs, r.AttachedURLs2, r.AttachedMedia,
		r.TaggedUsers, r.TaggedHashtags, r.FavoriteCount, r.BookmarkCount,
		r.QuoteCount, r.ReplyCount, r.RetweetCount, r.Text, r.IsQuote,
		r.IsRetweet, r.Language, r.UserID, r.Source, r.Views, r.Poll,
		a.Username, a.DisplayName, a.UserCreatedAt, a.Description,
		a.FollowersCount, a.FriendsCount, a.StatusesCount, a.ProfileImageURL,
		a.Verified,
	}
}

// Row encodes the record as one CSV row aligned with Header. Lists and the
// poll are embedded as JSON documents; absent values are empty cells.
func (r PostRecord) Row() []string {
	vals := r.values()
	row := make([]string, len(vals))
	for i, v := range vals {
		row[i] = cell(v)
	}
	return row
}

// Document returns the record keyed by column name, used for JSON storage.
func (r PostRecord) Document() map[string]any {
	vals := r.values()
	doc := make(map[string]any, len(vals))
	for i, v := range vals {
		switch t := v.(type) {
		case PollRecord:
			doc[Header[i]] = t.Document()
		case []string:
			if t != nil {
				doc[Header[i]] = t
			} else {
				doc[Header[i]] = nil
			}
		case *int64:
			if t != nil {
				doc[Header[i]] = *t
			} else {
				doc[Header[i]] = nil
			}
		case *bool:
			if t != nil {
				doc[Header[i]] = *t
			} else {
				doc[Header[i]] = nil
			}
		default:
			doc[Header[i]] = v
		}
	}
	return doc
}

func cell(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []string:
		if t == nil {
			return ""
		}
		b, _ := json.Marshal(t)
		return string(b)
	case *int64:
		if t == nil {
			return ""
		}
		return strconv.FormatInt(*t, 10)
	case *bool:
		if t == nil {
			return ""
		}
		return strconv.FormatBool(*t)
	case PollRecord:
		b, _ := t.MarshalJSON()
		return string(b)
	}
	return ""
}
