package extract

import (
	"strconv"

	"github.com/tidwall/gjson"

	"xharvest/internal/model"
)

// field maps one output column to the payload paths that can carry it.
// The first path holding a non-null, non-empty value wins; a field with no
// such path is left absent.
type field[T any] struct {
	name  string
	paths []string
	set   func(r *T, v gjson.Result)
}

func apply[T any](r *T, doc gjson.Result, fields []field[T]) {
	for _, f := range fields {
		for _, p := range f.paths {
			if v := doc.Get(p); v.Exists() && v.Type != gjson.Null && !(v.Type == gjson.String && v.Str == "") {
				f.set(r, v)
				break
			}
		}
	}
}

var postFields = []field[model.PostRecord]{
	{"id", []string{"legacy.id_str", "rest_id"}, func(r *model.PostRecord, v gjson.Result) { r.ID = v.String() }},
	{"created_at", []string{"legacy.created_at"}, func(r *model.PostRecord, v gjson.Result) { r.CreatedAt = v.String() }},
	{"attached_urls", []string{"legacy.entities.urls.#.expanded_url"}, func(r *model.PostRecord, v gjson.Result) { r.AttachedURLs = strs(v) }},
	{"attached_urls2", []string{"legacy.entities.url.urls.#.expanded_url"}, func(r *model.PostRecord, v gjson.Result) { r.AttachedURLs2 = strs(v) }},
	{"attached_media", []string{"legacy.entities.media.#.media_url_https"}, func(r *model.PostRecord, v gjson.Result) { r.AttachedMedia = strs(v) }},
	{"tagged_users", []string{"legacy.entities.user_mentions.#.screen_name"}, func(r *model.PostRecord, v gjson.Result) { r.TaggedUsers = strs(v) }},
	{"tagged_hashtags", []string{"legacy.entities.hashtags.#.text"}, func(r *model.PostRecord, v gjson.Result) { r.TaggedHashtags = strs(v) }},
	{"favorite_count", []string{"legacy.favorite_count"}, func(r *model.PostRecord, v gjson.Result) { r.FavoriteCount = count(v) }},
	{"bookmark_count", []string{"legacy.bookmark_count"}, func(r *model.PostRecord, v gjson.Result) { r.BookmarkCount = count(v) }},
	{"quote_count", []string{"legacy.quote_count"}, func(r *model.PostRecord, v gjson.Result) { r.QuoteCount = count(v) }},
	{"reply_count", []string{"legacy.reply_count"}, func(r *model.PostRecord, v gjson.Result) { r.ReplyCount = count(v) }},
	{"retweet_count", []string{"legacy.retweet_count"}, func(r *model.PostRecord, v gjson.Result) { r.RetweetCount = count(v) }},
	{"text", []string{"note_tweet.note_tweet_results.result.text", "legacy.full_text"}, func(r *model.PostRecord, v gjson.Result) { r.Text = v.String() }},
	{"is_quote", []string{"legacy.is_quote_status"}, func(r *model.PostRecord, v gjson.Result) { r.IsQuote = flag(v) }},
	{"is_retweet", []string{"legacy.retweeted"}, func(r *model.PostRecord, v gjson.Result) { r.IsRetweet = flag(v) }},
	{"language", []string{"legacy.lang"}, func(r *model.PostRecord, v gjson.Result) { r.Language = v.String() }},
	{"user_id", []string{"legacy.user_id_str"}, func(r *model.PostRecord, v gjson.Result) { r.UserID = v.String() }},
	{"source", []string{"source"}, func(r *model.PostRecord, v gjson.Result) { r.Source = v.String() }},
	{"views", []string{"views.count"}, func(r *model.PostRecord, v gjson.Result) { r.Views = count(v) }},
}

var authorFields = []field[model.AuthorRecord]{
	{"user_id", []string{"rest_id"}, func(a *model.AuthorRecord, v gjson.Result) { a.UserID = v.String() }},
	{"username", []string{"legacy.screen_name", "core.screen_name"}, func(a *model.AuthorRecord, v gjson.Result) { a.Username = v.String() }},
	{"display_name", []string{"legacy.name", "core.name"}, func(a *model.AuthorRecord, v gjson.Result) { a.DisplayName = v.String() }},
	{"user_created_at", []string{"legacy.created_at", "core.created_at"}, func(a *model.AuthorRecord, v gjson.Result) { a.UserCreatedAt = v.String() }},
	{"description", []string{"legacy.description", "profile_bio.description"}, func(a *model.AuthorRecord, v gjson.Result) { a.Description = v.String() }},
	{"followers_count", []string{"legacy.followers_count"}, func(a *model.AuthorRecord, v gjson.Result) { a.FollowersCount = count(v) }},
	{"friends_count", []string{"legacy.friends_count"}, func(a *model.AuthorRecord, v gjson.Result) { a.FriendsCount = count(v) }},
	{"statuses_count", []string{"legacy.statuses_count"}, func(a *model.AuthorRecord, v gjson.Result) { a.StatusesCount = count(v) }},
	{"profile_image_url", []string{"legacy.profile_image_url_https", "avatar.image_url"}, func(a *model.AuthorRecord, v gjson.Result) { a.ProfileImageURL = v.String() }},
	{"verified", []string{"legacy.verified", "verification.verified"}, func(a *model.AuthorRecord, v gjson.Result) { a.Verified = flag(v) }},
}

func strs(v gjson.Result) []string {
	out := []string{}
	for _, e := range v.Array() {
		if e.Type == gjson.Null {
			continue
		}
		out = append(out, e.String())
	}
	return out
}

// count accepts numbers and numeric strings (view counts arrive as strings).
func count(v gjson.Result) *int64 {
	var n int64
	switch v.Type {
	case gjson.Number:
		n = v.Int()
	case gjson.String:
		i, err := strconv.ParseInt(v.Str, 10, 64)
		if err != nil {
			return nil
		}
		n = i
	default:
		return nil
	}
	return &n
}

func flag(v gjson.Result) *bool {
	if v.Type != gjson.True && v.Type != gjson.False {
		return nil
	}
	b := v.Bool()
	return &b
}
