package model

// AuthorRecord is the subset of the author's profile that is inlined into a PostRecord.
type AuthorRecord struct {
	UserID          string
	Username        string
	DisplayName     string
	UserCreatedAt   string
	Description     string
	FollowersCount  *int64
	FriendsCount    *int64
	StatusesCount   *int64
	ProfileImageURL string
	Verified        *bool
}

// PostRecord is one normalized post. Nil pointers and nil slices mean the
// value was absent in the source payload.
type PostRecord struct {
	ID             string
	CreatedAt      string
	AttachedURLs   []string
	AttachedURLs2  []string
	AttachedMedia  []string
	TaggedUsers    []string
	TaggedHashtags []string
	FavoriteCount  *int64
	BookmarkCount  *int64
	QuoteCount     *int64
	ReplyCount     *int64
	RetweetCount   *int64
	Text           string
	IsQuote        *bool
	IsRetweet      *bool
	Language       string
	UserID         string
	Source         string
	Views          *int64
	Poll           PollRecord
	Author         AuthorRecord
}

// MergeAuthor flattens the author into the post. The author's id wins over
// the post's user_id_str since both name the same account.
func (r *PostRecord) MergeAuthor(a AuthorRecord) {
	if a.UserID != "" {
		r.UserID = a.UserID
	}
	a.UserID = r.UserID
	r.Author = a
}
