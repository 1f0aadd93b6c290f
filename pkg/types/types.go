// Package types defines the normalized entities produced by the upstream
// access layer: posts, comment forests, users, communities, and the
// aggregate pages returned by the client. Entities are fully owned by the
// caller once returned; the client keeps no references to them.
package types

// Score pairs a raw vote count with its human-abbreviated label
// (e.g. 12345 / "12.3k"). Hidden or negative scores carry a placeholder
// label rather than "0".
type Score struct {
	Value  int    `json:"value"`
	Label  string `json:"label"`
	Hidden bool   `json:"hidden,omitempty"`
}

// Timestamp pairs a unix instant with its pre-formatted UTC string.
type Timestamp struct {
	Unix      int64  `json:"unix"`
	Formatted string `json:"formatted"`
}

// MediaKind tags a post's media descriptor variant.
type MediaKind string

const (
	MediaGallery MediaKind = "gallery"
	MediaVideo   MediaKind = "video"
	MediaPoll    MediaKind = "poll"
	MediaImage   MediaKind = "image"
	MediaLink    MediaKind = "link"
	MediaText    MediaKind = "text"
)

// GalleryItem is a single image inside a gallery post.
type GalleryItem struct {
	URL     string `json:"url"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
	Caption string `json:"caption,omitempty"`
}

// PollOption is a single choice inside a poll post.
type PollOption struct {
	Text      string `json:"text"`
	VoteCount int    `json:"vote_count"`
}

// Media describes a post's primary content. Kind decides which of the
// remaining fields are meaningful; upstream frequently sets several source
// fields at once, so the variant is chosen by a fixed priority order
// (gallery > video > poll > image > link > text).
type Media struct {
	Kind      MediaKind     `json:"kind"`
	URL       string        `json:"url,omitempty"`
	Thumbnail string        `json:"thumbnail,omitempty"`
	Width     int           `json:"width,omitempty"`
	Height    int           `json:"height,omitempty"`
	Gallery   []GalleryItem `json:"gallery,omitempty"`
	Poll      []PollOption  `json:"poll,omitempty"`
}

// Post is a normalized submission. Immutable after construction.
type Post struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Community string    `json:"community"`
	Body      string    `json:"body,omitempty"`
	Score     Score     `json:"score"`
	Comments  Score     `json:"comments"`
	Created   Timestamp `json:"created"`
	Flair     string    `json:"flair,omitempty"`
	Media     Media     `json:"media"`
	Domain    string    `json:"domain,omitempty"`
	NSFW      bool      `json:"nsfw"`
	Stickied  bool      `json:"stickied,omitempty"`
	Permalink string    `json:"permalink"`
}

// Comment is a node in a strict owned forest: every node exclusively owns
// its Replies and upstream ids are unique, so the structure is cycle-free
// by construction. MoreCount records replies the upstream listing omitted
// ("load more" sentinels) without materializing placeholder nodes.
type Comment struct {
	ID          string     `json:"id"`
	ParentID    string     `json:"parent_id"`
	Author      string     `json:"author"`
	Body        string     `json:"body"`
	Score       Score      `json:"score"`
	Created     Timestamp  `json:"created"`
	Edited      bool       `json:"edited"`
	EditedAt    *Timestamp `json:"edited_at,omitempty"`
	Replies     []*Comment `json:"replies,omitempty"`
	MoreCount   int        `json:"more_count,omitempty"`
	Collapsed   bool       `json:"collapsed,omitempty"`
	Highlighted bool       `json:"highlighted,omitempty"`
	IsFiltered  bool       `json:"is_filtered,omitempty"`
}

// User is a normalized account profile.
type User struct {
	Name    string    `json:"name"`
	Title   string    `json:"title,omitempty"`
	Icon    string    `json:"icon,omitempty"`
	Karma   Score     `json:"karma"`
	Created Timestamp `json:"created"`
	NSFW    bool      `json:"nsfw"`
}

// Subreddit is normalized community metadata.
type Subreddit struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Members     Score  `json:"members"`
	Active      Score  `json:"active"`
	WikiEnabled bool   `json:"wiki_enabled"`
	NSFW        bool   `json:"nsfw"`
}

// CommunityPage aggregates a community fetch: metadata, one page of posts,
// and the opaque continuation cursor ("" when no further page exists).
type CommunityPage struct {
	Subreddit Subreddit `json:"subreddit"`
	Posts     []*Post   `json:"posts"`
	After     string    `json:"after,omitempty"`
}

// PostPage aggregates a post with its comment forest. MoreCount reports
// top-level comments the upstream listing omitted.
type PostPage struct {
	Post      *Post      `json:"post"`
	Comments  []*Comment `json:"comments"`
	MoreCount int        `json:"more_count,omitempty"`
}

// UserItem is one entry of a user's overview listing. Exactly one of Post
// or Comment is set; upstream interleaves both kinds in listing order.
type UserItem struct {
	Post    *Post    `json:"post,omitempty"`
	Comment *Comment `json:"comment,omitempty"`
}

// UserPage aggregates a user fetch.
type UserPage struct {
	User  User       `json:"user"`
	Items []UserItem `json:"items"`
	After string     `json:"after,omitempty"`
}

// SearchPage aggregates a search fetch.
type SearchPage struct {
	Posts []*Post `json:"posts"`
	After string  `json:"after,omitempty"`
}

// WikiPage is a rendered community wiki page.
type WikiPage struct {
	Subreddit string `json:"subreddit"`
	Page      string `json:"page"`
	Content   string `json:"content"`
}

// DuplicatesPage aggregates a post with its cross-posted duplicates.
type DuplicatesPage struct {
	Post       *Post   `json:"post"`
	Duplicates []*Post `json:"duplicates"`
}
