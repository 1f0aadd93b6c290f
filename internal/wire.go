package internal

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Upstream wraps every payload in a kind-tagged envelope ("Thing"). The
// data member is decoded lazily because its shape depends on the kind.
type thing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

// Envelope kinds used by the transformer.
const (
	kindListing   = "Listing"
	kindComment   = "t1"
	kindAccount   = "t2"
	kindLink      = "t3"
	kindSubreddit = "t5"
	kindMore      = "more"
)

type listingData struct {
	After    string   `json:"after"`
	Before   string   `json:"before"`
	Children []*thing `json:"children"`
}

// editedField handles the upstream "edited" member, which is false for
// unedited items, true for edits predating timestamps, or a float instant.
type editedField struct {
	IsEdited  bool
	Timestamp float64
}

func (e *editedField) UnmarshalJSON(data []byte) error {
	switch strings.ToLower(string(data)) {
	case "false", "null":
		*e = editedField{}
		return nil
	case "true":
		*e = editedField{IsEdited: true}
		return nil
	}
	var ts float64
	if err := json.Unmarshal(data, &ts); err != nil {
		return fmt.Errorf("unrecognized type for 'edited' field: %s", data)
	}
	*e = editedField{IsEdited: true, Timestamp: ts}
	return nil
}

type rawPost struct {
	ID             string      `json:"id"`
	Title          string      `json:"title"`
	Author         string      `json:"author"`
	Subreddit      string      `json:"subreddit"`
	SelfText       string      `json:"selftext"`
	Score          int         `json:"score"`
	HideScore      bool        `json:"hide_score"`
	NumComments    int         `json:"num_comments"`
	CreatedUTC     float64     `json:"created_utc"`
	LinkFlairText  *string     `json:"link_flair_text"`
	Over18         bool        `json:"over_18"`
	Stickied       bool        `json:"stickied"`
	Permalink      string      `json:"permalink"`
	URL            string      `json:"url"`
	Domain         string      `json:"domain"`
	Thumbnail      string      `json:"thumbnail"`
	IsSelf         bool        `json:"is_self"`
	IsVideo        bool        `json:"is_video"`
	IsGallery      bool        `json:"is_gallery"`
	PostHint       string      `json:"post_hint"`
	Edited         editedField `json:"edited"`
	GalleryData    *struct {
		Items []struct {
			MediaID string `json:"media_id"`
			Caption string `json:"caption"`
		} `json:"items"`
	} `json:"gallery_data"`
	MediaMetadata map[string]struct {
		Source struct {
			URL    string `json:"u"`
			GIF    string `json:"gif"`
			Width  int    `json:"x"`
			Height int    `json:"y"`
		} `json:"s"`
	} `json:"media_metadata"`
	SecureMedia *struct {
		RedditVideo *struct {
			FallbackURL string `json:"fallback_url"`
			Width       int    `json:"width"`
			Height      int    `json:"height"`
		} `json:"reddit_video"`
	} `json:"secure_media"`
	PollData *struct {
		Options []struct {
			Text      string `json:"text"`
			VoteCount int    `json:"vote_count"`
		} `json:"options"`
	} `json:"poll_data"`
	Preview *struct {
		Images []struct {
			Source struct {
				URL    string `json:"url"`
				Width  int    `json:"width"`
				Height int    `json:"height"`
			} `json:"source"`
		} `json:"images"`
	} `json:"preview"`
}

type rawComment struct {
	ID          string          `json:"id"`
	ParentID    string          `json:"parent_id"`
	Author      string          `json:"author"`
	Body        string          `json:"body"`
	Score       int             `json:"score"`
	ScoreHidden bool            `json:"score_hidden"`
	CreatedUTC  float64         `json:"created_utc"`
	Edited      editedField     `json:"edited"`
	Collapsed   bool            `json:"collapsed"`
	Replies     json.RawMessage `json:"replies"`
}

type rawMore struct {
	Count    int      `json:"count"`
	Children []string `json:"children"`
}

type rawSubreddit struct {
	DisplayName       string  `json:"display_name"`
	Title             string  `json:"title"`
	PublicDescription string  `json:"public_description"`
	CommunityIcon     string  `json:"community_icon"`
	IconImg           string  `json:"icon_img"`
	Subscribers       int     `json:"subscribers"`
	AccountsActive    int     `json:"accounts_active"`
	ActiveUserCount   int     `json:"active_user_count"`
	WikiEnabled       bool    `json:"wiki_enabled"`
	Over18            bool    `json:"over18"`
	CreatedUTC        float64 `json:"created_utc"`
}

type rawAccount struct {
	Name       string  `json:"name"`
	CreatedUTC float64 `json:"created_utc"`
	Subreddit  *struct {
		Title  string `json:"title"`
		Over18 bool   `json:"over_18"`
	} `json:"subreddit"`
	IconImg      string `json:"icon_img"`
	LinkKarma    int    `json:"link_karma"`
	CommentKarma int    `json:"comment_karma"`
	TotalKarma   int    `json:"total_karma"`
}

type rawWiki struct {
	ContentMD   string `json:"content_md"`
	ContentHTML string `json:"content_html"`
}
