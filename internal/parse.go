package internal

import (
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"redveil/pkg/types"
)

// Parser converts raw upstream payloads into normalized entities. It is
// stateless; every call tree owns the entities it receives.
type Parser struct{}

// NewParser creates a new parser instance.
func NewParser() *Parser {
	return &Parser{}
}

// TreeContext carries caller-supplied predicates for comment tree building.
type TreeContext struct {
	// HighlightID, when set, marks the matching comment and un-collapses
	// its ancestors.
	HighlightID string
	// BlockedAuthors marks matching comments as filtered. Nodes are never
	// dropped; dropping would break reply counts and id lookups downstream.
	BlockedAuthors map[string]bool
}

func decodeThing(raw json.RawMessage) (*thing, error) {
	var t thing
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("failed to parse envelope: %w", err)
	}
	return &t, nil
}

func (p *Parser) parseListing(t *thing) (*listingData, error) {
	if t == nil {
		return nil, fmt.Errorf("thing is nil")
	}
	if t.Kind != kindListing {
		return nil, fmt.Errorf("expected Listing, got %s", t.Kind)
	}
	var listing listingData
	if err := json.Unmarshal(t.Data, &listing); err != nil {
		return nil, fmt.Errorf("failed to parse Listing data: %w", err)
	}
	return &listing, nil
}

// ParsePost extracts a normalized post from a t3 envelope.
func (p *Parser) ParsePost(t *thing) (*types.Post, error) {
	if t == nil {
		return nil, fmt.Errorf("thing is nil")
	}
	if t.Kind != kindLink {
		return nil, fmt.Errorf("expected t3 (Link), got %s", t.Kind)
	}
	var rp rawPost
	if err := json.Unmarshal(t.Data, &rp); err != nil {
		return nil, fmt.Errorf("failed to parse Link data: %w", err)
	}
	return buildPost(&rp), nil
}

func buildPost(rp *rawPost) *types.Post {
	flair := ""
	if rp.LinkFlairText != nil {
		flair = *rp.LinkFlairText
	}
	return &types.Post{
		ID:        rp.ID,
		Title:     rp.Title,
		Author:    rp.Author,
		Community: rp.Subreddit,
		Body:      rp.SelfText,
		Score:     FormatScore(rp.Score, rp.HideScore),
		Comments:  FormatScore(rp.NumComments, false),
		Created:   FormatTime(rp.CreatedUTC),
		Flair:     flair,
		Media:     selectMedia(rp),
		Domain:    rp.Domain,
		NSFW:      rp.Over18,
		Stickied:  rp.Stickied,
		Permalink: rp.Permalink,
	}
}

// selectMedia picks the post's media variant by fixed field priority:
// gallery > video > poll > image > link > text. Upstream sets several
// source fields at once for cross-posted and gallery content, so the
// ordering decides the outcome.
func selectMedia(rp *rawPost) types.Media {
	thumb := cleanThumbnail(rp.Thumbnail)

	if rp.IsGallery && rp.GalleryData != nil {
		items := make([]types.GalleryItem, 0, len(rp.GalleryData.Items))
		for _, gi := range rp.GalleryData.Items {
			meta, ok := rp.MediaMetadata[gi.MediaID]
			if !ok {
				continue
			}
			src := meta.Source.URL
			if src == "" {
				src = meta.Source.GIF
			}
			items = append(items, types.GalleryItem{
				URL:     RewriteMediaURL(unescapeAmp(src)),
				Width:   meta.Source.Width,
				Height:  meta.Source.Height,
				Caption: gi.Caption,
			})
		}
		return types.Media{Kind: types.MediaGallery, Thumbnail: thumb, Gallery: items}
	}

	if rp.SecureMedia != nil && rp.SecureMedia.RedditVideo != nil {
		v := rp.SecureMedia.RedditVideo
		return types.Media{
			Kind:      types.MediaVideo,
			URL:       RewriteMediaURL(unescapeAmp(v.FallbackURL)),
			Thumbnail: thumb,
			Width:     v.Width,
			Height:    v.Height,
		}
	}

	if rp.PollData != nil {
		opts := make([]types.PollOption, 0, len(rp.PollData.Options))
		for _, o := range rp.PollData.Options {
			opts = append(opts, types.PollOption{Text: o.Text, VoteCount: o.VoteCount})
		}
		return types.Media{Kind: types.MediaPoll, Thumbnail: thumb, Poll: opts}
	}

	if rp.PostHint == "image" || hasImageExt(rp.URL) {
		m := types.Media{Kind: types.MediaImage, URL: RewriteMediaURL(unescapeAmp(rp.URL)), Thumbnail: thumb}
		if rp.Preview != nil && len(rp.Preview.Images) > 0 {
			m.Width = rp.Preview.Images[0].Source.Width
			m.Height = rp.Preview.Images[0].Source.Height
		}
		return m
	}

	if !rp.IsSelf && rp.URL != "" {
		return types.Media{Kind: types.MediaLink, URL: rp.URL, Thumbnail: thumb}
	}

	return types.Media{Kind: types.MediaText, Thumbnail: thumb}
}

// Sentinel thumbnail values upstream uses instead of a URL.
var thumbnailSentinels = map[string]bool{
	"": true, "self": true, "default": true, "nsfw": true, "spoiler": true, "image": true,
}

func cleanThumbnail(t string) string {
	if thumbnailSentinels[t] {
		return ""
	}
	return RewriteMediaURL(unescapeAmp(t))
}

func hasImageExt(u string) bool {
	switch strings.ToLower(path.Ext(strings.SplitN(u, "?", 2)[0])) {
	case ".png", ".jpg", ".jpeg", ".gif", ".webp":
		return true
	}
	return false
}

func unescapeAmp(s string) string {
	return strings.ReplaceAll(s, "&amp;", "&")
}

// ExtractPosts extracts all posts from a listing payload together with the
// continuation cursor ("" when the listing is the last page).
func (p *Parser) ExtractPosts(raw json.RawMessage) ([]*types.Post, string, error) {
	t, err := decodeThing(raw)
	if err != nil {
		return nil, "", err
	}
	listing, err := p.parseListing(t)
	if err != nil {
		return nil, "", err
	}
	posts := make([]*types.Post, 0, len(listing.Children))
	for _, child := range listing.Children {
		if child.Kind != kindLink {
			continue
		}
		post, err := p.ParsePost(child)
		if err != nil {
			continue
		}
		posts = append(posts, post)
	}
	return posts, listing.After, nil
}

// ExtractCursor returns the listing's continuation cursor without touching
// its children. The cursor is opaque: passed back verbatim, never parsed.
func (p *Parser) ExtractCursor(raw json.RawMessage) string {
	t, err := decodeThing(raw)
	if err != nil {
		return ""
	}
	listing, err := p.parseListing(t)
	if err != nil {
		return ""
	}
	return listing.After
}

// ParseSubreddit extracts normalized community metadata from a t5 envelope
// payload.
func (p *Parser) ParseSubreddit(raw json.RawMessage) (types.Subreddit, error) {
	t, err := decodeThing(raw)
	if err != nil {
		return types.Subreddit{}, err
	}
	if t.Kind != kindSubreddit {
		return types.Subreddit{}, fmt.Errorf("expected t5 (Subreddit), got %s", t.Kind)
	}
	var rs rawSubreddit
	if err := json.Unmarshal(t.Data, &rs); err != nil {
		return types.Subreddit{}, fmt.Errorf("failed to parse Subreddit data: %w", err)
	}

	icon := rs.CommunityIcon
	if icon == "" {
		icon = rs.IconImg
	}
	active := rs.ActiveUserCount
	if active == 0 {
		active = rs.AccountsActive
	}
	return types.Subreddit{
		Name:        rs.DisplayName,
		Title:       rs.Title,
		Description: rs.PublicDescription,
		Icon:        RewriteMediaURL(unescapeAmp(icon)),
		Members:     FormatScore(rs.Subscribers, false),
		Active:      FormatScore(active, false),
		WikiEnabled: rs.WikiEnabled,
		NSFW:        rs.Over18,
	}, nil
}

// ParseUser extracts a normalized profile from a t2 envelope payload.
func (p *Parser) ParseUser(raw json.RawMessage) (types.User, error) {
	t, err := decodeThing(raw)
	if err != nil {
		return types.User{}, err
	}
	if t.Kind != kindAccount {
		return types.User{}, fmt.Errorf("expected t2 (Account), got %s", t.Kind)
	}
	var ra rawAccount
	if err := json.Unmarshal(t.Data, &ra); err != nil {
		return types.User{}, fmt.Errorf("failed to parse Account data: %w", err)
	}

	karma := ra.TotalKarma
	if karma == 0 {
		karma = ra.LinkKarma + ra.CommentKarma
	}
	u := types.User{
		Name:    ra.Name,
		Icon:    RewriteMediaURL(unescapeAmp(ra.IconImg)),
		Karma:   FormatScore(karma, false),
		Created: FormatTime(ra.CreatedUTC),
	}
	if ra.Subreddit != nil {
		u.Title = ra.Subreddit.Title
		u.NSFW = ra.Subreddit.Over18
	}
	return u, nil
}

// BuildCommentTree builds the strict owned forest from a comments listing.
// The walk is depth-first and preserves upstream ordering; the transformer
// never re-sorts, so equal-rank siblings keep stable input order. "load
// more" sentinels increment the parent's MoreCount instead of materializing
// a node; sentinels at the top level are returned as the second value.
func (p *Parser) BuildCommentTree(raw json.RawMessage, tctx *TreeContext) ([]*types.Comment, int, error) {
	t, err := decodeThing(raw)
	if err != nil {
		return nil, 0, err
	}
	listing, err := p.parseListing(t)
	if err != nil {
		return nil, 0, err
	}
	if tctx == nil {
		tctx = &TreeContext{}
	}

	comments, more := p.buildChildren(listing.Children, tctx)
	if tctx.HighlightID != "" {
		RevealPath(comments, tctx.HighlightID)
	}
	return comments, more, nil
}

func (p *Parser) buildChildren(children []*thing, tctx *TreeContext) ([]*types.Comment, int) {
	comments := make([]*types.Comment, 0, len(children))
	more := 0
	for _, child := range children {
		switch child.Kind {
		case kindComment:
			node, err := p.buildComment(child, tctx)
			if err != nil {
				continue
			}
			comments = append(comments, node)
		case kindMore:
			var rm rawMore
			if err := json.Unmarshal(child.Data, &rm); err != nil {
				continue
			}
			more += moreCount(rm)
		}
	}
	return comments, more
}

func (p *Parser) buildComment(t *thing, tctx *TreeContext) (*types.Comment, error) {
	var rc rawComment
	if err := json.Unmarshal(t.Data, &rc); err != nil {
		return nil, fmt.Errorf("failed to parse Comment data: %w", err)
	}

	node := &types.Comment{
		ID:        rc.ID,
		ParentID:  rc.ParentID,
		Author:    rc.Author,
		Body:      rc.Body,
		Score:     FormatScore(rc.Score, rc.ScoreHidden),
		Created:   FormatTime(rc.CreatedUTC),
		Edited:    rc.Edited.IsEdited,
		Collapsed: rc.Collapsed,
	}
	if rc.Edited.IsEdited && rc.Edited.Timestamp > 0 {
		ts := FormatTime(rc.Edited.Timestamp)
		node.EditedAt = &ts
	}
	if tctx.BlockedAuthors[rc.Author] {
		node.IsFiltered = true
	}

	// Replies is a nested Listing envelope, or "" when there are none.
	if len(rc.Replies) > 0 && string(rc.Replies) != `""` {
		var repliesThing thing
		if err := json.Unmarshal(rc.Replies, &repliesThing); err == nil && repliesThing.Kind == kindListing {
			var nested listingData
			if err := json.Unmarshal(repliesThing.Data, &nested); err == nil {
				replies, more := p.buildChildren(nested.Children, tctx)
				node.Replies = replies
				node.MoreCount = more
			}
		}
	}
	return node, nil
}

func moreCount(rm rawMore) int {
	if rm.Count > 0 {
		return rm.Count
	}
	return len(rm.Children)
}

// ExtractPostAndComments parses the dual-listing response of a post fetch:
// usually [post_listing, comments_listing], occasionally a bare comments
// listing.
func (p *Parser) ExtractPostAndComments(raw json.RawMessage, tctx *TreeContext) (*types.Post, []*types.Comment, int, error) {
	trimmed := strings.TrimSpace(string(raw))
	if len(trimmed) == 0 {
		return nil, nil, 0, fmt.Errorf("empty response")
	}

	if trimmed[0] != '[' {
		comments, more, err := p.BuildCommentTree(raw, tctx)
		return nil, comments, more, err
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, nil, 0, fmt.Errorf("failed to parse dual listing: %w", err)
	}
	if len(parts) == 0 {
		return nil, nil, 0, fmt.Errorf("empty response")
	}

	var post *types.Post
	posts, _, err := p.ExtractPosts(parts[0])
	if err == nil && len(posts) > 0 {
		post = posts[0]
	}

	if len(parts) < 2 {
		if post == nil {
			return nil, nil, 0, fmt.Errorf("failed to extract post from single listing")
		}
		return post, nil, 0, nil
	}

	comments, more, err := p.BuildCommentTree(parts[1], tctx)
	if err != nil {
		if post != nil {
			return post, nil, 0, fmt.Errorf("failed to extract comments: %w", err)
		}
		return nil, nil, 0, fmt.Errorf("failed to extract both post and comments")
	}
	return post, comments, more, nil
}

// ExtractDuplicates parses the dual-listing response of a duplicates
// fetch: [source_post_listing, duplicates_listing].
func (p *Parser) ExtractDuplicates(raw json.RawMessage) (*types.Post, []*types.Post, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return nil, nil, fmt.Errorf("failed to parse duplicates listing: %w", err)
	}
	if len(parts) < 2 {
		return nil, nil, fmt.Errorf("duplicates response has %d listings, want 2", len(parts))
	}
	posts, _, err := p.ExtractPosts(parts[0])
	if err != nil || len(posts) == 0 {
		return nil, nil, fmt.Errorf("failed to extract source post: %w", err)
	}
	dups, _, err := p.ExtractPosts(parts[1])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to extract duplicates: %w", err)
	}
	return posts[0], dups, nil
}

// ExtractUserItems parses a user's overview listing, preserving the
// upstream interleaving of posts and comments.
func (p *Parser) ExtractUserItems(raw json.RawMessage) ([]types.UserItem, string, error) {
	t, err := decodeThing(raw)
	if err != nil {
		return nil, "", err
	}
	listing, err := p.parseListing(t)
	if err != nil {
		return nil, "", err
	}

	items := make([]types.UserItem, 0, len(listing.Children))
	for _, child := range listing.Children {
		switch child.Kind {
		case kindLink:
			post, err := p.ParsePost(child)
			if err != nil {
				continue
			}
			items = append(items, types.UserItem{Post: post})
		case kindComment:
			comment, err := p.buildComment(child, &TreeContext{})
			if err != nil {
				continue
			}
			items = append(items, types.UserItem{Comment: comment})
		}
	}
	return items, listing.After, nil
}

// ParseWiki extracts the rendered markdown of a wiki page payload.
func (p *Parser) ParseWiki(raw json.RawMessage) (string, error) {
	t, err := decodeThing(raw)
	if err != nil {
		return "", err
	}
	var rw rawWiki
	if err := json.Unmarshal(t.Data, &rw); err != nil {
		return "", fmt.Errorf("failed to parse wiki data: %w", err)
	}
	if rw.ContentMD == "" && rw.ContentHTML == "" {
		return "", fmt.Errorf("wiki page has no content")
	}
	if rw.ContentMD != "" {
		return rw.ContentMD, nil
	}
	return rw.ContentHTML, nil
}
