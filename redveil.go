package redveil

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"redveil/internal"
	pkgerrs "redveil/pkg/errors"
	"redveil/pkg/types"
)

const (
	// DefaultBaseURL is the authenticated API host.
	DefaultBaseURL = "https://oauth.reddit.com/"
	// DefaultAuthURL is the host of the device-auth handshake.
	DefaultAuthURL = "https://www.reddit.com/"
	// DefaultClientID is the public id of the impersonated native client.
	DefaultClientID = "ohXpoqrZYub1kg"
	// DefaultUserAgent matches the impersonated client build. It must stay
	// consistent with the client id or upstream flags the token.
	DefaultUserAgent = "Reddit/Version 2024.22.1/Build 1568148/Android 14"
	// DefaultTimeout is the per-upstream-call timeout, independent of any
	// timeout the caller applies through ctx.
	DefaultTimeout = 30 * time.Second
)

// Config holds the configuration for the upstream client. The zero value
// of every field falls back to a working default; the struct mostly exists
// so tests and the server binary can redirect the client at mock or
// alternate hosts.
type Config struct {
	// ClientID of the impersonated native client build.
	ClientID string

	// UserAgent presented on every request. Must match the client build.
	UserAgent string

	// BaseURL for authenticated API calls. Defaults to DefaultBaseURL.
	BaseURL string

	// AuthURL for the device-auth handshake. Defaults to DefaultAuthURL.
	AuthURL string

	// HTTPClient to use for requests. Defaults to a pooled client with the
	// browser-profile TLS transport and DefaultTimeout.
	HTTPClient *http.Client

	// Logger for structured diagnostics. Optional.
	Logger *zap.Logger

	// RequestsPerMinute and Burst throttle outbound calls.
	RequestsPerMinute float64
	Burst             int

	// MaxRetries and RetryBaseDelay bound the transient-failure retry loop.
	MaxRetries     int
	RetryBaseDelay time.Duration

	// BlockedAuthors are marked as filtered in every comment tree built by
	// this client. Nodes are flagged, never dropped.
	BlockedAuthors []string
}

// Client is the upstream access layer. It is safe for unbounded concurrent
// use; the token store is its only shared mutable state.
type Client struct {
	dispatch *internal.Client
	tokens   *internal.TokenStore
	parser   *internal.Parser
	logger   *zap.Logger
	blocked  map[string]bool
}

var validSorts = map[string]bool{
	"": true, "hot": true, "new": true, "top": true, "rising": true, "controversial": true,
}

var validUserListings = map[string]bool{
	"": true, "overview": true, "submitted": true, "comments": true,
}

// NewClient creates a client with the provided configuration. Credential
// acquisition happens lazily on the first fetch.
func NewClient(config *Config) (*Client, error) {
	if config == nil {
		config = &Config{}
	}
	if config.ClientID == "" {
		config.ClientID = DefaultClientID
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.AuthURL == "" {
		config.AuthURL = DefaultAuthURL
	}
	if err := internal.ValidateUserAgent(config.UserAgent); err != nil {
		return nil, &pkgerrs.ConfigError{Field: "UserAgent", Message: err.Error()}
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Transport: internal.NewBrowserTransport(), Timeout: DefaultTimeout}
	}

	auth, err := internal.NewAuthenticator(httpClient, config.ClientID, config.UserAgent, config.AuthURL, "", logger)
	if err != nil {
		return nil, err
	}
	tokens := internal.NewTokenStore(auth)

	dispatch, err := internal.NewClient(
		httpClient,
		tokens,
		config.BaseURL,
		config.UserAgent,
		&internal.RateLimitConfig{RequestsPerMinute: config.RequestsPerMinute, Burst: config.Burst},
		&internal.RetryConfig{MaxRetries: config.MaxRetries, InitialInterval: config.RetryBaseDelay},
		logger,
	)
	if err != nil {
		return nil, err
	}

	blocked := make(map[string]bool, len(config.BlockedAuthors))
	for _, a := range config.BlockedAuthors {
		blocked[a] = true
	}

	return &Client{
		dispatch: dispatch,
		tokens:   tokens,
		parser:   internal.NewParser(),
		logger:   logger,
		blocked:  blocked,
	}, nil
}

// FetchCommunity retrieves community metadata plus one page of its posts.
// name may be a single community or a multi ("golang+rust"); sort is one of
// hot, new, top, rising, controversial (empty means hot). after is the
// opaque cursor from a previous page; quarantineOK opts in to quarantined
// communities.
func (c *Client) FetchCommunity(ctx context.Context, name, sort, after string, quarantineOK bool) (*types.CommunityPage, error) {
	if err := internal.ValidateCommunityName(name); err != nil {
		return nil, err
	}
	if !validSorts[sort] {
		return nil, &pkgerrs.ConfigError{Field: "sort", Message: "unknown sort " + sort}
	}

	page := &types.CommunityPage{}
	// Multis aggregate several communities and have no metadata endpoint.
	if !strings.Contains(name, "+") {
		raw, err := c.dispatch.FetchJSON(ctx, "r/"+name+"/about.json?raw_json=1", quarantineOK)
		if err != nil {
			return nil, err
		}
		sub, err := c.parser.ParseSubreddit(raw)
		if err != nil {
			return nil, decodeErr(err)
		}
		page.Subreddit = sub
	} else {
		page.Subreddit = types.Subreddit{Name: name}
	}

	posts, cursor, err := c.fetchPosts(ctx, name, sort, after, quarantineOK)
	if err != nil {
		return nil, err
	}
	page.Posts = posts
	page.After = cursor
	return page, nil
}

// fetchPosts retrieves one page of a community listing without the
// metadata fetch. Shared by FetchCommunity and PostIterator.
func (c *Client) fetchPosts(ctx context.Context, name, sort, after string, quarantineOK bool) ([]*types.Post, string, error) {
	if err := internal.ValidateCursor(after); err != nil {
		return nil, "", err
	}
	if sort == "" {
		sort = "hot"
	}

	q := url.Values{}
	q.Set("raw_json", "1")
	if after != "" {
		q.Set("after", after)
	}
	raw, err := c.dispatch.FetchJSON(ctx, "r/"+name+"/"+sort+".json?"+q.Encode(), quarantineOK)
	if err != nil {
		return nil, "", err
	}
	posts, cursor, err := c.parser.ExtractPosts(raw)
	if err != nil {
		return nil, "", decodeErr(err)
	}
	return posts, cursor, nil
}

// FetchPostWithComments retrieves a post and its comment forest. community
// may be empty. highlightID, when set, marks the matching comment and
// un-collapses its ancestors so it is visible.
func (c *Client) FetchPostWithComments(ctx context.Context, community, id, sort, highlightID string) (*types.PostPage, error) {
	if id == "" {
		return nil, &pkgerrs.ConfigError{Field: "id", Message: "post id cannot be empty"}
	}
	if !validSorts[sort] && sort != "confidence" && sort != "old" && sort != "qa" {
		return nil, &pkgerrs.ConfigError{Field: "sort", Message: "unknown sort " + sort}
	}

	q := url.Values{}
	q.Set("raw_json", "1")
	if sort != "" {
		q.Set("sort", sort)
	}
	path := "comments/" + id + ".json?" + q.Encode()
	if community != "" {
		if err := internal.ValidateCommunityName(community); err != nil {
			return nil, err
		}
		path = "r/" + community + "/" + path
	}

	raw, err := c.dispatch.FetchJSON(ctx, path, false)
	if err != nil {
		return nil, err
	}
	tctx := &internal.TreeContext{HighlightID: highlightID, BlockedAuthors: c.blocked}
	post, comments, more, err := c.parser.ExtractPostAndComments(raw, tctx)
	if err != nil {
		return nil, decodeErr(err)
	}
	return &types.PostPage{Post: post, Comments: comments, MoreCount: more}, nil
}

// FetchUser retrieves a profile plus one page of its listing ("overview",
// "submitted", or "comments"; empty means overview). The items preserve
// the upstream interleaving of posts and comments.
func (c *Client) FetchUser(ctx context.Context, name, listing, after string) (*types.UserPage, error) {
	if err := internal.ValidateUsername(name); err != nil {
		return nil, err
	}
	if !validUserListings[listing] {
		return nil, &pkgerrs.ConfigError{Field: "listing", Message: "unknown listing " + listing}
	}
	if err := internal.ValidateCursor(after); err != nil {
		return nil, err
	}
	if listing == "" {
		listing = "overview"
	}

	raw, err := c.dispatch.FetchJSON(ctx, "user/"+name+"/about.json?raw_json=1", false)
	if err != nil {
		return nil, err
	}
	user, err := c.parser.ParseUser(raw)
	if err != nil {
		return nil, decodeErr(err)
	}

	q := url.Values{}
	q.Set("raw_json", "1")
	if after != "" {
		q.Set("after", after)
	}
	raw, err = c.dispatch.FetchJSON(ctx, "user/"+name+"/"+listing+".json?"+q.Encode(), false)
	if err != nil {
		return nil, err
	}
	items, cursor, err := c.parser.ExtractUserItems(raw)
	if err != nil {
		return nil, decodeErr(err)
	}
	return &types.UserPage{User: user, Items: items, After: cursor}, nil
}

// FetchSearch retrieves one page of search results, optionally restricted
// to a single community.
func (c *Client) FetchSearch(ctx context.Context, query, community, after string) (*types.SearchPage, error) {
	if err := internal.ValidateQuery(query); err != nil {
		return nil, err
	}
	if err := internal.ValidateCursor(after); err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("raw_json", "1")
	q.Set("q", query)
	if after != "" {
		q.Set("after", after)
	}
	path := "search.json?" + q.Encode()
	if community != "" {
		if err := internal.ValidateCommunityName(community); err != nil {
			return nil, err
		}
		q.Set("restrict_sr", "on")
		path = "r/" + community + "/search.json?" + q.Encode()
	}

	raw, err := c.dispatch.FetchJSON(ctx, path, false)
	if err != nil {
		return nil, err
	}
	posts, cursor, err := c.parser.ExtractPosts(raw)
	if err != nil {
		return nil, decodeErr(err)
	}
	return &types.SearchPage{Posts: posts, After: cursor}, nil
}

// FetchMedia resolves a rewritten media path back to its upstream URL and
// returns the unread response for streaming. rangeHeader is forwarded
// verbatim so partial-content semantics survive for large video. The
// caller owns resp.Body.
func (c *Client) FetchMedia(ctx context.Context, rewrittenPath, rangeHeader string) (*http.Response, error) {
	upstream, err := internal.ResolveMediaPath(rewrittenPath)
	if err != nil {
		return nil, &pkgerrs.FetchError{Kind: pkgerrs.KindNotFound, Err: err}
	}
	return c.dispatch.Stream(ctx, upstream, rangeHeader)
}

// FetchWiki retrieves a community wiki page ("index" when page is empty).
func (c *Client) FetchWiki(ctx context.Context, community, page string) (*types.WikiPage, error) {
	if err := internal.ValidateCommunityName(community); err != nil {
		return nil, err
	}
	if page == "" {
		page = "index"
	}

	raw, err := c.dispatch.FetchJSON(ctx, "r/"+community+"/wiki/"+page+".json?raw_json=1", false)
	if err != nil {
		return nil, err
	}
	content, err := c.parser.ParseWiki(raw)
	if err != nil {
		return nil, decodeErr(err)
	}
	return &types.WikiPage{Subreddit: community, Page: page, Content: content}, nil
}

// FetchDuplicates retrieves a post together with its cross-posted
// duplicates.
func (c *Client) FetchDuplicates(ctx context.Context, id string) (*types.DuplicatesPage, error) {
	if id == "" {
		return nil, &pkgerrs.ConfigError{Field: "id", Message: "post id cannot be empty"}
	}

	raw, err := c.dispatch.FetchJSON(ctx, "duplicates/"+id+".json?raw_json=1", false)
	if err != nil {
		return nil, err
	}
	post, dups, err := c.parser.ExtractDuplicates(raw)
	if err != nil {
		return nil, decodeErr(err)
	}
	return &types.DuplicatesPage{Post: post, Duplicates: dups}, nil
}

func decodeErr(err error) error {
	return &pkgerrs.FetchError{Kind: pkgerrs.KindDecode, Err: err}
}
