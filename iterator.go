package redveil

import (
	"context"
	"errors"

	"redveil/pkg/types"
)

// ErrIteratorDone is returned by Next when the listing is exhausted.
var ErrIteratorDone = errors.New("no more posts available")

// PostIterator paginates through a community listing one post at a time.
type PostIterator struct {
	client       *Client
	community    string
	sort         string
	quarantineOK bool
	buffer       []*types.Post
	bufferIdx    int
	after        string
	hasMore      bool
	err          error
	ctx          context.Context
}

// NewPostIterator creates an iterator over a community listing. The sort
// must be one of the listing sorts accepted by FetchCommunity.
func (c *Client) NewPostIterator(ctx context.Context, community, sort string, quarantineOK bool) *PostIterator {
	return &PostIterator{
		client:       c,
		community:    community,
		sort:         sort,
		quarantineOK: quarantineOK,
		hasMore:      true,
		ctx:          ctx,
	}
}

// HasNext reports whether another post may be available.
func (it *PostIterator) HasNext() bool {
	if it.err != nil {
		return false
	}
	return it.bufferIdx < len(it.buffer) || it.hasMore
}

// Next returns the next post in the listing, fetching further pages as
// needed. It returns ErrIteratorDone once the listing is exhausted.
func (it *PostIterator) Next() (*types.Post, error) {
	if it.err != nil {
		return nil, it.err
	}

	if it.bufferIdx >= len(it.buffer) {
		if !it.hasMore {
			return nil, ErrIteratorDone
		}

		posts, cursor, err := it.client.fetchPosts(it.ctx, it.community, it.sort, it.after, it.quarantineOK)
		if err != nil {
			it.err = err
			return nil, err
		}

		it.buffer = posts
		it.bufferIdx = 0
		it.after = cursor

		if len(it.buffer) == 0 || cursor == "" {
			it.hasMore = false
			if len(it.buffer) == 0 {
				return nil, ErrIteratorDone
			}
		}
	}

	post := it.buffer[it.bufferIdx]
	it.bufferIdx++

	if post == nil {
		return it.Next()
	}

	return post, nil
}

// Error returns the first error encountered during iteration.
func (it *PostIterator) Error() error {
	return it.err
}

// Reset restarts the iterator from the first page.
func (it *PostIterator) Reset() {
	it.buffer = nil
	it.bufferIdx = 0
	it.after = ""
	it.hasMore = true
	it.err = nil
}

// Collect fetches up to maxPosts remaining posts. A maxPosts of zero or
// less collects everything.
func (it *PostIterator) Collect(maxPosts int) ([]*types.Post, error) {
	var posts []*types.Post
	for it.HasNext() && (maxPosts <= 0 || len(posts) < maxPosts) {
		post, err := it.Next()
		if err != nil {
			if errors.Is(err, ErrIteratorDone) {
				break
			}
			return posts, err
		}
		posts = append(posts, post)
	}
	return posts, nil
}
