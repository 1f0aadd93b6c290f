package internal

import "redveil/pkg/types"

// Walk applies fn to every comment in the forest, depth-first in listing
// order.
func Walk(comments []*types.Comment, fn func(*types.Comment)) {
	for _, c := range comments {
		if c == nil {
			continue
		}
		fn(c)
		Walk(c.Replies, fn)
	}
}

// Find returns the first comment matching the condition, or nil.
func Find(comments []*types.Comment, match func(*types.Comment) bool) *types.Comment {
	for _, c := range comments {
		if c == nil {
			continue
		}
		if match(c) {
			return c
		}
		if found := Find(c.Replies, match); found != nil {
			return found
		}
	}
	return nil
}

// FindByID returns the comment with the given id, or nil.
func FindByID(comments []*types.Comment, id string) *types.Comment {
	return Find(comments, func(c *types.Comment) bool { return c.ID == id })
}

// CountComments returns the number of nodes in the forest.
func CountComments(comments []*types.Comment) int {
	n := 0
	Walk(comments, func(*types.Comment) { n++ })
	return n
}

// RevealPath marks the comment with the given id as highlighted and forces
// Collapsed off on every ancestor along the path, so the target is visible
// without touching siblings outside the path. Reports whether the id was
// found in the forest.
func RevealPath(comments []*types.Comment, id string) bool {
	for _, c := range comments {
		if c == nil {
			continue
		}
		if c.ID == id {
			c.Highlighted = true
			return true
		}
		if RevealPath(c.Replies, id) {
			c.Collapsed = false
			return true
		}
	}
	return false
}
