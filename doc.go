// Package redveil is a privacy-preserving access layer for Reddit's
// private API. It authenticates as a trusted native client, fetches
// communities, posts, comment trees, user profiles, and search results,
// and re-exposes them as normalized entities so end users never contact
// the upstream platform directly. Embedded media URLs are rewritten onto
// same-origin proxy paths served by the companion byte proxy.
//
// Basic usage:
//
//	client, err := redveil.NewClient(&redveil.Config{})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	page, err := client.FetchCommunity(ctx, "golang", "hot", "", false)
//	if err != nil {
//		log.Fatal(err)
//	}
//	for _, post := range page.Posts {
//		fmt.Println(post.Title, post.Score.Label)
//	}
//
// Credential acquisition is lazy: the first fetch performs the device
// handshake, and the stored credential is refreshed automatically with a
// single-flight guard. Errors surface as the closed set of kinds in
// redveil/pkg/errors, never as raw upstream status codes.
package redveil
