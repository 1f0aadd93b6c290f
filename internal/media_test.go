package internal

import (
	"testing"
)

func TestRewriteMediaURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "image host",
			in:   "https://i.redd.it/abc123.jpg",
			want: "/img/i.redd.it/abc123.jpg",
		},
		{
			name: "preview host with escaped query",
			in:   "https://preview.redd.it/abc.png?width=640&amp;s=deadbeef",
			want: "/img/preview.redd.it/abc.png?width=640&s=deadbeef",
		},
		{
			name: "video host",
			in:   "https://v.redd.it/xyz/DASH_720.mp4",
			want: "/vid/v.redd.it/xyz/DASH_720.mp4",
		},
		{
			name: "thumbnail host",
			in:   "https://b.thumbs.redditmedia.com/foo.jpg",
			want: "/thumb/b.thumbs.redditmedia.com/foo.jpg",
		},
		{
			name: "unknown host unchanged",
			in:   "https://example.com/cat.png",
			want: "https://example.com/cat.png",
		},
		{
			name: "relative url unchanged",
			in:   "gallery/abc",
			want: "gallery/abc",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RewriteMediaURL(tt.in)
			if got != tt.want {
				t.Errorf("RewriteMediaURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
			// Rewriting must be idempotent.
			if again := RewriteMediaURL(got); again != got {
				t.Errorf("RewriteMediaURL not idempotent: %q -> %q", got, again)
			}
		})
	}
}

func TestResolveMediaPath(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{
			name: "image path",
			in:   "/img/i.redd.it/abc123.jpg",
			want: "https://i.redd.it/abc123.jpg",
		},
		{
			name: "video path",
			in:   "/vid/v.redd.it/xyz/DASH_720.mp4",
			want: "https://v.redd.it/xyz/DASH_720.mp4",
		},
		{
			name:    "unprefixed path",
			in:      "/static/logo.png",
			wantErr: true,
		},
		{
			name:    "missing host",
			in:      "/img/",
			wantErr: true,
		},
		{
			name:    "unknown host rejected",
			in:      "/img/evil.example.com/payload",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveMediaPath(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ResolveMediaPath(%q) = %q, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveMediaPath(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ResolveMediaPath(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRewriteResolveRoundTrip(t *testing.T) {
	urls := []string{
		"https://i.redd.it/abc123.jpg",
		"https://v.redd.it/xyz/DASH_720.mp4",
		"https://a.thumbs.redditmedia.com/small.jpg",
	}
	for _, u := range urls {
		rewritten := RewriteMediaURL(u)
		resolved, err := ResolveMediaPath(rewritten)
		if err != nil {
			t.Fatalf("ResolveMediaPath(%q) error: %v", rewritten, err)
		}
		if resolved != u {
			t.Errorf("round trip of %q = %q", u, resolved)
		}
	}
}
