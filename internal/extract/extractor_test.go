package extract

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/ripples/internal/crawler"
)

const samplePage = `<!doctype html>
<html>
<head>
  <link rel="stylesheet" href="/static/site.css">
  <link rel="icon" href="">
</head>
<body>
  <a href="https://other.org/page#section">absolute</a>
  <a href="child">relative</a>
  <a href="/root">rooted</a>
  <a href="#top">fragment only</a>
  <a href="mailto:someone@example.com">mail</a>
  <a href="javascript:void(0)">js</a>
  <a href="tel:+15555555555">phone</a>
  <a href="   ">blank</a>
  <a>no href</a>
  <a href="//cdn.example.net/lib.js">protocol relative</a>
  <a href="child">duplicate</a>
</body>
</html>`

func TestExtractLinks(t *testing.T) {
	t.Parallel()

	page := crawler.Page{
		URL:      "http://example.com/start",
		FinalURL: "https://example.com/dir/index.html",
		Body:     []byte(samplePage),
	}

	t.Run("anchors only", func(t *testing.T) {
		t.Parallel()
		links, err := New(Options{}).ExtractLinks(page)
		require.NoError(t, err)
		require.Equal(t, []string{
			"https://other.org/page",
			"https://example.com/dir/child",
			"https://example.com/root",
			"https://cdn.example.net/lib.js",
			"https://example.com/dir/child",
		}, links)
	})

	t.Run("with link tags", func(t *testing.T) {
		t.Parallel()
		links, err := New(Options{IncludeLinkTags: true}).ExtractLinks(page)
		require.NoError(t, err)
		require.Equal(t, "https://example.com/static/site.css", links[0])
		require.Len(t, links, 6)
	})
}

func TestExtractLinksBaseElement(t *testing.T) {
	t.Parallel()

	page := crawler.Page{
		URL:  "https://example.com/a/b",
		Body: []byte(`<html><head><base href="https://mirror.example.com/docs/"></head><body><a href="guide">g</a></body></html>`),
	}
	links, err := New(Options{}).ExtractLinks(page)
	require.NoError(t, err)
	require.Equal(t, []string{"https://mirror.example.com/docs/guide"}, links)
}

func TestExtractLinksEmptyBody(t *testing.T) {
	t.Parallel()

	links, err := New(Options{}).ExtractLinks(crawler.Page{URL: "https://example.com"})
	require.NoError(t, err)
	require.Empty(t, links)
}

func TestExtractLinksBadPageURL(t *testing.T) {
	t.Parallel()

	_, err := New(Options{}).ExtractLinks(crawler.Page{URL: "http://[::1", Body: []byte("<a href='x'>x</a>")})
	require.Error(t, err)
}

func TestResolve(t *testing.T) {
	t.Parallel()

	base, err := url.Parse("https://example.com/a/b")
	require.NoError(t, err)

	tests := []struct {
		name string
		href string
		want string
		ok   bool
	}{
		{name: "relative", href: "c", want: "https://example.com/a/c", ok: true},
		{name: "parent", href: "../d", want: "https://example.com/d", ok: true},
		{name: "query kept", href: "/s?q=1#frag", want: "https://example.com/s?q=1", ok: true},
		{name: "ftp rejected", href: "ftp://example.com/f"},
		{name: "empty", href: ""},
		{name: "fragment", href: "#x"},
		{name: "bad escape", href: "%zz"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := Resolve(base, tc.href)
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.want, got)
		})
	}

	got, ok := Resolve(nil, "https://example.com/x#y")
	require.True(t, ok)
	require.Equal(t, "https://example.com/x", got)
	_, ok = Resolve(nil, "relative/path")
	require.False(t, ok)
}
