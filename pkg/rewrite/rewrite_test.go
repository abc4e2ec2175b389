package rewrite

import (
	"strings"
	"testing"

	"github.com/sepich/mhtml-cache/pkg/cache"
	"github.com/sepich/mhtml-cache/pkg/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entries(kv ...string) MapResolver {
	m := MapResolver{}
	for i := 0; i+2 < len(kv); i += 3 {
		m[kv[i]] = cache.NewEntry(kv[i+1], []byte(kv[i+2]))
	}
	return m
}

func TestRewrite(t *testing.T) {
	testCases := []struct {
		name       string
		base       string
		document   string
		resolver   MapResolver
		contains   []string
		excludes   []string
		referenced []string
	}{
		{
			name:       "image redirected and srcset dropped",
			document:   `<html><body><img src="cid:img1" srcset="x.png 2x" loading="lazy" alt="a"></body></html>`,
			resolver:   entries("cid:img1", "image/png", "\x89PNG"),
			contains:   []string{`<img src="/r/cid:img1" alt="a"/>`},
			excludes:   []string{"srcset", "loading"},
			referenced: []string{"cid:img1"},
		},
		{
			name:     "missing entry left untouched",
			document: `<img src="https://example.com/missing.png">`,
			resolver: entries("cid:other", "image/png", "x"),
			contains: []string{`<img src="https://example.com/missing.png"/>`},
		},
		{
			name:       "fragment stripped",
			document:   `<img src="foo.png#section1">`,
			resolver:   entries("foo.png", "image/png", "x"),
			contains:   []string{`<img src="/r/foo.png"/>`},
			referenced: []string{"foo.png"},
		},
		{
			name:       "full url escaped into one path segment",
			document:   `<script src="https://example.com/app.js?v=1"></script>`,
			resolver:   entries("https://example.com/app.js?v=1", "text/javascript", "1"),
			contains:   []string{`<script src="/r/https:%2F%2Fexample.com%2Fapp.js%3Fv=1"></script>`},
			referenced: []string{"https://example.com/app.js?v=1"},
		},
		{
			name:       "relative reference resolved against base",
			base:       "https://example.com/dir/page.html",
			document:   `<img src="img/x.png">`,
			resolver:   entries("https://example.com/dir/img/x.png", "image/png", "x"),
			contains:   []string{`<img src="/r/https:%2F%2Fexample.com%2Fdir%2Fimg%2Fx.png"/>`},
			referenced: []string{"https://example.com/dir/img/x.png"},
		},
		{
			name:     "style sheet inlined",
			document: `<html><head><link rel="stylesheet" href="https://example.com/css/site.css"></head><body></body></html>`,
			resolver: entries(
				"https://example.com/css/site.css", "text/css", "body{background:url(../bg.png)}",
				"https://example.com/bg.png", "image/png", "x",
			),
			contains:   []string{`<style>body{background:url("/r/https:%2F%2Fexample.com%2Fbg.png")}</style>`},
			excludes:   []string{"<link"},
			referenced: []string{"https://example.com/css/site.css", "https://example.com/bg.png"},
		},
		{
			name:     "style sheet with unexpected content type left alone",
			document: `<html><head><link rel="stylesheet" href="a.css"></head><body></body></html>`,
			resolver: entries("a.css", "text/plain", "body{}"),
			contains: []string{`<link rel="stylesheet" href="a.css"/>`},
			excludes: []string{"<style"},
		},
		{
			name:     "style sheet without entry left alone",
			document: `<html><head><link rel="stylesheet" href="a.css"></head><body></body></html>`,
			resolver: entries(),
			contains: []string{`<link rel="stylesheet" href="a.css"/>`},
		},
		{
			name:       "style element and attribute urls",
			document:   `<html><head><style>p{background:url('cid:bg')}</style></head><body><div style="background: url(cid:bg)"></div></body></html>`,
			resolver:   entries("cid:bg", "image/gif", "GIF"),
			contains:   []string{`<style>p{background:url("/r/cid:bg")}</style>`, `style="background: url(&#34;/r/cid:bg&#34;)"`},
			referenced: []string{"cid:bg"},
		},
		{
			name:       "icon redirected",
			document:   `<html><head><link rel="shortcut icon" href="cid:fav"></head></html>`,
			resolver:   entries("cid:fav", "image/x-icon", "ico"),
			contains:   []string{`<link rel="shortcut icon" href="/r/cid:fav"/>`},
			referenced: []string{"cid:fav"},
		},
		{
			name:     "data uri untouched",
			document: `<img src="data:image/gif;base64,R0lGOD">`,
			resolver: entries(),
			contains: []string{`<img src="data:image/gif;base64,R0lGOD"/>`},
		},
	}

	r := New(Options{MountPrefix: "/r/"})
	for _, tC := range testCases {
		t.Run(tC.name, func(t *testing.T) {
			res, err := r.Rewrite(tC.document, tC.base, tC.resolver)
			require.NoError(t, err)
			for _, s := range tC.contains {
				assert.Contains(t, res.HTML, s)
			}
			for _, s := range tC.excludes {
				assert.NotContains(t, res.HTML, s)
			}
			assert.Len(t, res.Referenced, len(tC.referenced))
			for _, key := range tC.referenced {
				assert.True(t, res.Referenced[key], "expected %q referenced", key)
			}
		})
	}
}

func TestRewritePreservesOrder(t *testing.T) {
	document := `<html><head><meta charset="utf-8"><link rel="stylesheet" media="print" href="a.css"><title>t</title><link rel="stylesheet" href="b.css"></head><body><p>x</p></body></html>`
	resolver := entries("a.css", "text/css", "a{}", "b.css", "text/css", "b{}")

	res, err := New(Options{MountPrefix: "/r"}).Rewrite(document, "", resolver)
	require.NoError(t, err)

	meta := strings.Index(res.HTML, "<meta")
	first := strings.Index(res.HTML, `<style media="print">a{}</style>`)
	title := strings.Index(res.HTML, "<title>")
	second := strings.Index(res.HTML, `<style>b{}</style>`)
	require.True(t, meta >= 0 && first >= 0 && title >= 0 && second >= 0, res.HTML)
	assert.True(t, meta < first && first < title && title < second, res.HTML)
	assert.Contains(t, res.HTML, "<body><p>x</p></body>")
}

func TestRewriteDataURIs(t *testing.T) {
	resolver := MapResolver{"cid:img1": &model.CacheEntry{ContentType: "image/png", Content: []byte{0x00, 0x01}}}

	res, err := New(Options{MountPrefix: "/r", DataURIs: true}).Rewrite(`<img src="cid:img1">`, "", resolver)
	require.NoError(t, err)
	assert.Contains(t, res.HTML, `<img src="data:image/png;base64,AAE="/>`)
}

func TestPath(t *testing.T) {
	r := New(Options{MountPrefix: "/mhtml-resources"})
	assert.Equal(t, "/mhtml-resources/cid:img1", r.Path("cid:img1"))
	assert.Equal(t, "/mhtml-resources/a%20b.png", r.Path("a b.png"))
}
