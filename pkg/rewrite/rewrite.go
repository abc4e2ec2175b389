// Package rewrite points the resource references of a decoded archive
// document at the local resource cache.
//
// Style sheets are inlined as <style> elements so they apply before first
// paint. Every other reference listed in the rule table is redirected to
// "{MountPrefix}/{url.PathEscape(key)}". References without a cache entry
// are left untouched and will 404 when requested.
package rewrite

import (
	"log/slog"
	"mime"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/sepich/mhtml-cache/pkg/cache"
	"github.com/sepich/mhtml-cache/pkg/codec"
	"github.com/sepich/mhtml-cache/pkg/model"
)

// Resolver looks up decoded archive resources by cache key.
type Resolver interface {
	Get(key string) (*model.CacheEntry, bool)
}

// MapResolver resolves from a plain map, such as the entries of an archive
// that are not yet published to the cache.
type MapResolver map[string]*model.CacheEntry

func (m MapResolver) Get(key string) (*model.CacheEntry, bool) {
	entry, ok := m[key]
	return entry, ok
}

type Options struct {
	// MountPrefix is the route under which cached resources are served.
	MountPrefix string
	// DataURIs embeds images as data: URIs instead of redirecting them.
	DataURIs bool
	Logger   *slog.Logger
}

type Rewriter struct {
	mountPrefix string
	dataURIs    bool
	logger      *slog.Logger
}

func New(opts Options) *Rewriter {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Rewriter{
		mountPrefix: strings.TrimRight(opts.MountPrefix, "/"),
		dataURIs:    opts.DataURIs,
		logger:      logger,
	}
}

// Result is a rewritten document and the set of cache keys it referenced.
type Result struct {
	HTML       string
	Referenced map[string]bool
}

// Path returns the delivery path of a cache key.
func (r *Rewriter) Path(key string) string {
	return r.mountPrefix + "/" + url.PathEscape(key)
}

type action int

const (
	actionInlineSheet action = iota
	actionRedirect
	actionStyleText
	actionStyleAttr
)

type rule struct {
	selector string
	attr     string
	action   action
	drop     []string
}

// Rules run in order; an element is handled by the first element rule
// matching it. Style attributes are rewritten on every element.
var rules = []rule{
	{selector: `link[rel~="stylesheet"], link[type="text/css"]`, attr: "href", action: actionInlineSheet},
	{selector: "img[src]", attr: "src", action: actionRedirect, drop: []string{"srcset", "loading"}},
	{selector: "script[src]", attr: "src", action: actionRedirect},
	{selector: "source[src]", attr: "src", action: actionRedirect},
	{selector: "video[poster]", attr: "poster", action: actionRedirect},
	{selector: `link[rel~="icon"]`, attr: "href", action: actionRedirect},
	{selector: "style", action: actionStyleText},
	{selector: "[style]", attr: "style", action: actionStyleAttr},
}

type pass struct {
	*Rewriter
	base     string
	resolver Resolver
	result   *Result
	handled  map[*html.Node]bool
}

// Rewrite parses document and rewrites its references. base is the
// document's own locator and is used to resolve relative references.
func (r *Rewriter) Rewrite(document, base string, resolver Resolver) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return nil, err
	}

	p := &pass{
		Rewriter: r,
		base:     base,
		resolver: resolver,
		result:   &Result{Referenced: make(map[string]bool)},
		handled:  make(map[*html.Node]bool),
	}
	for _, ru := range rules {
		// Snapshot first: inlining replaces nodes.
		var targets []*goquery.Selection
		doc.Find(ru.selector).Each(func(_ int, el *goquery.Selection) {
			if n := el.Get(0); ru.action == actionStyleAttr || !p.handled[n] {
				p.handled[n] = true
				targets = append(targets, el)
			}
		})
		for _, el := range targets {
			p.apply(ru, el)
		}
	}

	out, err := doc.Html()
	if err != nil {
		return nil, err
	}
	p.result.HTML = out
	return p.result, nil
}

func (p *pass) apply(ru rule, el *goquery.Selection) {
	switch ru.action {
	case actionInlineSheet:
		p.inlineSheet(el, ru.attr)
	case actionRedirect:
		p.redirect(el, ru.attr)
		for _, attr := range ru.drop {
			el.RemoveAttr(attr)
		}
	case actionStyleText:
		if n := el.Get(0); n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
			n.FirstChild.Data = p.rewriteCSS(n.FirstChild.Data, p.base)
		}
	case actionStyleAttr:
		style, _ := el.Attr(ru.attr)
		el.SetAttr(ru.attr, p.rewriteCSS(style, p.base))
	}
}

func (p *pass) inlineSheet(el *goquery.Selection, attr string) {
	ref, _ := el.Attr(attr)
	key, entry, ok := p.lookup(ref, p.base)
	if !ok {
		return
	}
	if mediaType, _, _ := mime.ParseMediaType(entry.ContentType); mediaType != "text/css" {
		p.logger.Warn("style sheet has unexpected content type, not inlining", "ref", ref, "content_type", entry.ContentType)
		return
	}
	p.result.Referenced[key] = true

	css := p.rewriteCSS(string(entry.Content), key)
	style := &html.Node{Type: html.ElementNode, Data: "style", DataAtom: atom.Style}
	if media, ok := el.Attr("media"); ok {
		style.Attr = append(style.Attr, html.Attribute{Key: "media", Val: media})
	}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: strings.ReplaceAll(css, "</style", `<\/style`)})
	el.ReplaceWithNodes(style)
	p.handled[style] = true
}

func (p *pass) redirect(el *goquery.Selection, attr string) {
	ref, _ := el.Attr(attr)
	key, entry, ok := p.lookup(ref, p.base)
	if !ok {
		return
	}
	p.result.Referenced[key] = true

	if p.dataURIs && goquery.NodeName(el) == "img" {
		el.SetAttr(attr, codec.DataURI(entry.ContentType, entry.Content))
		return
	}
	el.SetAttr(attr, p.Path(key))
}

var cssURL = regexp.MustCompile(`url\(\s*(?:"([^"]*)"|'([^']*)'|([^)\s]*))\s*\)`)

// rewriteCSS redirects url(...) references of a style sheet; base is the
// locator the sheet's relative references are resolved against.
func (p *pass) rewriteCSS(css, base string) string {
	return cssURL.ReplaceAllStringFunc(css, func(match string) string {
		groups := cssURL.FindStringSubmatch(match)
		ref := groups[1] + groups[2] + groups[3]
		key, _, ok := p.lookup(ref, base)
		if !ok {
			return match
		}
		p.result.Referenced[key] = true
		return `url("` + p.Path(key) + `")`
	})
}

// lookup tries the reference as written, then resolved against base.
func (p *pass) lookup(ref, base string) (string, *model.CacheEntry, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "data:") {
		return "", nil, false
	}
	key := cache.KeyFromLocator(ref)
	if entry, ok := p.resolver.Get(key); ok {
		return key, entry, true
	}
	if base != "" {
		if abs, ok := resolveReference(base, ref); ok && abs != key {
			if entry, ok := p.resolver.Get(abs); ok {
				return abs, entry, true
			}
		}
	}
	p.logger.Debug("reference has no cache entry", "ref", ref)
	return "", nil, false
}

func resolveReference(base, ref string) (string, bool) {
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return "", false
	}
	return cache.KeyFromLocator(b.ResolveReference(u).String()), true
}
