package parser

import (
	"fmt"
	"strings"
	"testing"

	"github.com/IshaanNene/ShelfStalk/internal/types"
)

const listingHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Shoes</title>
    <link rel="next" href="/shoes?page=2">
</head>
<body>
    <ul class="grid">
        <li class="product-card">
            <a class="product-link" href="/p/runner">
                <img src="/img/runner.jpg" alt="Runner">
                <h2 class="name">Trail  Runner</h2>
            </a>
            <span class="price">$89.00</span>
        </li>
        <li class="product-card">
            <a class="product-link" href="https://cdn.example.com/p/boot">
                <img data-src="/img/boot.jpg" src="data:image/gif;base64,R0lGOD">
                <h2 class="name">Hiking Boot</h2>
            </a>
            <span class="price">$129.00</span>
        </li>
        <li class="product-card">
            <a class="product-link" href="/p/sandal">
                <img srcset="/img/sandal-1x.jpg 1x, /img/sandal-2x.jpg 2x">
                <h2 class="name">Sandal</h2>
            </a>
            <span class="price">$39.00</span>
        </li>
        <li class="product-card">
            <span class="name">No link here</span>
        </li>
    </ul>
    <nav class="pagination">
        <a href="/shoes?page=1">1</a>
        <a href="/shoes?page=2#top">Next ›</a>
    </nav>
</body>
</html>`

var listingSelectors = types.Selectors{
	Item:  ".product-card",
	Link:  "a.product-link",
	Title: ".name",
	Price: ".price",
	Image: "img",
}

// --- JSON-LD ---

func TestParseJSONLDOfferFields(t *testing.T) {
	html := `<script type="application/ld+json">
	{"@context":"https://schema.org","@type":"Product","name":"Widget",
	 "offers":{"@type":"Offer","price":"9.99","url":"https://x.test/w","priceCurrency":"USD"}}
	</script>`

	products := ParseJSONLD(html)
	if len(products) != 1 {
		t.Fatalf("expected 1 product, got %d", len(products))
	}
	p := products[0]
	if p.Title != "Widget" || p.Price != "9.99" || p.URL != "https://x.test/w" {
		t.Errorf("unexpected product: %+v", p)
	}
	if p.Currency != "USD" {
		t.Errorf("expected USD, got %q", p.Currency)
	}
}

func TestParseJSONLDIsolatesMalformedBlocks(t *testing.T) {
	html := `
	<script type="application/ld+json">{"@type":"Product","name":"Broken",</script>
	<script type="application/ld+json">{"@type":"Product","name":"Good","url":"https://x.test/good"}</script>`

	products := ParseJSONLD(html)
	if len(products) != 1 {
		t.Fatalf("expected the well-formed product only, got %d", len(products))
	}
	if products[0].Title != "Good" {
		t.Errorf("expected Good, got %q", products[0].Title)
	}
}

func TestParseJSONLDGraphAndArrays(t *testing.T) {
	html := `<script type="application/ld+json">
	{"@graph":[
	  {"@type":"WebPage","name":"Listing"},
	  {"@type":["Product","Thing"],"name":"Lamp","url":"https://x.test/lamp",
	   "image":["https://x.test/lamp.jpg"],
	   "offers":[{"price":24.5,"availability":"https://schema.org/InStock"},{"price":30}],
	   "brand":{"@type":"Brand","name":"Lumo"}},
	  {"@type":"Product","url":"https://x.test/nameless"}
	]}
	</script>
	<script type="application/ld+json">[{"@type":"Product","name":"Chair","url":"https://x.test/chair"}]</script>`

	products := ParseJSONLD(html)
	if len(products) != 2 {
		t.Fatalf("expected 2 products, got %d: %+v", len(products), products)
	}
	lamp := products[0]
	if lamp.Price != "24.5" {
		t.Errorf("expected first offer price 24.5, got %q", lamp.Price)
	}
	if lamp.Image != "https://x.test/lamp.jpg" {
		t.Errorf("unexpected image %q", lamp.Image)
	}
	if lamp.Brand != "Lumo" {
		t.Errorf("expected brand Lumo, got %q", lamp.Brand)
	}
	if lamp.InStock == nil || !*lamp.InStock {
		t.Error("expected inStock=true")
	}
	if products[1].Title != "Chair" {
		t.Errorf("expected Chair, got %q", products[1].Title)
	}
}

func TestParseJSONLDItemList(t *testing.T) {
	html := `<script type="application/ld+json">
	{"@type":"ItemList","itemListElement":[
	  {"@type":"ListItem","position":1,"item":{"@type":"Product","name":"A","url":"https://x.test/a"}},
	  {"@type":"ListItem","position":2,"item":{"@type":"Product","name":"B","url":"https://x.test/b"}}
	]}</script>`

	if got := len(ParseJSONLD(html)); got != 2 {
		t.Errorf("expected 2 products from item list, got %d", got)
	}
}

func TestParseJSONLDIgnoresNonProducts(t *testing.T) {
	html := `<script type="application/ld+json">{"@type":"Article","name":"News"}</script>`
	if got := ParseJSONLD(html); len(got) != 0 {
		t.Errorf("expected no products, got %+v", got)
	}
}

// --- Selectors ---

func TestExtractBySelectors(t *testing.T) {
	products, err := ExtractBySelectors(listingHTML, "https://shop.example.com/shoes", listingSelectors)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(products) != 3 {
		t.Fatalf("expected 3 products, got %d", len(products))
	}

	runner := products[0]
	if runner.URL != "https://shop.example.com/p/runner" {
		t.Errorf("expected resolved URL, got %q", runner.URL)
	}
	if runner.Title != "Trail Runner" {
		t.Errorf("expected collapsed title, got %q", runner.Title)
	}
	if runner.Price != "$89.00" {
		t.Errorf("unexpected price %q", runner.Price)
	}
	if runner.Image != "https://shop.example.com/img/runner.jpg" {
		t.Errorf("unexpected image %q", runner.Image)
	}

	if products[1].URL != "https://cdn.example.com/p/boot" {
		t.Errorf("absolute href should be kept, got %q", products[1].URL)
	}
	if products[1].Image != "https://shop.example.com/img/boot.jpg" {
		t.Errorf("expected data-src image, got %q", products[1].Image)
	}
	if products[2].Image != "https://shop.example.com/img/sandal-1x.jpg" {
		t.Errorf("expected first srcset entry, got %q", products[2].Image)
	}
}

func TestExtractBySelectorsInvalidItem(t *testing.T) {
	_, err := ExtractBySelectors(listingHTML, "https://shop.example.com", types.Selectors{Item: "li[["})
	if err == nil {
		t.Fatal("expected parse error for invalid item selector")
	}
}

func TestExtractBySelectorsAnchorItem(t *testing.T) {
	html := `<div><a class="tile" href="/p/1">First</a><a class="tile" href="/p/2">Second</a></div>`
	products, err := ExtractBySelectors(html, "https://x.test/", types.Selectors{Item: "a.tile", Price: ".price"})
	if err != nil {
		t.Fatal(err)
	}
	if len(products) != 2 || products[1].Title != "Second" || products[1].URL != "https://x.test/p/2" {
		t.Errorf("unexpected products: %+v", products)
	}
}

func TestResolveURLFallsBackToRawHref(t *testing.T) {
	if got := ResolveURL("::bad base", "/p/1"); got != "/p/1" {
		t.Errorf("expected raw href fallback, got %q", got)
	}
	if got := ResolveURL("https://x.test/a/b", "../c"); got != "https://x.test/c" {
		t.Errorf("unexpected resolution %q", got)
	}
}

// --- XPath ---

func TestExtractByXPath(t *testing.T) {
	sel := types.Selectors{
		Item:  `//li[@class="product-card"]`,
		Link:  `.//a/@href`,
		Title: `.//*[@class="name"]`,
		Price: `.//span[@class="price"]`,
		Image: `.//img`,
	}
	products, err := ExtractByXPath(listingHTML, "https://shop.example.com/shoes", sel)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(products) != 3 {
		t.Fatalf("expected 3 products, got %d", len(products))
	}
	if products[0].URL != "https://shop.example.com/p/runner" || products[0].Price != "$89.00" {
		t.Errorf("unexpected first product: %+v", products[0])
	}
	if products[1].Image != "https://shop.example.com/img/boot.jpg" {
		t.Errorf("expected data-src image, got %q", products[1].Image)
	}
}

func TestValidateXPath(t *testing.T) {
	if err := ValidateXPath("//div[@class='x']"); err != nil {
		t.Errorf("expected valid xpath: %v", err)
	}
	if err := ValidateXPath("//div[@class="); err == nil {
		t.Error("expected invalid xpath error")
	}
}

// --- Simplifier ---

func TestSimplifyHTML(t *testing.T) {
	raw := `<html><head><title>T</title><style>.x{}</style></head>
	<body><!-- promo --><script>track()</script>
	<div class="card" id="c1" data-price="10" onclick="go()" style="color:red">
	  <a href="/p/1" class="lnk" title="One">One</a>
	  <svg><path d="M0"/></svg><iframe src="/ad"></iframe>
	  <img src="/1.jpg" alt="one" width="100">
	</div></body></html>`

	out := SimplifyHTML(raw, 0)
	for _, banned := range []string{"<script", "<style", "<svg", "<iframe", "promo", "onclick", "class=", "style=", "width=", "<title"} {
		if strings.Contains(out, banned) {
			t.Errorf("simplified HTML should not contain %q: %s", banned, out)
		}
	}
	for _, kept := range []string{`href="/p/1"`, `title="One"`, `data-price="10"`, `alt="one"`, `src="/1.jpg"`} {
		if !strings.Contains(out, kept) {
			t.Errorf("simplified HTML should keep %q: %s", kept, out)
		}
	}
}

func TestSimplifyHTMLTruncates(t *testing.T) {
	raw := "<body><p>" + strings.Repeat("é", 5000) + "</p></body>"
	out := SimplifyHTML(raw, 1001)
	if len(out) > 1001 {
		t.Errorf("expected at most 1001 bytes, got %d", len(out))
	}
	if !strings.HasPrefix(out, "<p>") {
		t.Errorf("unexpected prefix: %q", out[:10])
	}
	if strings.ContainsRune(out, '�') {
		t.Error("truncation split a rune")
	}
}

// --- Pagination ---

func TestFindNextLinksHeuristic(t *testing.T) {
	links := FindNextLinks(listingHTML, "https://shop.example.com/shoes", "")
	if len(links) != 1 {
		t.Fatalf("expected one deduplicated link, got %v", links)
	}
	if links[0] != "https://shop.example.com/shoes?page=2" {
		t.Errorf("unexpected link %q", links[0])
	}
}

func TestFindNextLinksSelector(t *testing.T) {
	html := `<div class="more"><a href="/list?p=3">Load more</a></div><a href="/next-page">Next</a>`
	links := FindNextLinks(html, "https://x.test/list", ".more")
	if len(links) != 1 || links[0] != "https://x.test/list?p=3" {
		t.Errorf("expected selector result only, got %v", links)
	}
}

func TestFindNextLinksDropsUnresolvable(t *testing.T) {
	html := `<a rel="next" href="javascript:void(0)">Next</a><a href="ftp://x.test/2">Next</a><a class="next" href="http://[::1">Next</a>`
	if links := FindNextLinks(html, "https://x.test/", ""); len(links) != 0 {
		t.Errorf("expected no links, got %v", links)
	}
}

// --- Selector ranking ---

func TestRankSelectors(t *testing.T) {
	ranked := RankSelectors(listingHTML, []string{"nav a", ".product-card", "div[[", "h1"})
	if len(ranked) != 4 {
		t.Fatalf("expected 4 ranked candidates, got %d", len(ranked))
	}
	if ranked[0].Selector != ".product-card" {
		t.Errorf("expected .product-card to rank first, got %+v", ranked)
	}
	for _, c := range ranked {
		if c.Selector == "div[[" && c.Score != 0 {
			t.Errorf("invalid selector should score 0, got %v", c.Score)
		}
	}
}

func TestLooksLikePrice(t *testing.T) {
	for _, s := range []string{"$9.99", "€ 12", "12,50 €", "USD 40"} {
		if !LooksLikePrice(s) {
			t.Errorf("expected %q to look like a price", s)
		}
	}
	if LooksLikePrice("Size 42") {
		t.Error("plain number should not look like a price")
	}
}

// --- Benchmarks ---

func BenchmarkParseJSONLD(b *testing.B) {
	var sb strings.Builder
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&sb, `<script type="application/ld+json">{"@type":"Product","name":"P%d","offers":{"price":"%d.00","url":"https://x.test/%d"}}</script>`, i, i, i)
	}
	html := sb.String()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ParseJSONLD(html)
	}
}

func BenchmarkExtractBySelectors(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, _ = ExtractBySelectors(listingHTML, "https://shop.example.com/shoes", listingSelectors)
	}
}

func TestFindNextLinksIgnoresProductNamesContainingNext(t *testing.T) {
	html := `<ul>
<li><a href="/p/next-level-tee">Next Level Tee</a></li>
<li><a href="/p/annex">Annexture Lamp</a></li>
</ul>
<a href="/list?page=2">Next »</a>`
	links := FindNextLinks(html, "https://x.test/list", "")
	if len(links) != 1 || links[0] != "https://x.test/list?page=2" {
		t.Errorf("expected only the real next link, got %v", links)
	}
}

func TestFindNextLinksInPaginationContainer(t *testing.T) {
	html := `<nav class="pagination"><a href="/list?page=1">1</a><a class="nextPage" href="/list?page=2">›</a><a href="/list?page=3">Next page</a></nav>`
	links := FindNextLinks(html, "https://x.test/list", "")
	if len(links) != 2 || links[0] != "https://x.test/list?page=2" {
		t.Errorf("unexpected links %v", links)
	}
}
