package crawl

// Locator is a structural descriptor used to find an element or attribute in
// a rendered page. An empty Attr means the element's text content; otherwise
// the named attribute is read.
type Locator struct {
	Query string
	Attr  string
}

// Chains groups the ordered fallback-selector lists for every field the
// extractor reads, plus the link chain used by the collector. Lower-indexed
// locators are the most specific and most reliable; later entries are
// progressively more generic fallbacks for older page layouts.
type Chains struct {
	Title       []Locator
	Content     []Locator
	Author      []Locator
	Media       []Locator
	PublishedAt []Locator
	Links       []Locator
}

// NaverChains returns the selector chains for the Naver news portal. The
// portal reworks its article markup periodically, so each chain carries the
// current layout first and the legacy layouts behind it.
func NaverChains() Chains {
	return Chains{
		Title: []Locator{
			{Query: "#title_area span"},
			{Query: ".media_end_head_headline"},
			{Query: "h2#title"},
			{Query: ".article_title"},
		},
		Content: []Locator{
			{Query: "#dic_area"},
			{Query: "#articleBodyContents"},
			{Query: ".article_body"},
			{Query: ".news_article_body"},
		},
		Author: []Locator{
			{Query: ".byline_s .by_name"},
			{Query: ".article_info .by em"},
			{Query: ".reporter_name"},
			{Query: ".media_end_head_journalist .name"},
		},
		Media: []Locator{
			{Query: ".media_end_head_top_logo img", Attr: "alt"},
			{Query: ".press_logo img", Attr: "alt"},
			{Query: ".media_logo img", Attr: "alt"},
		},
		PublishedAt: []Locator{
			{Query: ".article_info span._ARTICLE_DATE_TIME"},
			{Query: ".media_end_head_info_datestamp_time"},
			{Query: ".article_date"},
		},
		Links: []Locator{
			{Query: "a[href*='/main/read.naver']"},
			{Query: ".newsflash_body a[href*='read.naver']"},
			{Query: ".list_body a[href*='read.naver']"},
			{Query: "a[href*='news.naver.com/main/read']"},
		},
	}
}
