package scraper

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/maltedev/market-scout/internal/browser"
	"github.com/maltedev/market-scout/internal/extract"
	"github.com/maltedev/market-scout/internal/models"
)

var (
	dollarPricePattern = regexp.MustCompile(`\$\s*[\d.,]+`)
	usDollarPattern    = regexp.MustCompile(`US\s*\$\s*[\d.]+`)
	soldPattern        = regexp.MustCompile(`(?i)(\d+[\d.,]*\w*\+?)\s+sold`)
	temuSoldPattern    = regexp.MustCompile(`(?i)([\d.,]+K?\+?)\s+sold`)
	shopeePricePattern = regexp.MustCompile(`(RM|S\$|NT\$|₱|฿|\$)\s*[\d.,]+`)
	ratingPattern      = regexp.MustCompile(`[\d.]+ out of 5 stars`)
)

func queryURL(base, param string) func(string) (string, error) {
	return func(keyword string) (string, error) {
		u, err := url.Parse(base)
		if err != nil {
			return "", err
		}
		q := u.Query()
		q.Set(param, keyword)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
}

func hasDollar(_ extract.Fields, c *extract.Card) bool {
	return strings.Contains(c.Text(), "$")
}

// amazonLink builds the canonical product URL from the card's ASIN.
func amazonLink(c *extract.Card) (string, bool) {
	asin, ok := c.Root().Attr("data-asin")
	asin = strings.TrimSpace(asin)
	if !ok || asin == "" {
		return "", false
	}
	return "https://www.amazon.com/dp/" + asin, true
}

func AmazonSite() Site {
	return Site{
		Platform:       "Amazon",
		Kind:           models.KindSales,
		Currency:       models.CurrencyUSD,
		Profile:        browser.DefaultProfile("Amazon"),
		SearchURL:      queryURL("https://www.amazon.com/s", "k"),
		BaseURL:        "https://www.amazon.com",
		ReadySelectors: []string{`div[data-component-type="s-search-result"]`},
		ReadyTimeout:   30 * time.Second,
		CardSelector:   `div[data-component-type="s-search-result"]`,
		Plan: extract.NewPlan(
			extract.NewStrategy(extract.FieldTitle, "Unknown Title",
				extract.Selector("h2 span"),
				extract.SelectorAttr("h2", "aria-label"),
				extract.SelectorAttr("img.s-image", "alt"),
			),
			extract.NewStrategy(extract.FieldPrice, extract.SentinelNA,
				extract.Price(extract.Selector(".a-price .a-offscreen")),
				extract.Joined(".a-price-whole", ".a-price-fraction", "${1}.{2}"),
				extract.Price(extract.Pattern(dollarPricePattern, 0)),
			),
			extract.NewStrategy(extract.FieldRating, extract.SentinelNA,
				extract.SelectorAttr(`span[aria-label*="out of 5 stars"]`, "aria-label"),
				extract.Pattern(ratingPattern, 0),
			),
			extract.NewStrategy(extract.FieldLink, extract.SentinelEmpty,
				amazonLink,
				extract.Link("h2 a"),
				extract.Link("a.a-link-normal"),
			),
		),
		Secondary: extract.FieldRating,
	}
}

// aliexpressRegionCookie pins the storefront to US, English and USD.
var aliexpressRegionCookie = browser.Cookie{
	Name:   "aep_usuc_f",
	Value:  "region=US&site=glo&b_locale=en_US&c_tp=USD",
	Domain: ".aliexpress.com",
	Path:   "/",
}

func AliExpressSite() Site {
	profile := browser.DefaultProfile("AliExpress")
	profile.Cookies = []browser.Cookie{aliexpressRegionCookie}

	return Site{
		Platform:       "AliExpress",
		Kind:           models.KindSales,
		Currency:       models.CurrencyUSD,
		Profile:        profile,
		SearchURL:      queryURL("https://www.aliexpress.com/wholesale", "SearchText"),
		BaseURL:        "https://www.aliexpress.com",
		ReadySelectors: []string{`div[class*="list--gallery"]`, `a[href*="/item/"]`},
		Scrolls:        1,
		ScrollBy:       1000,
		ScrollPause:    2 * time.Second,
		CardSelector:   `a[href*="/item/"]`,
		Plan: extract.NewPlan(
			extract.NewStrategy(extract.FieldTitle, extract.SentinelEmpty,
				extract.Selector(`h1, h3, div[class*="title"]`),
				extract.FirstLine(),
			),
			extract.NewStrategy(extract.FieldPrice, extract.SentinelNA,
				extract.Price(extract.Pattern(usDollarPattern, 0)),
				extract.Price(extract.Pattern(dollarPricePattern, 0)),
			),
			extract.NewStrategy(extract.FieldSoldCount, extract.SentinelZero,
				extract.Pattern(soldPattern, 1),
			),
			extract.NewStrategy(extract.FieldLink, extract.SentinelEmpty, extract.RootLink()),
		),
		Accept: func(f extract.Fields, c *extract.Card) bool {
			return hasDollar(f, c) && f.Has(extract.FieldTitle) && f.Has(extract.FieldPrice)
		},
		Dedupe:    true,
		Secondary: extract.FieldSoldCount,
	}
}

func TemuSite() Site {
	profile := browser.DefaultProfile("Temu")
	profile.ViewportWidth = 1280
	profile.ViewportHeight = 800
	profile.Stealth = true

	return Site{
		Platform:       "Temu",
		Kind:           models.KindSales,
		Currency:       models.CurrencyUSD,
		Profile:        profile,
		SearchURL:      queryURL("https://www.temu.com/search_result.html", "search_key"),
		BaseURL:        "https://www.temu.com",
		ReadySelectors: []string{`div[id*="goods_list"]`, `a[href*="goods_id"]`},
		Scrolls:        3,
		ScrollBy:       800,
		CardSelector:   `a[href*="goods_id"]`,
		Plan: extract.NewPlan(
			extract.NewStrategy(extract.FieldTitle, extract.SentinelEmpty,
				extract.Selector(`div[class*="title"], span[class*="name"]`),
				extract.SelectorAttr("img", "alt"),
			),
			extract.NewStrategy(extract.FieldPrice, extract.SentinelNA,
				extract.Price(extract.Pattern(dollarPricePattern, 0)),
			),
			extract.NewStrategy(extract.FieldSoldCount, extract.SentinelZero,
				extract.Pattern(temuSoldPattern, 1),
			),
			extract.NewStrategy(extract.FieldLink, extract.SentinelEmpty, extract.RootLink()),
		),
		Accept:    hasDollar,
		Dedupe:    true,
		Secondary: extract.FieldSoldCount,
		Signals:   []string{"security check", "are you a robot"},
	}
}

// ShopeeSite searches the storefront for region, e.g. "my", "sg" or "tw".
func ShopeeSite(region string) Site {
	if region == "" {
		region = "my"
	}
	base := "https://shopee." + region
	platform := "Shopee-" + region

	return Site{
		Platform:       platform,
		Kind:           models.KindSales,
		Currency:       models.CurrencyUSD,
		Profile:        browser.DefaultProfile(platform),
		SearchURL:      queryURL(base+"/search", "keyword"),
		BaseURL:        base,
		ReadySelectors: []string{`div[data-sqe="item"]`},
		CardSelector:   `div[data-sqe="item"]`,
		Plan: extract.NewPlan(
			extract.NewStrategy(extract.FieldTitle, extract.SentinelUnknown,
				extract.Selector(`div[data-sqe="name"] > div`),
				extract.SelectorAttr("img", "alt"),
				extract.FirstLine(),
			),
			extract.NewStrategy(extract.FieldPrice, extract.SentinelNA,
				extract.Price(extract.Selector(`span[class*="_24JoLh"]`)),
				extract.Price(extract.Selector("div > span:nth-child(2)")),
				extract.Price(extract.Pattern(shopeePricePattern, 0)),
			),
			extract.NewStrategy(extract.FieldSoldCount, extract.SentinelZero,
				extract.Pattern(soldPattern, 1),
			),
			extract.NewStrategy(extract.FieldLink, extract.SentinelEmpty, extract.Link("a")),
		),
		Secondary: extract.FieldSoldCount,
	}
}

const dismissTikTokModal = `() => {
	const btn = document.querySelector('button[data-e2e="modal-close-icon"]');
	if (btn) { btn.click(); return true; }
	return false;
}`

func dismissModal(ctx context.Context, page browser.Page) error {
	_, err := page.Evaluate(ctx, dismissTikTokModal, nil)
	return err
}

func tiktokPlan() extract.Plan {
	return extract.NewPlan(
		extract.NewStrategy(extract.FieldTitle, extract.SentinelEmpty,
			extract.Selector(`[data-e2e*="title"], [class*="title"]`),
			extract.SelectorAttr("img", "alt"),
			extract.FirstLine(),
		),
		extract.NewStrategy(extract.FieldPrice, extract.SentinelNA,
			extract.Price(extract.Selector(`[class*="price"]`)),
			extract.Price(extract.Pattern(dollarPricePattern, 0)),
		),
		extract.NewStrategy(extract.FieldSoldCount, extract.SentinelZero,
			extract.Pattern(soldPattern, 1),
		),
		extract.NewStrategy(extract.FieldLink, extract.SentinelEmpty,
			extract.RootLink(),
			extract.Link("a"),
		),
	)
}

// TikTokShopSite is best-effort: the shop search layout is heavily obfuscated
// and served mostly to mobile clients.
func TikTokShopSite() Site {
	return Site{
		Platform:       "TikTok Shop",
		Kind:           models.KindSales,
		Currency:       models.CurrencyUSD,
		Profile:        browser.MobileProfile("TikTok Shop"),
		SearchURL:      queryURL("https://www.tiktok.com/search/shop", "q"),
		BaseURL:        "https://www.tiktok.com",
		ReadySelectors: []string{`a[href*="/product/"]`, `div[data-e2e*="product"]`},
		ReadyTimeout:   15 * time.Second,
		Prepare:        dismissModal,
		Scrolls:        2,
		ScrollBy:       800,
		CardSelector:   `a[href*="/product/"], div[data-e2e*="product"]`,
		Plan:           tiktokPlan(),
		Accept: func(f extract.Fields, _ *extract.Card) bool {
			return f.Has(extract.FieldTitle)
		},
		Dedupe:    true,
		Secondary: extract.FieldSoldCount,
	}
}

// TikTokTrendingSite reads the public trending products board. Its listings
// are trend signals and never enter price averages.
func TikTokTrendingSite() Site {
	site := TikTokShopSite()
	site.Platform = "TikTok Trending"
	site.Kind = models.KindTrend
	site.Profile = browser.MobileProfile("TikTok Trending")
	site.SearchURL = func(string) (string, error) {
		return "https://www.tiktok.com/shop/trending", nil
	}
	return site
}
