package scraper

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"golang.org/x/text/encoding/simplifiedchinese"

	"github.com/maltedev/market-scout/internal/browser"
	"github.com/maltedev/market-scout/internal/extract"
	"github.com/maltedev/market-scout/internal/models"
)

var (
	pledgedPattern  = regexp.MustCompile(`(?i)([$€£¥][\d,]+)\s+pledged`)
	fundedPattern   = regexp.MustCompile(`(\d+%)\s+funded`)
	daysToGoPattern = regexp.MustCompile(`(?i)(\d+)\s+days?\s+to\s+go`)
	yuanPattern     = regexp.MustCompile(`[¥￥]\s*[\d.]+(?:\s*[-~]\s*[\d.]+)?`)
)

// KickstarterSite lists crowdfunding projects. They carry no price; the
// pledged amount is the secondary metric.
func KickstarterSite() Site {
	return Site{
		Platform: "Kickstarter",
		Kind:     models.KindTrend,
		Currency: models.CurrencyUSD,
		Profile:  browser.DefaultProfile("Kickstarter"),
		SearchURL: func(keyword string) (string, error) {
			return fmt.Sprintf("https://www.kickstarter.com/discover/advanced?term=%s&sort=popularity",
				url.QueryEscape(keyword)), nil
		},
		BaseURL:        "https://www.kickstarter.com",
		ReadySelectors: []string{"div.js-react-proj-card"},
		ReadyTimeout:   15 * time.Second,
		CardSelector:   "div.js-react-proj-card",
		Plan: extract.NewPlan(
			extract.NewStrategy(extract.FieldTitle, extract.SentinelUnknown,
				extract.Selector("h3 a, a.soft-black"),
				extract.SelectorAttr("img", "alt"),
			),
			extract.NewStrategy(extract.FieldLink, extract.SentinelEmpty,
				extract.Link("h3 a, a.soft-black"),
				extract.Link(`a[href*="/projects/"]`),
			),
			extract.NewStrategy(extract.FieldDescription, extract.SentinelEmpty,
				extract.Selector("p.type-12, p.type-13"),
			),
			extract.NewStrategy(extract.FieldPledged, extract.SentinelNA,
				extract.Pattern(pledgedPattern, 1),
			),
			extract.NewStrategy(extract.FieldPercentFunded, extract.SentinelNA,
				extract.Pattern(fundedPattern, 1),
			),
			extract.NewStrategy(extract.FieldDaysToGo, extract.SentinelNA,
				extract.Pattern(daysToGoPattern, 1),
			),
		),
		Accept: func(f extract.Fields, _ *extract.Card) bool {
			return f.Has(extract.FieldTitle) && f.Has(extract.FieldLink)
		},
		Secondary: extract.FieldPledged,
		Extras:    []extract.Field{extract.FieldPercentFunded, extract.FieldDaysToGo, extract.FieldDescription},
	}
}

// EncodeGBK percent-encodes keyword as GBK bytes, the encoding 1688 search expects.
func EncodeGBK(keyword string) (string, error) {
	encoded, err := simplifiedchinese.GBK.NewEncoder().String(keyword)
	if err != nil {
		return "", fmt.Errorf("failed to encode keyword as GBK: %w", err)
	}
	return url.QueryEscape(encoded), nil
}

// Alibaba1688Site uses a persistent profile under dataDir so a login done
// once in a visible browser survives later runs. Only one run may use the
// profile directory at a time.
func Alibaba1688Site(dataDir string) Site {
	profileDir := filepath.Join(dataDir, "browser_data_1688")
	profile := browser.ChineseProfile("1688")
	profile.UserDataDir = profileDir

	return Site{
		Platform: "1688",
		Kind:     models.KindSourcing,
		Currency: models.CurrencyCNY,
		Profile:  profile,
		SearchURL: func(keyword string) (string, error) {
			encoded, err := EncodeGBK(keyword)
			if err != nil {
				return "", err
			}
			return "https://s.1688.com/selloffer/offer_search.htm?keywords=" + encoded + "&n=y&netType=1%2C11%2C16", nil
		},
		BaseURL:        "https://s.1688.com",
		NavTimeout:     30 * time.Second,
		ReadySelectors: []string{".sm-offer-item", ".offer-list-row-offer", ".common-offer-card"},
		ReadyTimeout:   15 * time.Second,
		CardSelector:   ".sm-offer-item, .offer-list-row-offer, .common-offer-card, .offer-list-row",
		Plan: extract.NewPlan(
			extract.NewStrategy(extract.FieldTitle, extract.SentinelUnknown,
				extract.Selector(".offer-title a, .title a, .offer-title"),
				extract.SelectorAttr("a[title]", "title"),
				extract.SelectorAttr("img", "alt"),
			),
			extract.NewStrategy(extract.FieldPrice, extract.SentinelNA,
				extract.Price(extract.Selector(".price, .offer-price")),
				extract.Price(extract.Pattern(yuanPattern, 0)),
			),
			extract.NewStrategy(extract.FieldSupplier, "Unknown Company",
				extract.Selector(".company-name a, .company-name"),
			),
			extract.NewStrategy(extract.FieldLink, extract.SentinelEmpty,
				extract.Link(".offer-title a, .title a"),
				extract.Link("a"),
			),
		),
		Secondary: extract.FieldSupplier,
		Signals:   []string{"登录"},
		Setup: func() error {
			return os.MkdirAll(profileDir, 0755)
		},
	}
}

func YiwuGoSite() Site {
	return Site{
		Platform: "YiwuGo",
		Kind:     models.KindSourcing,
		Currency: models.CurrencyCNY,
		Profile:  browser.ChineseProfile("YiwuGo"),
		SearchURL: func(keyword string) (string, error) {
			return "https://www.yiwugo.com/search/s.html?q=" + url.QueryEscape(keyword), nil
		},
		BaseURL:        "https://www.yiwugo.com",
		NavTimeout:     30 * time.Second,
		ReadySelectors: []string{".pro_list_product_img", ".pro_item"},
		ReadyTimeout:   10 * time.Second,
		CardSelector:   ".pro_item",
		Plan: extract.NewPlan(
			extract.NewStrategy(extract.FieldTitle, extract.SentinelUnknown,
				extract.SelectorAttr(".product_title a", "title"),
				extract.Selector(".product_title a"),
				extract.SelectorAttr("img", "alt"),
			),
			extract.NewStrategy(extract.FieldPrice, extract.SentinelNA,
				extract.Price(extract.Selector(".pri-num em, .pri_price")),
				extract.Price(extract.Pattern(yuanPattern, 0)),
			),
			extract.NewStrategy(extract.FieldSupplier, "Unknown Shop",
				extract.Selector(".shop_name a, .company_name"),
			),
			extract.NewStrategy(extract.FieldLink, extract.SentinelEmpty,
				extract.Link(".product_title a"),
			),
		),
		Secondary: extract.FieldSupplier,
	}
}
