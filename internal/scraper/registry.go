package scraper

import (
	"fmt"
	"strings"

	"github.com/maltedev/market-scout/internal/models"
)

// SourceIDs lists every known source in the order runs report them.
var SourceIDs = []string{
	"amazon",
	"aliexpress",
	"temu",
	"shopee",
	"tiktok",
	"tiktok_trending",
	"kickstarter",
	"1688",
	"yiwugo",
}

type Options struct {
	ShopeeRegion string
	DataDir      string
}

func site(id string, opts Options) (Site, bool) {
	switch id {
	case "amazon":
		return AmazonSite(), true
	case "aliexpress":
		return AliExpressSite(), true
	case "temu":
		return TemuSite(), true
	case "shopee":
		return ShopeeSite(opts.ShopeeRegion), true
	case "tiktok":
		return TikTokShopSite(), true
	case "tiktok_trending":
		return TikTokTrendingSite(), true
	case "kickstarter":
		return KickstarterSite(), true
	case "1688":
		return Alibaba1688Site(opts.DataDir), true
	case "yiwugo":
		return YiwuGoSite(), true
	default:
		return Site{}, false
	}
}

// Build returns adapters for ids, or for every known source when ids is empty.
func Build(ids []string, opts Options, deps Deps) ([]Adapter, error) {
	if len(ids) == 0 {
		ids = SourceIDs
	}

	adapters := make([]Adapter, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, raw := range ids {
		id := strings.ToLower(strings.TrimSpace(raw))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		s, ok := site(id, opts)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownSource, raw)
		}
		adapters = append(adapters, NewSiteAdapter(s, deps))
	}
	return adapters, nil
}

// ByKind keeps the adapters of one kind, preserving order.
func ByKind(adapters []Adapter, kind models.SourceKind) []Adapter {
	var out []Adapter
	for _, a := range adapters {
		if a.Kind() == kind {
			out = append(out, a)
		}
	}
	return out
}
