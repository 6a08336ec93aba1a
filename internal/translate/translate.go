// Package translate turns sales-side keywords into the Chinese terms
// sourcing sites are searched with.
package translate

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/maltedev/market-scout/internal/llm"
)

type Translator interface {
	ToChinese(ctx context.Context, keyword string) (string, error)
}

// Dictionary maps known English phrases to Chinese. Unknown keywords pass
// through unchanged.
type Dictionary struct {
	mu      sync.RWMutex
	entries map[string]string
}

func NewDictionary() *Dictionary {
	return &Dictionary{entries: map[string]string{
		"yoga mat":         "瑜伽垫",
		"running shoes":    "跑步鞋",
		"wireless earbuds": "无线耳机",
		"water bottle":     "水杯",
		"phone case":       "手机壳",
	}}
}

func (d *Dictionary) Add(english, chinese string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries[strings.ToLower(strings.TrimSpace(english))] = chinese
}

// Lookup finds the longest known phrase contained in keyword.
func (d *Dictionary) Lookup(keyword string) (string, bool) {
	lower := strings.ToLower(keyword)

	d.mu.RLock()
	defer d.mu.RUnlock()

	keys := make([]string, 0, len(d.entries))
	for k := range d.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	for _, k := range keys {
		if strings.Contains(lower, k) {
			return d.entries[k], true
		}
	}
	return "", false
}

func (d *Dictionary) ToChinese(ctx context.Context, keyword string) (string, error) {
	if IsChinese(keyword) {
		return keyword, nil
	}
	if zh, ok := d.Lookup(keyword); ok {
		return zh, nil
	}
	return keyword, nil
}

// IsChinese reports whether s already contains Han characters.
func IsChinese(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

const translatePrompt = `Translate this e-commerce search keyword into the simplified Chinese term a buyer would type on 1688.com. Reply with the Chinese term only.

Keyword: `

// LLM asks the model for a translation when the dictionary has none and
// falls back to the dictionary on any failure.
type LLM struct {
	client   llm.Client
	fallback *Dictionary
	logger   *slog.Logger
}

func NewLLM(client llm.Client, fallback *Dictionary, logger *slog.Logger) *LLM {
	if fallback == nil {
		fallback = NewDictionary()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LLM{client: client, fallback: fallback, logger: logger.With("component", "translate")}
}

func (t *LLM) ToChinese(ctx context.Context, keyword string) (string, error) {
	if IsChinese(keyword) {
		return keyword, nil
	}
	if zh, ok := t.fallback.Lookup(keyword); ok {
		return zh, nil
	}
	if t.client == nil {
		return keyword, nil
	}

	reply, err := t.client.Complete(ctx, translatePrompt+keyword, "You are a precise translator for cross-border e-commerce.")
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		t.logger.Warn("LLM translation failed, keeping keyword", "keyword", keyword, "error", err)
		return keyword, nil
	}

	zh := cleanReply(reply)
	if !IsChinese(zh) {
		t.logger.Warn("LLM returned no Chinese term", "keyword", keyword, "reply", reply)
		return keyword, nil
	}

	t.fallback.Add(keyword, zh)
	return zh, nil
}

func cleanReply(reply string) string {
	line := strings.TrimSpace(strings.SplitN(strings.TrimSpace(reply), "\n", 2)[0])
	return strings.Trim(line, "\"'“”「」。. ")
}
