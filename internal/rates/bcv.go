package rates

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/seenimoa/tasas/pkg/models"
	"github.com/seenimoa/tasas/pkg/utils"
)

// DefaultBCVURL is the Banco Central de Venezuela home page.
const DefaultBCVURL = "https://www.bcv.org.ve/"

// Source is a secondary provider of rates, consulted when the rates API fails.
type Source interface {
	Name() string
	Rates(ctx context.Context) ([]models.CurrencyRate, error)
}

// bcvSelectors maps each code to the element holding its official rate.
var bcvSelectors = []struct {
	code     string
	selector string
}{
	{"USD", "#dolar strong"},
	{"EUR", "#euro strong"},
	{"CNY", "#yuan strong"},
	{"TRY", "#lira strong"},
	{"RUB", "#rublo strong"},
}

// BCV scrapes the official rates published on the central bank page.
type BCV struct {
	url  string
	http *http.Client
}

// NewBCV creates a BCV scraper. An empty url means DefaultBCVURL.
func NewBCV(url string, client *http.Client) *BCV {
	if url == "" {
		url = DefaultBCVURL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &BCV{url: url, http: client}
}

// Name returns the source name.
func (b *BCV) Name() string { return "bcv" }

// Rates downloads the page and reads every known rate block.
func (b *BCV) Rates(ctx context.Context) ([]models.CurrencyRate, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/html")

	resp, err := b.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bcv: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bcv: HTTP %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse bcv HTML: %w", err)
	}
	return parseBCV(doc), nil
}

func parseBCV(doc *goquery.Document) []models.CurrencyRate {
	updated, _ := doc.Find("span.date-display-single").First().Attr("content")

	var out []models.CurrencyRate
	for _, s := range bcvSelectors {
		text := strings.TrimSpace(doc.Find(s.selector).First().Text())
		value := utils.ParseNumber(text)
		if value <= 0 {
			continue
		}
		out = append(out, models.CurrencyRate{
			Code:        s.code,
			Name:        displayName(s.code, "", "bcv"),
			Value:       value,
			Type:        models.RateFiat,
			IconName:    strings.ToLower(s.code),
			LastUpdated: updated,
		})
	}
	return out
}
