// Package wollplatz scrapes product data from wollplatz.de.
//
// A lookup takes two requests. The first goes to the Sooqr search script
// the shop's search box uses. Its answer is a JavaScript callback whose
// argument embeds the result list as an HTML fragment. The second request
// fetches the first result's product page, which carries the buy panel
// and a product details table.
package wollplatz

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/titanous/json5"

	"github.com/aluiziolira/go-scrape-wools/models"
	"github.com/aluiziolira/go-scrape-wools/parser"
	"github.com/aluiziolira/go-scrape-wools/scraper"
)

// DefaultSearchURL is the search script endpoint used by the shop.
const DefaultSearchURL = "https://dynamic.sooqr.com/suggest/script/"

// shopURL resolves relative product links.
const shopURL = "https://www.wollplatz.de/"

const (
	stageSearch  = "search"
	stageProduct = "product"
)

var (
	needleSizeLabel  = regexp.MustCompile(`(?i)Nadelstärke`)
	compositionLabel = regexp.MustCompile(`(?i)Zusammenstellung`)
)

// Options customise a Scraper.
type Options struct {
	// SearchURL overrides DefaultSearchURL.
	SearchURL string
}

// Scraper implements scraper.WoolScraper for wollplatz.de.
type Scraper struct {
	fetcher   scraper.Fetcher
	searchURL string
}

// New returns a Scraper that fetches through f.
func New(f scraper.Fetcher, opts Options) *Scraper {
	searchURL := strings.TrimSpace(opts.SearchURL)
	if searchURL == "" {
		searchURL = DefaultSearchURL
	}
	return &Scraper{fetcher: f, searchURL: searchURL}
}

// ScrapeWoolInfo returns the record of the first product the search yields.
func (s *Scraper) ScrapeWoolInfo(ctx context.Context, query models.ProductQuery) (scraper.Result, error) {
	searchResp, err := s.fetcher.Fetch(ctx, s.searchURL, searchParams(query.SearchTerm()))
	if err != nil {
		return scraper.Result{}, err
	}

	link, found, err := parseProductLink(searchResp.Body)
	if err != nil {
		return scraper.Result{}, err
	}
	if !found {
		return scraper.NotFound(), nil
	}

	pageResp, err := s.fetcher.Fetch(ctx, link, nil)
	if err != nil {
		return scraper.Result{}, err
	}

	info, err := parseProductPage(pageResp.Body)
	if err != nil {
		return scraper.Result{}, err
	}
	return scraper.Found(info), nil
}

// searchParams mirrors the query string the shop's search box sends.
// Only searchQuery varies; the session and tracking values are opaque.
func searchParams(term string) url.Values {
	return url.Values{
		"type":                        {"suggest"},
		"searchQuery":                 {term},
		"filterInitiated":             {"false"},
		"triggerFilter":               {""},
		"triggerFilterValue":          {""},
		"triggerFilterIndex":          {""},
		"filtersShowAll":              {"false"},
		"enableFiltersShowAll":        {"false"},
		"filterValuesShowAll":         {""},
		"securedFiltersHash":          {"false"},
		"sortBy":                      {"0"},
		"offset":                      {"0"},
		"limit":                       {"16"},
		"requestIndex":                {"0"},
		"url":                         {"/"},
		"sid":                         {"144952626.1794940112.1683024014.1683749831.1683789247.13"},
		"snowplow[domain_userid]":     {"c6a1994d-02cd-439a-8201-02611f1eb0d9"},
		"snowplow[domain_sessionidx]": {"1"},
		"snowplow[domain_sessionid]":  {"89acb24b-4a35-438b-83b4-db80bc833caf"},
		"index":                       {"collection:19572"},
		"view":                        {"44898be26662b0df"},
		"account":                     {"SQ-119572-1"},
		"_":                           {"1683791444885"},
	}
}

type searchPayload struct {
	ResultsPanel *struct {
		NumberOfResults int    `json:"numberOfResults"`
		HTML            string `json:"html"`
	} `json:"resultsPanel"`
}

// parseProductLink returns the first product link, or found=false when the
// search has no results.
func parseProductLink(body []byte) (link string, found bool, err error) {
	raw, err := parser.ExtractCallbackPayload(string(body))
	if err != nil {
		return "", false, &scraper.ExtractionError{Stage: stageSearch, Field: "payload", Err: err}
	}

	var payload searchPayload
	if err := json5.Unmarshal([]byte(raw), &payload); err != nil {
		return "", false, &scraper.ExtractionError{Stage: stageSearch, Field: "payload", Err: err}
	}
	if payload.ResultsPanel == nil {
		return "", false, &scraper.ExtractionError{Stage: stageSearch, Field: "resultsPanel", Err: errors.New("missing")}
	}
	if payload.ResultsPanel.NumberOfResults == 0 {
		return "", false, nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(payload.ResultsPanel.HTML))
	if err != nil {
		return "", false, &scraper.ExtractionError{Stage: stageSearch, Field: "product_link", Err: err}
	}
	href, ok := doc.Find(".productlist-imgholder").First().Attr("href")
	href = strings.TrimSpace(href)
	if !ok || href == "" {
		return "", false, &scraper.ExtractionError{Stage: stageSearch, Field: "product_link", Err: errors.New("no product link in results")}
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false, &scraper.ExtractionError{Stage: stageSearch, Field: "product_link", Err: err}
	}
	base, _ := url.Parse(shopURL)
	return base.ResolveReference(ref).String(), true, nil
}

func parseProductPage(body []byte) (models.ProductInfo, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return models.ProductInfo{}, &scraper.ExtractionError{Stage: stageProduct, Field: "document", Err: err}
	}

	price, err := parsePrice(doc)
	if err != nil {
		return models.ProductInfo{}, &scraper.ExtractionError{Stage: stageProduct, Field: "price", Err: err}
	}
	availability, err := parseAvailability(doc)
	if err != nil {
		return models.ProductInfo{}, &scraper.ExtractionError{Stage: stageProduct, Field: "availability", Err: err}
	}
	needleSize, err := parseNeedleSize(doc)
	if err != nil {
		return models.ProductInfo{}, &scraper.ExtractionError{Stage: stageProduct, Field: "needle_size", Err: err}
	}
	composition, err := parseComposition(doc)
	if err != nil {
		return models.ProductInfo{}, &scraper.ExtractionError{Stage: stageProduct, Field: "composition", Err: err}
	}

	return models.ProductInfo{
		Price:        price,
		Availability: availability,
		NeedleSize:   needleSize,
		Composition:  composition,
	}, nil
}

func parsePrice(doc *goquery.Document) (float64, error) {
	holder := doc.Find("#ContentPlaceHolder1_pnlPDetailBuyHolder").First()
	if holder.Length() == 0 {
		return 0, errors.New("buy panel not found")
	}
	amount := holder.Find(".product-price-amount").First()
	if amount.Length() == 0 {
		return 0, errors.New("price amount not found")
	}
	return parser.ParsePrice(amount.Text())
}

func parseAvailability(doc *goquery.Document) (bool, error) {
	tag := doc.Find("[itemprop=availability]").First()
	if tag.Length() == 0 {
		return false, errors.New("availability tag not found")
	}
	content, ok := tag.Attr("content")
	if !ok {
		return false, errors.New("availability tag has no content")
	}
	return parser.ParseAvailability(content)
}

func parseNeedleSize(doc *goquery.Document) (int, error) {
	cell, err := specValueCell(doc, needleSizeLabel)
	if err != nil {
		return 0, err
	}
	return parser.ParseNeedleSize(cell.Text())
}

func parseComposition(doc *goquery.Document) (string, error) {
	cell, err := specValueCell(doc, compositionLabel)
	if err != nil {
		return "", err
	}
	return cell.Text(), nil
}

// specValueCell finds the first td whose text matches label and returns the
// td that follows it in the same row.
func specValueCell(doc *goquery.Document, label *regexp.Regexp) (*goquery.Selection, error) {
	labelCell := doc.Find("td").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.Find("td").Length() == 0 && label.MatchString(s.Text())
	}).First()
	if labelCell.Length() == 0 {
		return nil, fmt.Errorf("label %q not found", label.String())
	}
	value := labelCell.NextAllFiltered("td").First()
	if value.Length() == 0 {
		return nil, fmt.Errorf("no value cell after %q", label.String())
	}
	return value, nil
}
