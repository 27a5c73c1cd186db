// Package models defines data structures for the scraper.
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidQuery is matched by every ContractError.
var ErrInvalidQuery = errors.New("invalid product query")

// ContractError reports malformed caller input. It aborts the whole run.
type ContractError struct {
	Index  int
	Reason string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("product %d: %s", e.Index, e.Reason)
}

func (e *ContractError) Is(target error) bool {
	return target == ErrInvalidQuery
}

// ProductQuery identifies a wool product by brand and model.
type ProductQuery struct {
	Brand string `json:"brand" yaml:"brand"`
	Model string `json:"model" yaml:"model"`
}

// NewQuery builds a query from raw components. Exactly two are required.
func NewQuery(parts []string) (ProductQuery, error) {
	if len(parts) != 2 {
		return ProductQuery{}, &ContractError{Reason: fmt.Sprintf("want brand and model, got %d components", len(parts))}
	}
	q := ProductQuery{Brand: parts[0], Model: parts[1]}
	if err := q.Validate(); err != nil {
		return ProductQuery{}, err
	}
	return q, nil
}

// NewQueries converts a list of raw components, reporting the offending index.
func NewQueries(raw [][]string) ([]ProductQuery, error) {
	out := make([]ProductQuery, 0, len(raw))
	for i, parts := range raw {
		q, err := NewQuery(parts)
		if err != nil {
			var contractErr *ContractError
			if errors.As(err, &contractErr) {
				contractErr.Index = i
			}
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

// Validate ensures both components are present.
func (q ProductQuery) Validate() error {
	if strings.TrimSpace(q.Brand) == "" {
		return &ContractError{Reason: "brand is empty"}
	}
	if strings.TrimSpace(q.Model) == "" {
		return &ContractError{Reason: "model is empty"}
	}
	return nil
}

// SearchTerm is the free text sent to a platform search.
func (q ProductQuery) SearchTerm() string {
	return q.Brand + " " + q.Model
}

func (q ProductQuery) String() string {
	return q.SearchTerm()
}

// ProductInfo is the record scraped from a product page.
type ProductInfo struct {
	Price        float64 `json:"price"`
	Availability bool    `json:"availability"`
	NeedleSize   int     `json:"needle_size"`
	Composition  string  `json:"composition"`
}

// PlatformOffer is one platform's record for a product.
type PlatformOffer struct {
	Platform string      `json:"platform"`
	Info     ProductInfo `json:"info"`
}

// WoolReport groups the offers found for one product.
type WoolReport struct {
	Brand              string          `json:"brand"`
	Model              string          `json:"model"`
	OfferedInPlatforms []PlatformOffer `json:"offeredInPlatforms"`
}

// ReportDocument is the aggregate written once per run.
type ReportDocument struct {
	Wools []WoolReport `json:"wools"`
}

// RunResult holds the statistics of an orchestrator run.
type RunResult struct {
	StartTime    time.Time
	EndTime      time.Time
	Platforms    []string
	Invocations  int
	FoundCount   int
	MissingCount int
	ErrorCount   int
	ErrorsByType map[string]int
	FailedPairs  []string
}
