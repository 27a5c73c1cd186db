// Package parser holds the text-level field parsers used by platform scrapers.
package parser

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/aluiziolira/go-scrape-wools/models"
)

// ErrAmbiguousAvailability is returned when an availability value says neither in nor out.
var ErrAmbiguousAvailability = errors.New("availability value not expected")

var searchCallbackRe = regexp.MustCompile(`searchCallback\.sendSearchQueryByScriptCompleted\(({.*})\);`)

// ExtractCallbackPayload returns the object literal passed to the search callback.
func ExtractCallbackPayload(body string) (string, error) {
	match := searchCallbackRe.FindStringSubmatch(body)
	if match == nil {
		return "", fmt.Errorf("search callback not found in response")
	}
	return match[1], nil
}

// ParsePrice replaces a decimal comma with a point and parses the result.
func ParsePrice(text string) (float64, error) {
	normalized := strings.ReplaceAll(strings.TrimSpace(text), ",", ".")
	price, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, fmt.Errorf("parse price %q: %w", text, err)
	}
	if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("price %q out of range", text)
	}
	return price, nil
}

// ParseAvailability maps a schema.org style availability value to a flag.
// "in" is checked before "out".
func ParseAvailability(content string) (bool, error) {
	value := strings.ToLower(content)
	switch {
	case strings.Contains(value, "in"):
		return true, nil
	case strings.Contains(value, "out"):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrAmbiguousAvailability, content)
	}
}

// ParseNeedleSize reads the first whitespace-delimited token as an integer.
func ParseNeedleSize(text string) (int, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0, fmt.Errorf("needle size is empty")
	}
	size, err := strconv.Atoi(fields[0])
	if err != nil {
		return 0, fmt.Errorf("parse needle size %q: %w", text, err)
	}
	if size <= 0 {
		return 0, fmt.Errorf("needle size %d must be positive", size)
	}
	return size, nil
}

// ValidateInfo ensures a record satisfies the numeric invariants.
func ValidateInfo(info models.ProductInfo) error {
	if info.Price < 0 {
		return fmt.Errorf("negative price %v", info.Price)
	}
	if info.NeedleSize <= 0 {
		return fmt.Errorf("needle size %d must be positive", info.NeedleSize)
	}
	return nil
}
