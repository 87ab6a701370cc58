package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// datePattern pairs a recognition regex with its time layout. Month-name
// dates carry an empty layout and are assembled from capture groups.
type datePattern struct {
	re     *regexp.Regexp
	layout string
}

var datePatterns = []datePattern{
	{regexp.MustCompile(`\d{4}-\d{2}-\d{2}`), "2006-01-02"},
	{regexp.MustCompile(`\d{2}/\d{2}/\d{4}`), "01/02/2006"},
	{regexp.MustCompile(`\d{2}-\d{2}-\d{4}`), "01-02-2006"},
	{regexp.MustCompile(`\d{2}\.\d{2}\.\d{4}`), "02.01.2006"},
	{regexp.MustCompile(`(?i)(\d{1,2})\s+(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\s+(\d{4})`), ""},
}

var monthNumbers = map[string]string{
	"jan": "01", "feb": "02", "mar": "03", "apr": "04",
	"may": "05", "jun": "06", "jul": "07", "aug": "08",
	"sep": "09", "oct": "10", "nov": "11", "dec": "12",
}

var (
	amountFieldKeywords = []string{"amount", "charge", "fee", "cost", "total", "price", "duty", "tax"}
	nonAmountChars      = regexp.MustCompile(`[^\d.,\-]`)
	weightUnits         = regexp.MustCompile(`(?i)(kgs|kg|lbs|lb|grams|gram|g)\.?`)
	numberRun           = regexp.MustCompile(`[\d.,]+`)
)

// NormalizeValue applies target-field-name heuristics to bring dates, amounts
// and weights into canonical form. Returns nil when no normalization applies
// or the value does not parse; the raw value then stands as-is.
func NormalizeValue(value, targetField string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	lower := strings.ToLower(targetField)

	if strings.Contains(lower, "date") {
		if normalized := normalizeDate(value); normalized != nil {
			return normalized
		}
	}
	for _, keyword := range amountFieldKeywords {
		if strings.Contains(lower, keyword) {
			return normalizeAmount(value)
		}
	}
	if strings.Contains(lower, "weight") {
		return normalizeWeight(value)
	}
	return nil
}

// normalizeDate brings a date into YYYY-MM-DD form.
func normalizeDate(value string) *string {
	for _, pattern := range datePatterns {
		match := pattern.re.FindString(value)
		if match == "" {
			continue
		}
		if pattern.layout != "" {
			parsed, err := time.Parse(pattern.layout, match)
			if err != nil {
				continue
			}
			formatted := parsed.Format("2006-01-02")
			return &formatted
		}
		// "18 Dec 2024" style
		groups := pattern.re.FindStringSubmatch(value)
		if len(groups) == 4 {
			day := groups[1]
			if len(day) == 1 {
				day = "0" + day
			}
			month, ok := monthNumbers[strings.ToLower(groups[2])]
			if !ok {
				continue
			}
			formatted := fmt.Sprintf("%s-%s-%s", groups[3], month, day)
			return &formatted
		}
	}
	return nil
}

// normalizeAmount strips currency symbols, resolves thousands/decimal commas
// and renders two decimal places.
func normalizeAmount(value string) *string {
	cleaned := nonAmountChars.ReplaceAllString(value, "")
	if cleaned == "" {
		return nil
	}

	switch {
	case strings.Contains(cleaned, ",") && strings.Contains(cleaned, "."):
		// Both present: the comma is a thousands separator.
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case strings.Contains(cleaned, ","):
		parts := strings.Split(cleaned, ",")
		if len(parts) == 2 && len(parts[1]) <= 2 {
			// One comma with 1-2 trailing digits: decimal comma.
			cleaned = strings.ReplaceAll(cleaned, ",", ".")
		} else {
			cleaned = strings.ReplaceAll(cleaned, ",", "")
		}
	}

	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	formatted := fmt.Sprintf("%.2f", amount)
	return &formatted
}

// normalizeWeight strips unit suffixes and normalizes the numeric part like
// an amount.
func normalizeWeight(value string) *string {
	cleaned := strings.TrimSpace(weightUnits.ReplaceAllString(value, ""))
	number := numberRun.FindString(cleaned)
	if number == "" {
		return nil
	}
	return normalizeAmount(number)
}
