package classify

import "strings"

// receiptKeywords are terms commonly printed on receipts. "change" is listed
// twice upstream; duplicates collapse when the lexicon is built.
var receiptKeywords = []string{
	"total", "subtotal", "tax", "change", "cash", "visa", "mastercard",
	"debit", "credit", "receipt", "invoice", "change", "amount", "paid",
	"thank you", "change due", "balance", "tender", "card", "cashier",
	"date", "time", "item", "qty", "quantity", "price", "store", "shop",
}

const (
	// Threshold is the minimum confidence for an image to count as a receipt
	Threshold = 0.3
	// saturation is the number of distinct matches that yields full confidence
	saturation = 10
)

var lexicon = dedupe(receiptKeywords)

func dedupe(words []string) []string {
	seen := make(map[string]struct{}, len(words))
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.ToLower(w)
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// Lexicon returns a copy of the distinct keywords used for scoring
func Lexicon() []string {
	return append([]string(nil), lexicon...)
}

// Matches returns the distinct lexicon entries contained in text.
// Containment is a plain substring test: "date" matches inside "update".
func Matches(text string) []string {
	text = strings.ToLower(text)
	var found []string
	for _, keyword := range lexicon {
		if strings.Contains(text, keyword) {
			found = append(found, keyword)
		}
	}
	return found
}

// Score turns recognized text into a classification
func Score(text string) Result {
	confidence := float64(len(Matches(text))) / saturation
	if confidence > 1 {
		confidence = 1
	}
	return Result{
		IsReceipt:  confidence >= Threshold,
		Confidence: confidence,
	}
}
