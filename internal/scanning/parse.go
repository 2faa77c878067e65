package scanning

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	// anyValue captures the rest of the line after a label
	anyValue = `([^\n]+)`
	// priceValue captures a numeric amount, optionally behind a yuan sign
	priceValue = `(?:[¥￥]\s*)?([0-9]+\.?[0-9]*)`
	// separator is an optional colon then any whitespace, including the
	// ideographic and no-break spaces OCR output puts after a full-width colon
	separator = `[:：]?[\s\p{Z}\x{FEFF}\x{0B}]*`
)

// fieldRule maps a set of label synonyms to the field they fill.
// value must hold exactly one capture group.
type fieldRule struct {
	field  string
	labels []string
	value  string
	assign func(f *ExtractedFields, value string)
}

// fieldRules is evaluated in order; each rule is independent of the others.
var fieldRules = []fieldRule{
	{field: "price", labels: []string{"价格", "金额", "实付", "付款"}, value: priceValue, assign: assignPrice},
	{field: "shop", labels: []string{"商家", "店铺", "品牌"}, value: anyValue, assign: assignText(func(f *ExtractedFields) **string { return &f.Shop })},
	{field: "name", labels: []string{"商品", "名称", "产品"}, value: anyValue, assign: assignText(func(f *ExtractedFields) **string { return &f.Name })},
	{field: "capacity", labels: []string{"容量", "规格"}, value: anyValue, assign: assignText(func(f *ExtractedFields) **string { return &f.Capacity })},
	{field: "flavor", labels: []string{"口味", "风味"}, value: anyValue, assign: assignText(func(f *ExtractedFields) **string { return &f.Flavor })},
	{field: "cupSize", labels: []string{"杯型", "杯量", "大小"}, value: anyValue, assign: assignText(func(f *ExtractedFields) **string { return &f.CupSize })},
}

// reBareCupSize finds a size token like 大杯 anywhere in the text
var reBareCupSize = regexp.MustCompile(`(?i)(大|中|小)杯`)

// compiledRule is a fieldRule with its label pattern built
type compiledRule struct {
	fieldRule
	re *regexp.Regexp
}

var compiledRules = compileRules(fieldRules)

func compileRules(rules []fieldRule) []compiledRule {
	out := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		quoted := make([]string, len(r.labels))
		for i, l := range r.labels {
			quoted[i] = regexp.QuoteMeta(l)
		}
		pattern := `(?i)(?:` + strings.Join(quoted, "|") + `)` + separator + r.value
		out = append(out, compiledRule{fieldRule: r, re: regexp.MustCompile(pattern)})
	}
	return out
}

// Extract infers purchase fields from raw recognized text.
// Each field keeps the first match in document order. Cup size falls back to a
// bare size token when no labeled cup size was found.
func Extract(text string) ExtractedFields {
	var fields ExtractedFields
	if strings.TrimSpace(text) == "" {
		return fields
	}

	for _, rule := range compiledRules {
		if m := rule.re.FindStringSubmatch(text); m != nil {
			rule.assign(&fields, m[1])
		}
	}

	if fields.CupSize == nil {
		if size := reBareCupSize.FindString(text); size != "" {
			fields.CupSize = &size
		}
	}

	return fields
}

func assignPrice(f *ExtractedFields, value string) {
	price, err := strconv.ParseFloat(value, 64)
	if err != nil {
		// unset, never zero
		return
	}
	f.Price = &price
}

func assignText(target func(f *ExtractedFields) **string) func(*ExtractedFields, string) {
	return func(f *ExtractedFields, value string) {
		if value = strings.TrimSpace(value); value != "" {
			*target(f) = &value
		}
	}
}
