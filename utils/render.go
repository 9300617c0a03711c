package utils

import "strings"

// Placeholders the renderer recognizes. A recognized placeholder with no
// value renders as an empty string; anything outside this set (and outside
// the caller's context) passes through untouched so partially specified
// contexts never error.
var knownPlaceholders = map[string]struct{}{
	"name":                {},
	"customer_first_name": {},
	"order_id":            {},
	"order_tracking_url":  {},
	"cart_recovery_url":   {},
	"product_name":        {},
	"price":               {},
	"variant":             {},
	"size":                {},
	"color":               {},
	"qty":                 {},
}

// Render substitutes {{placeholder}} spans in template with values from ctx.
// recipientName fills {{name}} and {{customer_first_name}}, defaulting to
// "there" when blank. Pure and idempotent; safe to call repeatedly.
func Render(template, recipientName string, ctx map[string]string) string {
	name := strings.TrimSpace(recipientName)
	if name == "" {
		name = "there"
	}

	var b strings.Builder
	b.Grow(len(template))

	rest := template
	for {
		open := strings.Index(rest, "{{")
		if open == -1 {
			b.WriteString(rest)
			return b.String()
		}
		close := strings.Index(rest[open:], "}}")
		if close == -1 {
			b.WriteString(rest)
			return b.String()
		}
		close += open

		b.WriteString(rest[:open])
		key := strings.TrimSpace(rest[open+2 : close])

		value, recognized := lookupPlaceholder(key, name, ctx)
		if recognized {
			b.WriteString(value)
		} else {
			// Unknown placeholder: emit the span verbatim.
			b.WriteString(rest[open : close+2])
		}
		rest = rest[close+2:]
	}
}

func lookupPlaceholder(key, name string, ctx map[string]string) (string, bool) {
	if v, ok := ctx[key]; ok {
		return v, true
	}
	switch key {
	case "name", "customer_first_name":
		return name, true
	}
	if _, ok := knownPlaceholders[key]; ok {
		return "", true
	}
	return "", false
}
