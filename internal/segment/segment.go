// Package segment maps CNAE activity codes to the industry buckets used for messaging.
package segment

import "strings"

const (
	Restaurante = "restaurante"
	Varejo      = "varejo"
	Industria   = "industria"
	Tecnologia  = "tecnologia"
	Servicos    = "servicos"

	Default = Servicos
)

type rule struct {
	prefix  string
	segment string
}

// rules are checked in order; the first textual prefix match wins.
var rules = buildRules()

func buildRules() []rule {
	r := []rule{
		{"5611", Restaurante},
		{"47", Varejo},
	}
	for i := 10; i <= 33; i++ {
		r = append(r, rule{prefix: itoa2(i), segment: Industria})
	}
	return append(r,
		rule{"62", Tecnologia},
		rule{"69", Servicos},
		rule{"70", Servicos},
	)
}

func itoa2(n int) string {
	return string([]byte{byte('0' + n/10), byte('0' + n%10)})
}

// Classify returns the segment for an activity code. Punctuation in the code
// ("5611-2/01") is ignored; empty or unmatched codes fall into Default.
func Classify(code string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, code)
	if digits == "" {
		return Default
	}
	for _, r := range rules {
		if strings.HasPrefix(digits, r.prefix) {
			return r.segment
		}
	}
	return Default
}

var templateKeys = map[string]string{
	Restaurante: "template_restaurante",
	Industria:   "template_industria",
	Varejo:      "template_varejo",
	Servicos:    "template_servicos",
	Tecnologia:  "template_servicos",
}

// TemplateKey names the first-contact template for a segment.
func TemplateKey(segment string) string {
	if key, ok := templateKeys[segment]; ok {
		return key
	}
	return "template_servicos"
}
