package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Office is a registry record reduced to the fields the pipeline stores.
type Office struct {
	TaxID        string
	LegalName    string
	Phone        string
	Email        string
	City         string
	State        string
	ActivityCode string
	FoundedOn    string
	Address      string
}

// listKeys are the envelope fields the /office endpoint has used for its
// records, tried in order.
var listKeys = []string{"records", "items", "data", "results"}

// ExtractItems decodes an /office payload. The body may be a bare list or an
// object wrapping the list; unknown shapes and undecodable bodies yield no
// items. next is the pagination cursor when the object carries one.
func ExtractItems(body []byte) (items []map[string]any, next string) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, ""
	}

	switch v := payload.(type) {
	case []any:
		return objects(v), ""
	case map[string]any:
		next = str(v["next"])
		for _, key := range listKeys {
			if list, ok := v[key].([]any); ok && len(list) > 0 {
				return objects(list), next
			}
		}
		return nil, next
	default:
		return nil, ""
	}
}

func objects(list []any) []map[string]any {
	out := make([]map[string]any, 0, len(list))
	for _, el := range list {
		if m, ok := el.(map[string]any); ok {
			out = append(out, m)
		}
	}
	return out
}

// NormalizeOffice maps one raw record. Missing fields become empty strings.
func NormalizeOffice(item map[string]any) Office {
	company, _ := item["company"].(map[string]any)
	address, _ := item["address"].(map[string]any)

	o := Office{
		TaxID:     str(item["taxId"]),
		LegalName: str(company["name"]),
		FoundedOn: str(item["founded"]),
		City:      str(address["city"]),
		State:     str(address["state"]),
		Phone:     firstPhone(item),
		Email:     firstEmail(item),
	}
	if o.LegalName == "" {
		o.LegalName = str(item["alias"])
	}
	if activity, ok := item["mainActivity"].(map[string]any); ok {
		o.ActivityCode = str(activity["id"])
	}

	line := fmt.Sprintf("%s %s, %s, %s-%s",
		str(address["street"]), str(address["number"]), str(address["district"]), o.City, o.State)
	o.Address = strings.Trim(line, " ,-")
	return o
}

func firstPhone(item map[string]any) string {
	phones, _ := item["phones"].([]any)
	if len(phones) == 0 {
		return str(item["phone"])
	}
	switch p := phones[0].(type) {
	case map[string]any:
		area, number := str(p["area"]), str(p["number"])
		if area == "" || number == "" {
			return ""
		}
		return "(" + area + ")" + number
	default:
		return str(p)
	}
}

func firstEmail(item map[string]any) string {
	emails, _ := item["emails"].([]any)
	if len(emails) == 0 {
		return str(item["email"])
	}
	if e, ok := emails[0].(map[string]any); ok {
		return str(e["address"])
	}
	return str(emails[0])
}

// str renders scalars; ids arrive as numbers or strings depending on the field.
func str(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}
