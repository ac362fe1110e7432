// internal/service/template_service.go
package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/unclebandit/prospect-pipeline/internal/model"
)

const optOutFooter = "\n\nSe não quiser receber mais mensagens, responda SAIR."

// defaultTemplates are used for any key the templates file does not define.
var defaultTemplates = map[string]string{
	"template_restaurante": "Olá, {legal_name}! Parabéns pela abertura do seu restaurante em {city}. Ajudamos restaurantes a atrair mais clientes desde o primeiro mês. Posso te mostrar como?" + optOutFooter,
	"template_industria":   "Olá, {legal_name}! Vimos que sua indústria acabou de abrir em {city}-{state}. Temos soluções para organizar vendas e produção desde o início. Podemos conversar?" + optOutFooter,
	"template_varejo":      "Olá, {legal_name}! Parabéns pela nova loja em {city}. Ajudamos o varejo local a vender mais com atendimento pelo WhatsApp. Quer saber mais?" + optOutFooter,
	"template_servicos":    "Olá, {legal_name}! Parabéns pela abertura da empresa em {city}. Ajudamos novos negócios de {segment} a conquistar os primeiros clientes. Posso te explicar como?" + optOutFooter,

	string(model.KindFollowup24h): "Oi, {legal_name}! Passando para saber se você viu minha mensagem de ontem. Fico à disposição." + optOutFooter,
	string(model.KindFollowup72h): "Olá, {legal_name}! Separei alguns exemplos de empresas de {segment} em {city} que começaram com a gente. Quer que eu envie?" + optOutFooter,
	string(model.KindFollowup7d):  "Olá, {legal_name}! Esta é minha última mensagem por aqui. Se fizer sentido no futuro, é só responder esta conversa." + optOutFooter,
}

// blank values render as these so a message never shows an empty slot
var placeholderFallbacks = map[string]string{
	"legal_name": "tudo bem",
	"city":       "sua cidade",
	"state":      "BR",
	"segment":    "serviços",
	"tax_id":     "",
}

// TemplateService resolves a template key to message text.
type TemplateService struct {
	templates map[string]string
}

// NewTemplateService loads path (a JSON object of key to text) over the
// built-in defaults. A missing file is not an error.
func NewTemplateService(path string) (*TemplateService, error) {
	s := &TemplateService{templates: make(map[string]string, len(defaultTemplates))}
	for k, v := range defaultTemplates {
		s.templates[k] = v
	}
	if path == "" {
		return s, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("reading templates %s: %w", path, err)
	}
	var custom map[string]string
	if err := json.Unmarshal(raw, &custom); err != nil {
		return nil, fmt.Errorf("parsing templates %s: %w", path, err)
	}
	for k, v := range custom {
		if strings.TrimSpace(v) != "" {
			s.templates[k] = v
		}
	}
	return s, nil
}

// Text returns the raw template for key, falling back to the generic services template.
func (s *TemplateService) Text(key string) string {
	if t, ok := s.templates[key]; ok {
		return t
	}
	return s.templates["template_servicos"]
}

// Render fills the template for key with the lead's fields.
func (s *TemplateService) Render(key string, lead *model.Lead) string {
	data := map[string]string{
		"legal_name": lead.LegalName,
		"city":       lead.City,
		"state":      lead.State,
		"segment":    lead.Segment,
		"tax_id":     lead.TaxID,
	}
	for k, v := range data {
		if strings.TrimSpace(v) == "" {
			data[k] = placeholderFallbacks[k]
		}
	}
	return RenderTemplate(s.Text(key), data)
}

func RenderTemplate(template string, data map[string]string) string {
	result := template
	for k, v := range data {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}
