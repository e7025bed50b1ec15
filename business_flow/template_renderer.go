package businessflow

import (
	"regexp"
	"slices"
	"strconv"

	"github.com/amirphl/Orochi-WhatsApp/app/services"
	"github.com/amirphl/Orochi-WhatsApp/models"
)

// placeholderPattern matches {{name}} with optional inner whitespace
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// RenderTemplate substitutes every {{key}} present in vars. Unknown keys are
// left exactly as written.
func RenderTemplate(body string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		if v, ok := vars[key]; ok {
			return v
		}
		return match
	})
}

// ExtractVariables lists placeholder names in order of first appearance across parts
func ExtractVariables(parts ...string) []string {
	out := make([]string, 0)
	for _, part := range parts {
		for _, m := range placeholderPattern.FindAllStringSubmatch(part, -1) {
			if !slices.Contains(out, m[1]) {
				out = append(out, m[1])
			}
		}
	}
	return out
}

// MissingVariables returns the names in variables that vars does not supply
func MissingVariables(variables []string, vars map[string]string) []string {
	missing := make([]string, 0)
	for _, name := range variables {
		if _, ok := vars[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// TemplateVariables extracts the placeholders of header, body and url buttons
func TemplateVariables(t *models.Template) []string {
	parts := []string{}
	if t.HeaderContent != nil {
		parts = append(parts, *t.HeaderContent)
	}
	parts = append(parts, t.Body)
	for _, b := range t.Buttons {
		if b.Type == models.TemplateButtonURL {
			parts = append(parts, b.URL)
		}
	}
	return ExtractVariables(parts...)
}

// paramValue returns the value for name, or the literal placeholder when absent
func paramValue(name string, vars map[string]string) string {
	if v, ok := vars[name]; ok {
		return v
	}
	return "{{" + name + "}}"
}

func textParameters(names []string, vars map[string]string) []services.TemplateParameter {
	params := make([]services.TemplateParameter, 0, len(names))
	for _, name := range names {
		params = append(params, services.TemplateParameter{Type: "text", Text: paramValue(name, vars)})
	}
	return params
}

// BuildTemplatePayload encodes the template and one recipient's variables as
// Cloud API components: header, positional body parameters and url buttons.
func BuildTemplatePayload(t *models.Template, vars map[string]string) services.TemplatePayload {
	payload := services.TemplatePayload{
		Name:     t.Name,
		Language: services.TemplateLanguage{Code: t.Language},
	}

	if header := headerComponent(t, vars); header != nil {
		payload.Components = append(payload.Components, *header)
	}

	if names := ExtractVariables(t.Body); len(names) > 0 {
		payload.Components = append(payload.Components, services.TemplateComponent{
			Type:       "body",
			Parameters: textParameters(names, vars),
		})
	}

	for i, b := range t.Buttons {
		if b.Type != models.TemplateButtonURL {
			continue
		}
		names := ExtractVariables(b.URL)
		if len(names) == 0 {
			continue
		}
		// the provider accepts a single dynamic suffix per url button
		payload.Components = append(payload.Components, services.TemplateComponent{
			Type:       "button",
			SubType:    "url",
			Index:      strconv.Itoa(i),
			Parameters: textParameters(names[:1], vars),
		})
	}

	return payload
}

func headerComponent(t *models.Template, vars map[string]string) *services.TemplateComponent {
	if t.HeaderContent == nil || *t.HeaderContent == "" {
		return nil
	}

	switch t.HeaderType {
	case models.TemplateHeaderText:
		names := ExtractVariables(*t.HeaderContent)
		if len(names) == 0 {
			return nil
		}
		return &services.TemplateComponent{Type: "header", Parameters: textParameters(names, vars)}
	case models.TemplateHeaderImage, models.TemplateHeaderVideo, models.TemplateHeaderDocument:
		link := &services.MediaLink{Link: RenderTemplate(*t.HeaderContent, vars)}
		param := services.TemplateParameter{}
		switch t.HeaderType {
		case models.TemplateHeaderImage:
			param.Type, param.Image = "image", link
		case models.TemplateHeaderVideo:
			param.Type, param.Video = "video", link
		default:
			param.Type, param.Document = "document", link
		}
		return &services.TemplateComponent{Type: "header", Parameters: []services.TemplateParameter{param}}
	default:
		return nil
	}
}
