package businessflow

import (
	"testing"

	"github.com/amirphl/Orochi-WhatsApp/models"
	"github.com/amirphl/Orochi-WhatsApp/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderTemplate(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		vars     map[string]string
		expected string
	}{
		{
			name:     "order confirmation",
			body:     "Hi {{name}}, order {{order_id}} confirmed",
			vars:     map[string]string{"name": "Asha", "order_id": "1042"},
			expected: "Hi Asha, order 1042 confirmed",
		},
		{
			name:     "missing key left as is",
			body:     "Hi {{name}}, code {{code}}",
			vars:     map[string]string{"name": "Ravi"},
			expected: "Hi Ravi, code {{code}}",
		},
		{
			name:     "inner whitespace",
			body:     "Hello {{ name }}!",
			vars:     map[string]string{"name": "Mia"},
			expected: "Hello Mia!",
		},
		{
			name:     "repeated placeholder",
			body:     "{{a}}-{{a}}",
			vars:     map[string]string{"a": "x"},
			expected: "x-x",
		},
		{
			name:     "nil vars",
			body:     "Hi {{name}}",
			vars:     nil,
			expected: "Hi {{name}}",
		},
		{
			name:     "no placeholders",
			body:     "Plain text",
			vars:     map[string]string{"name": "unused"},
			expected: "Plain text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RenderTemplate(tt.body, tt.vars))
		})
	}
}

func TestRenderTemplate_Deterministic(t *testing.T) {
	vars := map[string]string{"name": "Asha"}
	first := RenderTemplate("Hi {{name}} {{x}}", vars)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, RenderTemplate("Hi {{name}} {{x}}", vars))
	}
	assert.Equal(t, map[string]string{"name": "Asha"}, vars)
}

func TestExtractVariables(t *testing.T) {
	vars := ExtractVariables("Order {{order_id}}", "Hi {{name}}, order {{order_id}} by {{ date }}")
	assert.Equal(t, []string{"order_id", "name", "date"}, vars)
	assert.Empty(t, ExtractVariables("nothing here"))
}

func TestMissingVariables(t *testing.T) {
	missing := MissingVariables([]string{"name", "order_id"}, map[string]string{"name": "Asha"})
	assert.Equal(t, []string{"order_id"}, missing)
}

func TestBuildTemplatePayload(t *testing.T) {
	tmpl := &models.Template{
		Name:          "order_update",
		Language:      "en_US",
		Body:          "Hi {{name}}, order {{order_id}} confirmed",
		HeaderType:    models.TemplateHeaderText,
		HeaderContent: utils.ToPtr("Order {{order_id}}"),
		Buttons: models.TemplateButtons{
			{Type: models.TemplateButtonQuickReply, Text: "Stop"},
			{Type: models.TemplateButtonURL, Text: "Track", URL: "https://shop.example/track/{{order_id}}"},
		},
	}

	payload := BuildTemplatePayload(tmpl, map[string]string{"name": "Asha", "order_id": "1042"})

	assert.Equal(t, "order_update", payload.Name)
	assert.Equal(t, "en_US", payload.Language.Code)
	require.Len(t, payload.Components, 3)

	header := payload.Components[0]
	assert.Equal(t, "header", header.Type)
	require.Len(t, header.Parameters, 1)
	assert.Equal(t, "1042", header.Parameters[0].Text)

	body := payload.Components[1]
	assert.Equal(t, "body", body.Type)
	require.Len(t, body.Parameters, 2)
	assert.Equal(t, "Asha", body.Parameters[0].Text)
	assert.Equal(t, "1042", body.Parameters[1].Text)

	button := payload.Components[2]
	assert.Equal(t, "button", button.Type)
	assert.Equal(t, "url", button.SubType)
	assert.Equal(t, "1", button.Index)
	assert.Equal(t, "1042", button.Parameters[0].Text)
}

func TestBuildTemplatePayload_MediaHeader(t *testing.T) {
	tmpl := &models.Template{
		Name:          "promo",
		Language:      "en",
		Body:          "New arrivals",
		HeaderType:    models.TemplateHeaderImage,
		HeaderContent: utils.ToPtr("https://cdn.example/banner.png"),
	}

	payload := BuildTemplatePayload(tmpl, nil)

	require.Len(t, payload.Components, 1)
	param := payload.Components[0].Parameters[0]
	assert.Equal(t, "image", param.Type)
	require.NotNil(t, param.Image)
	assert.Equal(t, "https://cdn.example/banner.png", param.Image.Link)
}

func TestTemplateVariables(t *testing.T) {
	tmpl := &models.Template{
		Body:          "Hi {{name}}",
		HeaderContent: utils.ToPtr("{{store}} news"),
		Buttons: models.TemplateButtons{
			{Type: models.TemplateButtonURL, URL: "https://x.example/{{coupon}}"},
			{Type: models.TemplateButtonQuickReply, Text: "{{ignored}}"},
		},
	}
	assert.Equal(t, []string{"store", "name", "coupon"}, TemplateVariables(tmpl))
}
