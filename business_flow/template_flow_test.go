package businessflow_test

import (
	"testing"

	"github.com/amirphl/Orochi-WhatsApp/app/dto"
	"github.com/amirphl/Orochi-WhatsApp/app/services"
	businessflow "github.com/amirphl/Orochi-WhatsApp/business_flow"
	"github.com/amirphl/Orochi-WhatsApp/models"
	testingutil "github.com/amirphl/Orochi-WhatsApp/testing"
	"github.com/amirphl/Orochi-WhatsApp/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateLifecycle(t *testing.T) {
	withFlowEnv(t, func(env *flowEnv) {
		ctx := testingutil.CreateTestContext()

		created, err := env.Template.CreateTemplate(ctx, &dto.CreateTemplateRequest{
			Name:          "order_update",
			Language:      "en_US",
			Category:      "UTILITY",
			Body:          "Hi {{name}}, order {{order_id}} ships {{ when }}",
			HeaderType:    "TEXT",
			HeaderContent: utils.ToPtr("Order for {{name}}"),
			Buttons: []dto.TemplateButtonDTO{
				{Type: "QUICK_REPLY", Text: "Thanks"},
				{Type: "URL", Text: "Track", URL: "https://example.com/track/{{order_id}}"},
			},
		}, testMetadata())
		require.NoError(t, err)
		assert.Equal(t, models.TemplateStatusDraft.String(), created.Status)
		assert.Equal(t, []string{"name", "order_id", "when"}, created.Variables)
		require.Len(t, created.Buttons, 2)

		t.Run("DuplicateName", func(t *testing.T) {
			_, err := env.Template.CreateTemplate(ctx, &dto.CreateTemplateRequest{
				Name: "order_update", Language: "en_US", Category: "UTILITY", Body: "x",
			}, testMetadata())
			assert.True(t, businessflow.IsTemplateNameExists(err))
		})

		t.Run("DraftCannotBeApprovedDirectly", func(t *testing.T) {
			_, err := env.Template.ApproveTemplate(ctx, created.ID, testMetadata())
			assert.True(t, businessflow.IsInvalidTemplateTransition(err))
		})

		t.Run("RejectThenReviseThenApprove", func(t *testing.T) {
			submitted, err := env.Template.SubmitTemplate(ctx, created.ID, testMetadata())
			require.NoError(t, err)
			assert.Equal(t, models.TemplateStatusPending.String(), submitted.Status)

			_, err = env.Template.UpdateTemplate(ctx, &dto.UpdateTemplateRequest{ID: created.ID, Body: utils.ToPtr("changed")}, testMetadata())
			assert.True(t, businessflow.IsTemplateNotEditable(err))

			rejected, err := env.Template.RejectTemplate(ctx, created.ID, "Tone does not match guidelines", testMetadata())
			require.NoError(t, err)
			assert.Equal(t, models.TemplateStatusRejected.String(), rejected.Status)
			assert.Equal(t, "Tone does not match guidelines", utils.Deref(rejected.RejectionReason))

			updated, err := env.Template.UpdateTemplate(ctx, &dto.UpdateTemplateRequest{
				ID:   created.ID,
				Body: utils.ToPtr("Hello {{name}}, order {{order_id}} is on its way"),
			}, testMetadata())
			require.NoError(t, err)
			assert.Equal(t, []string{"name", "order_id"}, updated.Variables)

			revised, err := env.Template.ReviseTemplate(ctx, created.ID, testMetadata())
			require.NoError(t, err)
			assert.Equal(t, models.TemplateStatusDraft.String(), revised.Status)

			_, err = env.Template.SubmitTemplate(ctx, created.ID, testMetadata())
			require.NoError(t, err)
			approved, err := env.Template.ApproveTemplate(ctx, created.ID, testMetadata())
			require.NoError(t, err)
			assert.Equal(t, models.TemplateStatusApproved.String(), approved.Status)

			_, err = env.Template.ReviseTemplate(ctx, created.ID, testMetadata())
			assert.True(t, businessflow.IsInvalidTemplateTransition(err))

			audits, err := env.AuditRepo.ByFilter(ctx, models.AuditLogFilter{Action: utils.ToPtr(models.AuditActionTemplateStatusChanged)}, "", 0, 0)
			require.NoError(t, err)
			assert.Len(t, audits, 5)
		})

		t.Run("Preview", func(t *testing.T) {
			preview, err := env.Template.PreviewTemplate(ctx, created.ID, &dto.PreviewTemplateRequest{
				Variables: map[string]string{"name": "Asha"},
			})
			require.NoError(t, err)
			assert.Equal(t, "Hello Asha, order {{order_id}} is on its way", preview.Content)
			assert.Equal(t, []string{"order_id"}, preview.MissingVariables)

			components, ok := preview.Components.([]services.TemplateComponent)
			require.True(t, ok)
			require.Len(t, components, 3)
			assert.Equal(t, "header", components[0].Type)
			assert.Equal(t, "body", components[1].Type)
			assert.Equal(t, "button", components[2].Type)
			assert.Equal(t, "1", components[2].Index)
		})

		t.Run("List", func(t *testing.T) {
			_, err := env.Fixtures.CreateTemplate("Other {{x}}", models.TemplateStatusDraft, "x")
			require.NoError(t, err)

			list, err := env.Template.ListTemplates(ctx, &dto.ListTemplatesRequest{Status: models.TemplateStatusApproved.String()})
			require.NoError(t, err)
			require.Len(t, list.Items, 1)
			assert.Equal(t, created.ID, list.Items[0].ID)

			all, err := env.Template.ListTemplates(ctx, &dto.ListTemplatesRequest{})
			require.NoError(t, err)
			assert.Equal(t, int64(2), all.Pagination.Total)
		})

		t.Run("NotFound", func(t *testing.T) {
			_, err := env.Template.GetTemplate(ctx, 999)
			assert.True(t, businessflow.IsTemplateNotFound(err))
		})
	})
}

func TestTemplateValidation(t *testing.T) {
	withFlowEnv(t, func(env *flowEnv) {
		ctx := testingutil.CreateTestContext()

		t.Run("MediaHeaderNeedsContent", func(t *testing.T) {
			_, err := env.Template.CreateTemplate(ctx, &dto.CreateTemplateRequest{
				Name: "promo_image", Language: "en_US", Category: "MARKETING", Body: "Sale!", HeaderType: "IMAGE",
			}, testMetadata())
			require.Error(t, err)
			assert.ErrorIs(t, err, businessflow.ErrInvalidTemplateHeader)
		})

		t.Run("UrlButtonNeedsUrl", func(t *testing.T) {
			_, err := env.Template.CreateTemplate(ctx, &dto.CreateTemplateRequest{
				Name: "promo_button", Language: "en_US", Category: "MARKETING", Body: "Sale!",
				Buttons: []dto.TemplateButtonDTO{{Type: "URL", Text: "Shop"}},
			}, testMetadata())
			assert.ErrorIs(t, err, businessflow.ErrInvalidTemplateButton)
		})

		t.Run("ReferencedTemplateIsFrozen", func(t *testing.T) {
			tpl, err := env.Fixtures.CreateTemplate("Hey {{name}}", models.TemplateStatusRejected, "name")
			require.NoError(t, err)
			number, err := env.Fixtures.CreateWhatsAppNumber(true)
			require.NoError(t, err)
			require.NoError(t, env.DB.DB.Create(&models.Campaign{
				UUID:             uuid.New(),
				Name:             "uses rejected template",
				WhatsAppNumberID: number.ID,
				TemplateID:       tpl.ID,
				Status:           models.CampaignStatusFailed,
			}).Error)

			_, err = env.Template.UpdateTemplate(ctx, &dto.UpdateTemplateRequest{ID: tpl.ID, Body: utils.ToPtr("Changed")}, testMetadata())
			assert.True(t, businessflow.IsTemplateInUse(err))
			assert.True(t, businessflow.IsConflict(err))
		})
	})
}
