package businessflow_test

import (
	"testing"

	"github.com/amirphl/Orochi-WhatsApp/app/dto"
	"github.com/amirphl/Orochi-WhatsApp/app/services"
	businessflow "github.com/amirphl/Orochi-WhatsApp/business_flow"
	"github.com/amirphl/Orochi-WhatsApp/models"
	testingutil "github.com/amirphl/Orochi-WhatsApp/testing"
	"github.com/amirphl/Orochi-WhatsApp/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhatsAppNumberFlow(t *testing.T) {
	withFlowEnv(t, func(env *flowEnv) {
		ctx := testingutil.CreateTestContext()

		created, err := env.Number.CreateNumber(ctx, &dto.CreateWhatsAppNumberRequest{
			PhoneNumberID:      " 106540352242922 ",
			AccessToken:        "EAAG-secret-token",
			DisplayPhoneNumber: "+15550100",
		}, testMetadata())
		require.NoError(t, err)
		assert.Equal(t, "106540352242922", created.PhoneNumberID)
		assert.True(t, created.IsActive)
		assert.Nil(t, created.LastVerifiedAt)

		t.Run("DuplicatePhoneNumberID", func(t *testing.T) {
			_, err := env.Number.CreateNumber(ctx, &dto.CreateWhatsAppNumberRequest{
				PhoneNumberID: "106540352242922", AccessToken: "x", DisplayPhoneNumber: "+15550101",
			}, testMetadata())
			assert.True(t, businessflow.IsPhoneNumberIDExists(err))
		})

		t.Run("Verify", func(t *testing.T) {
			verified, err := env.Number.VerifyNumber(ctx, created.ID, testMetadata())
			require.NoError(t, err)
			assert.NotNil(t, verified.LastVerifiedAt)
			assert.Equal(t, "Mock Sender", utils.Deref(verified.DisplayName))
			assert.Equal(t, "+1 555-0100", verified.DisplayPhoneNumber)

			stored, err := env.NumberRepo.ByID(ctx, created.ID)
			require.NoError(t, err)
			assert.NotNil(t, stored.LastVerifiedAt)
		})

		t.Run("VerifyRejectedCredential", func(t *testing.T) {
			other, err := env.Fixtures.CreateWhatsAppNumber(true)
			require.NoError(t, err)
			env.Client.FailFor(other.PhoneNumberID, &services.ProviderError{StatusCode: 401, Code: 190, Message: "Invalid OAuth access token"})

			_, err = env.Number.VerifyNumber(ctx, other.ID, testMetadata())
			require.Error(t, err)

			audits, err := env.AuditRepo.ByFilter(ctx, models.AuditLogFilter{
				Action:  utils.ToPtr(models.AuditActionWhatsAppNumberVerified),
				Success: utils.ToPtr(false),
			}, "", 0, 0)
			require.NoError(t, err)
			assert.Len(t, audits, 1)
		})

		t.Run("UpdateRotatesTokenAndDeactivates", func(t *testing.T) {
			updated, err := env.Number.UpdateNumber(ctx, &dto.UpdateWhatsAppNumberRequest{
				ID:          created.ID,
				AccessToken: utils.ToPtr("EAAG-rotated"),
				IsActive:    utils.ToPtr(false),
			}, testMetadata())
			require.NoError(t, err)
			assert.False(t, updated.IsActive)

			stored, err := env.NumberRepo.ByID(ctx, created.ID)
			require.NoError(t, err)
			assert.Equal(t, "EAAG-rotated", stored.AccessToken)

			active, err := env.Number.ListNumbers(ctx, &dto.ListWhatsAppNumbersRequest{IsActive: utils.ToPtr(true)})
			require.NoError(t, err)
			for _, n := range active.Items {
				assert.NotEqual(t, created.ID, n.ID)
			}
		})

		t.Run("NotFound", func(t *testing.T) {
			_, err := env.Number.GetNumber(ctx, 4040)
			assert.True(t, businessflow.IsWhatsAppNumberNotFound(err))
		})
	})
}
