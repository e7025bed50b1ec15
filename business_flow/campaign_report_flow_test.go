package businessflow_test

import (
	"bytes"
	"fmt"
	"testing"

	businessflow "github.com/amirphl/Orochi-WhatsApp/business_flow"
	"github.com/amirphl/Orochi-WhatsApp/models"
	testingutil "github.com/amirphl/Orochi-WhatsApp/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestExportCampaignReport(t *testing.T) {
	withFlowEnv(t, func(env *flowEnv) {
		ctx := testingutil.CreateTestContext()

		t.Run("Workbook", func(t *testing.T) {
			campaign, logs, err := env.Fixtures.CreateCampaignWithLogs(models.CampaignStatusProcessing,
				models.MessageLogStatusPending,
				models.MessageLogStatusSent,
				models.MessageLogStatusDelivered,
				models.MessageLogStatusFailed,
			)
			require.NoError(t, err)

			data, filename, err := env.Report.ExportCampaignReport(ctx, campaign.ID)
			require.NoError(t, err)
			assert.Equal(t, fmt.Sprintf("campaign-%d-report.xlsx", campaign.ID), filename)

			xl, err := excelize.OpenReader(bytes.NewReader(data))
			require.NoError(t, err)
			defer func() { _ = xl.Close() }()

			assert.Equal(t, []string{"Summary", "Messages"}, xl.GetSheetList())

			summary, err := xl.GetRows("Summary")
			require.NoError(t, err)
			require.Len(t, summary, 13)
			assert.Equal(t, []string{"Metric", "Value"}, summary[0])
			assert.Equal(t, []string{"Campaign ID", fmt.Sprint(campaign.ID)}, summary[1])
			assert.Equal(t, []string{"Status", "PROCESSING"}, summary[2])
			assert.Equal(t, []string{"Total messages", "4"}, summary[3])
			assert.Equal(t, []string{"Pending", "1"}, summary[4])
			assert.Equal(t, []string{"Sent", "2"}, summary[5])
			assert.Equal(t, []string{"Delivered", "1"}, summary[6])
			assert.Equal(t, []string{"Failed", "1"}, summary[8])

			messages, err := xl.GetRows("Messages")
			require.NoError(t, err)
			require.Len(t, messages, len(logs)+1)
			assert.Equal(t, "Provider Message ID", messages[0][4])
			assert.Equal(t, fmt.Sprint(logs[0].ID), messages[1][0])
			assert.Equal(t, "PENDING", messages[1][3])
			assert.Equal(t, "FAILED", messages[4][3])
			assert.Equal(t, "(#131026) Message undeliverable", messages[4][5])
			assert.Equal(t, fmt.Sprintf("wamid.%d.1", campaign.ID), messages[2][4])
		})

		t.Run("UnknownCampaign", func(t *testing.T) {
			_, _, err := env.Report.ExportCampaignReport(ctx, 999999)
			assert.True(t, businessflow.IsCampaignNotFound(err))
		})
	})
}
