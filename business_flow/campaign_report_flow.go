package businessflow

import (
	"context"
	"fmt"

	"github.com/amirphl/Orochi-WhatsApp/models"
	"github.com/amirphl/Orochi-WhatsApp/repository"
	"github.com/amirphl/Orochi-WhatsApp/utils"
	"github.com/xuri/excelize/v2"
)

const reportPageSize = 1000

// CampaignReportFlow exports a campaign and its messages as an XLSX workbook
type CampaignReportFlow interface {
	ExportCampaignReport(ctx context.Context, campaignID uint) ([]byte, string, error)
}

type CampaignReportFlowImpl struct {
	messageLogRepo repository.MessageLogRepository
	stats          *CampaignStatistics
}

func NewCampaignReportFlow(messageLogRepo repository.MessageLogRepository, stats *CampaignStatistics) CampaignReportFlow {
	return &CampaignReportFlowImpl{
		messageLogRepo: messageLogRepo,
		stats:          stats,
	}
}

// ExportCampaignReport returns the workbook bytes and a suggested file name.
// Sheet "Summary" holds the counters, sheet "Messages" one row per message log.
func (f *CampaignReportFlowImpl) ExportCampaignReport(ctx context.Context, campaignID uint) ([]byte, string, error) {
	stats, err := f.stats.Recompute(ctx, campaignID)
	if err != nil {
		if IsCampaignNotFound(err) {
			return nil, "", NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign not found", err)
		}
		return nil, "", NewBusinessError("CAMPAIGN_REPORT_FAILED", "Failed to build campaign report", err)
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	summary := "Summary"
	if err := xl.SetSheetName(xl.GetSheetName(0), summary); err != nil {
		return nil, "", NewBusinessError("CAMPAIGN_REPORT_FAILED", "Failed to build campaign report", err)
	}

	headerStyle, err := xl.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return nil, "", NewBusinessError("CAMPAIGN_REPORT_FAILED", "Failed to build campaign report", err)
	}

	rows := [][]any{
		{"Metric", "Value"},
		{"Campaign ID", stats.CampaignID},
		{"Status", stats.Status},
		{"Total messages", stats.TotalMessages},
		{"Pending", stats.Pending},
		{"Sent", stats.Sent},
		{"Delivered", stats.Delivered},
		{"Read", stats.Read},
		{"Failed", stats.Failed},
		{"Sent rate (%)", stats.SentRate},
		{"Delivered rate (%)", stats.DeliveredRate},
		{"Read rate (%)", stats.ReadRate},
		{"Failed rate (%)", stats.FailedRate},
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		_ = xl.SetSheetRow(summary, cell, &row)
	}
	_ = xl.SetCellStyle(summary, "A1", "B1", headerStyle)
	_ = xl.SetColWidth(summary, "A", "A", 22)

	messages := "Messages"
	if _, err := xl.NewSheet(messages); err != nil {
		return nil, "", NewBusinessError("CAMPAIGN_REPORT_FAILED", "Failed to build campaign report", err)
	}
	header := []any{"ID", "Contact ID", "Mobile", "Status", "Provider Message ID", "Error", "Retry Count", "Sent At", "Delivered At", "Read At", "Failed At", "Content"}
	_ = xl.SetSheetRow(messages, "A1", &header)
	_ = xl.SetCellStyle(messages, "A1", "L1", headerStyle)

	rowIdx := 2
	filter := models.MessageLogFilter{CampaignID: &campaignID}
	for offset := 0; ; offset += reportPageSize {
		logs, err := f.messageLogRepo.ByFilter(ctx, filter, "id ASC", reportPageSize, offset)
		if err != nil {
			return nil, "", NewBusinessError("CAMPAIGN_REPORT_FAILED", "Failed to read campaign messages", err)
		}
		for _, l := range logs {
			record := []any{
				l.ID,
				l.ContactID,
				l.Mobile,
				l.Status.String(),
				utils.Deref(l.ProviderMessageID),
				utils.Deref(l.ErrorMessage),
				l.RetryCount,
				utils.Deref(utils.FormatTimePtr(l.SentAt)),
				utils.Deref(utils.FormatTimePtr(l.DeliveredAt)),
				utils.Deref(utils.FormatTimePtr(l.ReadAt)),
				utils.Deref(utils.FormatTimePtr(l.FailedAt)),
				l.Content,
			}
			cell, _ := excelize.CoordinatesToCellName(1, rowIdx)
			_ = xl.SetSheetRow(messages, cell, &record)
			rowIdx++
		}
		if len(logs) < reportPageSize {
			break
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return nil, "", NewBusinessError("CAMPAIGN_REPORT_FAILED", "Failed to write campaign report", err)
	}

	return buf.Bytes(), fmt.Sprintf("campaign-%d-report.xlsx", campaignID), nil
}
