package businessflow

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/medipay/app/dto"
	"github.com/amirphl/medipay/models"
	"github.com/amirphl/medipay/utils"
	"github.com/xuri/excelize/v2"
)

const (
	defaultExportMaxRows = 10000
	exportSheetName      = "orders"
	exportTimeLayout     = "2006-01-02 15:04:05"
)

var exportHeader = []any{
	"Order No", "Order UUID", "User ID", "Appointment ID", "Order Type", "Amount", "Currency",
	"Status", "Payment Method", "Payment Time", "Expire Time", "Description", "Created At",
}

// ExportOrders renders the filtered orders as a single sheet workbook, newest first
func (p *PaymentFlowImpl) ExportOrders(ctx context.Context, caller Caller, req *dto.ExportPaymentOrdersRequest) (string, []byte, error) {
	if !caller.IsAdmin() {
		return "", nil, NewBusinessError("EXPORT_ORDERS_FAILED", "Only admins may export orders", ErrForbidden)
	}
	filter, err := orderFilter(caller, req.UserID, req.Status, req.OrderType, req.StartDate, req.EndDate)
	if err != nil {
		return "", nil, NewBusinessError("EXPORT_ORDERS_FAILED", "Invalid export filter", err)
	}

	limit := p.paymentCfg.ExportMaxRows
	if limit <= 0 {
		limit = defaultExportMaxRows
	}
	orders, err := p.orderRepo.ByFilter(ctx, filter, "created_at DESC, id DESC", limit, 0)
	if err != nil {
		return "", nil, NewBusinessError("EXPORT_ORDERS_FAILED", "Failed to load orders", err)
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	if err := xl.SetSheetName(xl.GetSheetName(0), exportSheetName); err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to prepare Excel sheet", err)
	}
	if err := xl.SetSheetRow(exportSheetName, "A1", &exportHeader); err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel header", err)
	}

	for ri, o := range orders {
		record := exportRow(o)
		cellRef, _ := excelize.CoordinatesToCellName(1, ri+2)
		if err := xl.SetSheetRow(exportSheetName, cellRef, &record); err != nil {
			return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel row", err)
		}
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}
	filename := fmt.Sprintf("payment_orders_%s.xlsx", utils.UTCNow().Format("20060102_150405"))
	return filename, buf.Bytes(), nil
}

func exportRow(o *models.PaymentOrder) []any {
	method := ""
	if o.PaymentMethod != nil {
		method = o.PaymentMethod.String()
	}
	appointment := ""
	if o.AppointmentID != nil {
		appointment = o.AppointmentID.String()
	}
	return []any{
		o.OrderNo,
		o.UUID.String(),
		o.UserID.String(),
		appointment,
		string(o.OrderType),
		o.Amount.StringFixed(2),
		o.Currency,
		string(o.Status),
		method,
		formatExportTime(o.PaymentTime),
		formatExportTime(&o.ExpireTime),
		utils.Deref(o.Description),
		formatExportTime(&o.CreatedAt),
	}
}

func formatExportTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(exportTimeLayout)
}
