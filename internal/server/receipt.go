package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	authdomain "github.com/smallbiznis/patronage/internal/auth/domain"
	"github.com/smallbiznis/patronage/internal/authorization"
	"github.com/smallbiznis/patronage/internal/money"
	orderdomain "github.com/smallbiznis/patronage/internal/order/domain"
	"github.com/smallbiznis/patronage/internal/providers/pdf"
	transactiondomain "github.com/smallbiznis/patronage/internal/transaction/domain"
	"go.uber.org/zap"
)

const receiptDateLayout = "January 2, 2006"

// RenderReceipt streams a PDF receipt for a charged order. Admins of the
// payer and admins of the recipient's host can download it.
func (s *Server) RenderReceipt(c *gin.Context) {
	ctx := c.Request.Context()
	user := currentUser(c)
	if user == nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}
	id, err := parseIDParam(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	order, err := s.orderSvc.Get(ctx, id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.authorizeReceipt(ctx, user, order); err != nil {
		AbortWithError(c, err)
		return
	}
	if order.Status != orderdomain.StatusPaid && order.Status != orderdomain.StatusActive {
		AbortWithError(c, newValidationError("status", "not_charged", "receipts are only available for paid orders"))
		return
	}

	data, err := s.receiptData(ctx, order)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	doc, err := s.receipts.GenerateReceipt(ctx, data)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="receipt-%s.pdf"`, data.ReceiptNumber))
	c.Status(http.StatusOK)
	c.Header("Content-Type", "application/pdf")
	if _, err := io.Copy(c.Writer, doc); err != nil {
		s.log.Warn("failed to stream receipt", zap.String("order_id", order.ID.String()), zap.Error(err))
	}
}

func (s *Server) authorizeReceipt(ctx context.Context, user *authdomain.User, order *orderdomain.Order) error {
	admin, err := s.authzSvc.IsAdmin(ctx, user.CollectiveID, &order.FromCollectiveID)
	if err != nil || admin {
		return err
	}
	collective, err := s.collectiveSvc.GetByID(ctx, order.CollectiveID)
	if err != nil {
		return err
	}
	hostID, err := s.collectiveSvc.HostCollectiveID(ctx, collective)
	if err != nil {
		return err
	}
	hostAdmin, err := s.authzSvc.IsAdmin(ctx, user.CollectiveID, hostID)
	if err != nil {
		return err
	}
	if !hostAdmin {
		return authorization.ErrForbidden
	}
	return nil
}

func (s *Server) receiptData(ctx context.Context, order *orderdomain.Order) (pdf.ReceiptData, error) {
	from, err := s.collectiveSvc.GetByID(ctx, order.FromCollectiveID)
	if err != nil {
		return pdf.ReceiptData{}, err
	}
	collective, err := s.collectiveSvc.GetByID(ctx, order.CollectiveID)
	if err != nil {
		return pdf.ReceiptData{}, err
	}

	data := pdf.ReceiptData{
		ReceiptNumber:  order.ID.String(),
		DatePaid:       order.UpdatedAt.UTC().Format(receiptDateLayout),
		FromName:       from.Name,
		CollectiveName: collective.Name,
		Description:    order.Description,
		Quantity:       int(order.Quantity),
	}
	if order.ProcessedAt != nil {
		data.DatePaid = order.ProcessedAt.UTC().Format(receiptDateLayout)
	}

	hostID, err := s.collectiveSvc.HostCollectiveID(ctx, collective)
	if err != nil {
		return pdf.ReceiptData{}, err
	}
	if hostID != nil {
		host, err := s.collectiveSvc.GetByID(ctx, *hostID)
		if err != nil {
			return pdf.ReceiptData{}, err
		}
		data.HostName = host.Name
	}

	if order.CreatedByUserID != nil {
		buyer, err := s.authsvc.GetByID(ctx, *order.CreatedByUserID)
		if err != nil {
			return pdf.ReceiptData{}, err
		}
		if buyer != nil {
			data.FromEmail = buyer.Email
		}
	}

	// The credit written when the order was charged numbers the receipt.
	transactions, err := s.transactions.ListByOrder(ctx, s.db, order.ID)
	if err != nil {
		return pdf.ReceiptData{}, err
	}
	for _, tx := range transactions {
		if tx.Type == transactiondomain.TypeCredit && !tx.IsRefund {
			data.ReceiptNumber = tx.ID.String()
			data.DatePaid = tx.CreatedAt.UTC().Format(receiptDateLayout)
			break
		}
	}

	var tax int64
	if order.TaxAmount != nil {
		tax = *order.TaxAmount
	}
	quantity := order.Quantity
	if quantity < 1 {
		quantity = 1
	}
	subtotal := order.TotalAmount - tax
	data.UnitPrice = money.Format(subtotal/quantity, order.Currency, 2)
	data.Subtotal = money.Format(subtotal, order.Currency, 2)
	data.Total = money.Format(order.TotalAmount, order.Currency, 2)
	if tax > 0 {
		data.TaxAmount = money.Format(tax, order.Currency, 2)
		data.TaxLabel = taxLabel(order)
	}
	return data, nil
}

func taxLabel(order *orderdomain.Order) string {
	info, ok := order.Data[orderdomain.DataTax].(map[string]any)
	if !ok {
		return "Tax"
	}
	id, _ := info["id"].(string)
	if id == "" {
		id = "Tax"
	}
	if pct, ok := info["percentage"].(float64); ok {
		return fmt.Sprintf("%s (%s%%)", strings.ToUpper(id), strings.TrimSuffix(strings.TrimSuffix(fmt.Sprintf("%.2f", pct), "0"), ".0"))
	}
	return strings.ToUpper(id)
}
