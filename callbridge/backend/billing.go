package backend

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type Bill struct {
	BillID   string  `json:"bill_id"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
	BillDate string  `json:"bill_date"`
	DueDate  string  `json:"due_date,omitempty"`
	PaidDate string  `json:"paid_date,omitempty"`
	Status   string  `json:"status"`
}

type BillHistory struct {
	UserID          string  `json:"user_id"`
	Bills           []Bill  `json:"bills"`
	TotalCount      int     `json:"total_count"`
	TotalAmountPaid float64 `json:"total_amount_paid"`
}

type Payment struct {
	TransactionID string  `json:"transaction_id"`
	BillID        string  `json:"bill_id"`
	Amount        float64 `json:"amount"`
	Method        string  `json:"method"`
	Status        string  `json:"status"`
	Date          string  `json:"date"`
}

type AutopaySettings struct {
	UserID          string `json:"user_id"`
	Enabled         bool   `json:"autopay_enabled"`
	PaymentMethod   string `json:"payment_method,omitempty"`
	NextPaymentDate string `json:"next_payment_date,omitempty"`
}

const maxBillHistory = 12

var billStatuses = []string{"paid", "unpaid", "overdue"}

// CurrentBill returns the open bill of the current period.
func (s *Service) CurrentBill(ctx context.Context, userID string) (Bill, error) {
	if _, err := s.lookup(userID); err != nil {
		return Bill{}, err
	}
	now := s.now()
	r := rng("current", userID, now.Format("2006-01"))
	return Bill{
		BillID:   fmt.Sprintf("F-%d-%s", now.Year(), userID),
		Amount:   amount(r),
		Currency: "TRY",
		BillDate: now.Format(time.DateOnly),
		DueDate:  now.AddDate(0, 0, 15).Format(time.DateOnly),
		Status:   billStatuses[r.IntN(len(billStatuses))],
	}, nil
}

// BillHistory returns up to limit past bills, newest first.
func (s *Service) BillHistory(ctx context.Context, userID string, limit int) (BillHistory, error) {
	if _, err := s.lookup(userID); err != nil {
		return BillHistory{}, err
	}
	limit = max(0, min(limit, maxBillHistory))

	now := s.now()
	out := BillHistory{UserID: userID, Bills: make([]Bill, 0, limit)}
	for i := range limit {
		date := now.AddDate(0, 0, -30*(i+1))
		r := rng("bill", userID, date.Format("2006-01"))
		b := Bill{
			BillID:   fmt.Sprintf("F-%d-%02d-%s", date.Year(), int(date.Month()), userID),
			Amount:   amount(r),
			Currency: "TRY",
			BillDate: date.Format(time.DateOnly),
			PaidDate: date.AddDate(0, 0, 1+r.IntN(10)).Format(time.DateOnly),
			Status:   "paid",
		}
		out.Bills = append(out.Bills, b)
		out.TotalAmountPaid += b.Amount
	}
	out.TotalCount = len(out.Bills)
	return out, nil
}

// PayBill settles a bill with the given method.
func (s *Service) PayBill(ctx context.Context, billID, method string) (Payment, error) {
	switch method {
	case "credit_card", "bank_transfer":
	default:
		return Payment{}, fmt.Errorf("%w: %s", ErrInvalidMethod, method)
	}
	return Payment{
		TransactionID: strings.ToUpper(shortID("TXN")),
		BillID:        billID,
		Amount:        amount(rng("pay", billID)),
		Method:        method,
		Status:        "completed",
		Date:          s.now().Format(time.RFC3339),
	}, nil
}

// PaymentHistory lists the last payments of a customer.
func (s *Service) PaymentHistory(ctx context.Context, userID string) ([]Payment, error) {
	if _, err := s.lookup(userID); err != nil {
		return nil, err
	}
	r := rng("payments", userID)
	now := s.now()
	n := 3 + r.IntN(6)
	payments := make([]Payment, 0, n)
	for i := range n {
		date := now.AddDate(0, 0, -(30*i + 1 + r.IntN(10)))
		payments = append(payments, Payment{
			TransactionID: fmt.Sprintf("TXN-%s-%02d", userID, i),
			BillID:        fmt.Sprintf("F-%d-%02d-%s", date.Year(), int(date.Month()), userID),
			Amount:        amount(r),
			Method:        []string{"credit_card", "bank_transfer"}[r.IntN(2)],
			Status:        "completed",
			Date:          date.Format(time.RFC3339),
		})
	}
	return payments, nil
}

// SetupAutopay toggles automatic payment.
func (s *Service) SetupAutopay(ctx context.Context, userID string, enabled bool) (AutopaySettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.customer(userID)
	if err != nil {
		return AutopaySettings{}, err
	}
	c.Autopay = enabled
	out := AutopaySettings{UserID: userID, Enabled: enabled}
	if enabled {
		out.PaymentMethod = "credit_card_ending_1234"
		out.NextPaymentDate = s.now().AddDate(0, 0, 15).Format(time.DateOnly)
	}
	return out, nil
}
