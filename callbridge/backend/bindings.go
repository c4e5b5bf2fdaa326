package backend

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	ports "github.com/ZanzyTHEbar/callbridge/callbridge/pipeline/ports"
)

// BindingPrefix is the namespace of every binding path served by Service.
const BindingPrefix = "backend."

// SystemHealth is the payload of getSystemHealth.
type SystemHealth struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime"`
	Customers  int    `json:"customers_cached"`
	OpenTicket int    `json:"open_tickets"`
}

// Health reports backend liveness.
func (s *Service) Health(ctx context.Context) SystemHealth {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SystemHealth{
		Status:     "healthy",
		Uptime:     s.now().Sub(s.started).Truncate(time.Second).String(),
		Customers:  len(s.customers),
		OpenTicket: len(s.tickets),
	}
}

// Bindings maps operation names to callables taking validated arguments.
func (s *Service) Bindings() map[string]ports.BackendFunc {
	return map[string]ports.BackendFunc{
		"getCurrentBill": func(ctx context.Context, args map[string]any) (any, error) {
			return s.CurrentBill(ctx, str(args, "user_id"))
		},
		"getBillHistory": func(ctx context.Context, args map[string]any) (any, error) {
			return s.BillHistory(ctx, str(args, "user_id"), num(args, "limit", 6))
		},
		"payBill": func(ctx context.Context, args map[string]any) (any, error) {
			return s.PayBill(ctx, str(args, "bill_id"), str(args, "method"))
		},
		"getPaymentHistory": func(ctx context.Context, args map[string]any) (any, error) {
			return s.PaymentHistory(ctx, str(args, "user_id"))
		},
		"setupAutopay": func(ctx context.Context, args map[string]any) (any, error) {
			return s.SetupAutopay(ctx, str(args, "user_id"), flag(args, "status"))
		},
		"getCustomerPackage": func(ctx context.Context, args map[string]any) (any, error) {
			return s.CustomerPackage(ctx, str(args, "user_id"))
		},
		"getRemainingQuotas": func(ctx context.Context, args map[string]any) (any, error) {
			return s.RemainingQuotas(ctx, str(args, "user_id"))
		},
		"getAvailablePackages": func(ctx context.Context, args map[string]any) (any, error) {
			return s.AvailablePackages(ctx), nil
		},
		"getPackageDetails": func(ctx context.Context, args map[string]any) (any, error) {
			return s.PackageDetails(ctx, str(args, "package_name"))
		},
		"changePackage": func(ctx context.Context, args map[string]any) (any, error) {
			return s.ChangePackage(ctx, str(args, "user_id"), str(args, "new_package_name"))
		},
		"enableRoaming": func(ctx context.Context, args map[string]any) (any, error) {
			return s.EnableRoaming(ctx, str(args, "user_id"), flag(args, "status"))
		},
		"checkNetworkStatus": func(ctx context.Context, args map[string]any) (any, error) {
			return s.NetworkStatus(ctx, str(args, "region"))
		},
		"createFaultTicket": func(ctx context.Context, args map[string]any) (any, error) {
			return s.CreateFaultTicket(ctx, str(args, "user_id"), str(args, "issue_description"))
		},
		"getFaultTicketStatus": func(ctx context.Context, args map[string]any) (any, error) {
			return s.FaultTicketStatus(ctx, str(args, "ticket_id"))
		},
		"testInternetSpeed": func(ctx context.Context, args map[string]any) (any, error) {
			return s.SpeedTest(ctx, str(args, "user_id"))
		},
		"getSystemHealth": func(ctx context.Context, args map[string]any) (any, error) {
			return s.Health(ctx), nil
		},
	}
}

// Resolve implements ports.Backend for paths of the form "backend.<op>".
func (s *Service) Resolve(path string) (ports.BackendFunc, bool) {
	op, ok := strings.CutPrefix(path, BindingPrefix)
	if !ok {
		return nil, false
	}
	fn, ok := s.Bindings()[op]
	if !ok {
		return nil, false
	}
	return s.logged(op, fn), true
}

// Operations lists the binding paths in lexical order.
func (s *Service) Operations() []string {
	ops := make([]string, 0, 16)
	for op := range s.Bindings() {
		ops = append(ops, BindingPrefix+op)
	}
	sort.Strings(ops)
	return ops
}

func (s *Service) logged(op string, fn ports.BackendFunc) ports.BackendFunc {
	return func(ctx context.Context, args map[string]any) (any, error) {
		start := time.Now()
		out, err := fn(ctx, args)
		ev := s.logger.Debug()
		if err != nil {
			ev = s.logger.Warn().Err(err)
		}
		ev.Str("op", op).Dur("duration", time.Since(start)).Msg("backend call")
		return out, err
	}
}

// Arguments arrive canonicalized by the validator; these helpers only
// unwrap the expected Go types.

func str(args map[string]any, key string) string {
	switch v := args[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func num(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case int64:
		return int(v)
	case int:
		return v
	case float64:
		return int(v)
	default:
		return def
	}
}

func flag(args map[string]any, key string) bool {
	v, _ := args[key].(bool)
	return v
}

var _ ports.Backend = (*Service)(nil)
