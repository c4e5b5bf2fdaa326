package backend

import (
	"context"
	"fmt"
	"math"
	"time"
)

type CustomerPackage struct {
	Package
	UserID         string `json:"user_id"`
	ActivationDate string `json:"activation_date"`
	RenewalDate    string `json:"renewal_date"`
}

type Quotas struct {
	UserID                string  `json:"user_id"`
	InternetRemainingGB   float64 `json:"internet_remaining_gb"`
	VoiceRemainingMinutes int     `json:"voice_remaining_minutes"`
	SMSRemaining          int     `json:"sms_remaining"`
	PeriodEnd             string  `json:"period_end"`
}

type PackageChange struct {
	ChangeID      string  `json:"change_id"`
	FromPackage   string  `json:"from_package"`
	ToPackage     string  `json:"to_package"`
	EffectiveDate string  `json:"effective_date"`
	FeeDifference float64 `json:"fee_difference"`
	Status        string  `json:"status"`
}

type PackageDetails struct {
	Package
	SetupFee        float64 `json:"setup_fee"`
	ContractMonths  int     `json:"contract_duration"`
	CancellationFee float64 `json:"cancellation_fee"`
}

type RoamingSettings struct {
	UserID      string  `json:"user_id"`
	Enabled     bool    `json:"roaming_enabled"`
	DailyFee    float64 `json:"daily_fee,omitempty"`
	DataPackage string  `json:"data_package,omitempty"`
}

func firstOfNextMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
}

// CustomerPackage returns the active tariff of a customer.
func (s *Service) CustomerPackage(ctx context.Context, userID string) (CustomerPackage, error) {
	c, err := s.lookup(userID)
	if err != nil {
		return CustomerPackage{}, err
	}
	now := s.now()
	return CustomerPackage{
		Package:        s.packages[c.Package],
		UserID:         userID,
		ActivationDate: time.Date(now.Year(), 1, 1, 0, 0, 0, 0, now.Location()).Format(time.DateOnly),
		RenewalDate:    firstOfNextMonth(now).Format(time.DateOnly),
	}, nil
}

// RemainingQuotas reports what is left of the current period.
func (s *Service) RemainingQuotas(ctx context.Context, userID string) (Quotas, error) {
	c, err := s.lookup(userID)
	if err != nil {
		return Quotas{}, err
	}
	now := s.now()
	f := s.packages[c.Package].Features
	r := rng("quota", userID, now.Format(time.DateOnly))
	return Quotas{
		UserID:                userID,
		InternetRemainingGB:   math.Round(float64(f.InternetGB)*(0.3+r.Float64()*0.6)*10) / 10,
		VoiceRemainingMinutes: int(float64(f.VoiceMinutes) * (0.4 + r.Float64()*0.4)),
		SMSRemaining:          int(float64(f.SMSCount) * (0.5 + r.Float64()*0.4)),
		PeriodEnd:             firstOfNextMonth(now).AddDate(0, 0, -1).Format(time.DateOnly),
	}, nil
}

// AvailablePackages lists the catalog in a stable order.
func (s *Service) AvailablePackages(ctx context.Context) []Package {
	out := make([]Package, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.packages[name])
	}
	return out
}

// PackageDetails returns contract terms for one package.
func (s *Service) PackageDetails(ctx context.Context, name string) (PackageDetails, error) {
	p, ok := s.packages[name]
	if !ok {
		return PackageDetails{}, fmt.Errorf("%w: %s", ErrInvalidPackage, name)
	}
	return PackageDetails{Package: p, ContractMonths: 24, CancellationFee: 50}, nil
}

// ChangePackage schedules a tariff change for the next period.
func (s *Service) ChangePackage(ctx context.Context, userID, name string) (PackageChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.customer(userID)
	if err != nil {
		return PackageChange{}, err
	}
	next, ok := s.packages[name]
	if !ok {
		return PackageChange{}, fmt.Errorf("%w: %s", ErrInvalidPackage, name)
	}
	prev := s.packages[c.Package]
	c.Package = name
	return PackageChange{
		ChangeID:      shortID("CHG"),
		FromPackage:   prev.Name,
		ToPackage:     next.Name,
		EffectiveDate: firstOfNextMonth(s.now()).Format(time.DateOnly),
		FeeDifference: math.Round((next.MonthlyFee-prev.MonthlyFee)*100) / 100,
		Status:        "scheduled",
	}, nil
}

// EnableRoaming toggles roaming on a line.
func (s *Service) EnableRoaming(ctx context.Context, userID string, enabled bool) (RoamingSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.customer(userID)
	if err != nil {
		return RoamingSettings{}, err
	}
	c.Roaming = enabled
	out := RoamingSettings{UserID: userID, Enabled: enabled}
	if enabled {
		out.DailyFee = 25
		out.DataPackage = "1GB/day"
	}
	return out, nil
}
