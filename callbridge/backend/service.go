package backend

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	ErrInvalidUser    = errors.New("user not found")
	ErrInvalidPackage = errors.New("package not found")
	ErrInvalidRegion  = errors.New("region not found")
	ErrInvalidMethod  = errors.New("invalid payment method")
	ErrTicketNotFound = errors.New("ticket not found")
)

const (
	minUserID = 1000
	maxUserID = 9999
)

// Package is a tariff offered to customers.
type Package struct {
	Name       string   `json:"name"`
	MonthlyFee float64  `json:"monthly_fee"`
	Features   Features `json:"features"`
}

type Features struct {
	InternetGB           int `json:"internet_gb"`
	VoiceMinutes         int `json:"voice_minutes"`
	SMSCount             int `json:"sms_count"`
	InternationalMinutes int `json:"international_minutes,omitempty"`
}

type customer struct {
	ID       string
	Name     string
	Package  string
	Autopay  bool
	Roaming  bool
	Active   bool
	Contacts map[string]string
}

// Service is an in-memory telecom backend. Data is derived deterministically
// from the user id so repeated calls return stable values.
type Service struct {
	mu        sync.RWMutex
	customers map[string]*customer
	packages  map[string]Package
	order     []string
	regions   []string
	tickets   map[string]Ticket
	started   time.Time
	now       func() time.Time
	logger    zerolog.Logger
}

// NewService creates the backend with its package catalog.
func NewService(logger zerolog.Logger) *Service {
	s := &Service{
		customers: make(map[string]*customer),
		packages:  make(map[string]Package),
		tickets:   make(map[string]Ticket),
		regions:   []string{"Marmara", "Ege", "Akdeniz", "İç Anadolu", "Karadeniz", "Doğu Anadolu", "Güneydoğu Anadolu"},
		now:       time.Now,
		logger:    logger.With().Str("component", "backend").Logger(),
	}
	for _, p := range []Package{
		{Name: "Mega İnternet", MonthlyFee: 69.50, Features: Features{InternetGB: 50, VoiceMinutes: 1000, SMSCount: 500}},
		{Name: "Süper Konuşma", MonthlyFee: 59.90, Features: Features{InternetGB: 25, VoiceMinutes: 2000, SMSCount: 1000}},
		{Name: "Full Paket", MonthlyFee: 89.90, Features: Features{InternetGB: 100, VoiceMinutes: 3000, SMSCount: 1000}},
		{Name: "Öğrenci Dostu Tarife", MonthlyFee: 49.90, Features: Features{InternetGB: 30, VoiceMinutes: 500, SMSCount: 250}},
		{Name: "Esnaf Paketi", MonthlyFee: 79.90, Features: Features{InternetGB: 75, VoiceMinutes: 1500, SMSCount: 750}},
		{Name: "Yurt Dışı Avantaj", MonthlyFee: 99.90, Features: Features{InternetGB: 60, VoiceMinutes: 1000, SMSCount: 500, InternationalMinutes: 200}},
	} {
		s.packages[p.Name] = p
		s.order = append(s.order, p.Name)
	}
	s.started = s.now()
	return s
}

// customer returns the record for id, creating it on first use.
// Caller must hold s.mu for writing.
func (s *Service) customer(id string) (*customer, error) {
	if c, ok := s.customers[id]; ok {
		return c, nil
	}
	n, err := strconv.Atoi(id)
	if err != nil || n < minUserID || n > maxUserID {
		return nil, fmt.Errorf("%w: %s", ErrInvalidUser, id)
	}
	c := &customer{
		ID:       id,
		Name:     fmt.Sprintf("Müşteri %d", n),
		Package:  s.order[n%4],
		Active:   true,
		Contacts: map[string]string{"email": fmt.Sprintf("musteri%d@example.com", n), "phone": fmt.Sprintf("+9055512%04d", n)},
	}
	s.customers[id] = c
	return c, nil
}

func (s *Service) lookup(id string) (*customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.customer(id)
}

// rng returns a generator seeded from the given keys.
func rng(keys ...string) *rand.Rand {
	h := fnv.New64a()
	for _, k := range keys {
		_, _ = h.Write([]byte(k))
	}
	sum := h.Sum64()
	return rand.New(rand.NewPCG(sum, sum>>1))
}

func amount(r *rand.Rand) float64 {
	return float64(int((50+r.Float64()*100)*100)) / 100
}

func shortID(prefix string) string {
	id := uuid.New().String()
	return prefix + "-" + id[:8]
}
