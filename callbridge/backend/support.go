package backend

import (
	"context"
	"fmt"
	"math"
	"slices"
	"time"
)

type Outage struct {
	Area         string `json:"area"`
	Issue        string `json:"issue"`
	StartTime    string `json:"start_time"`
	EstimatedEnd string `json:"estimated_end"`
}

type NetworkStatus struct {
	Region             string   `json:"region"`
	Status             string   `json:"status"`
	CoveragePercentage int      `json:"coverage_percentage"`
	ActiveOutages      []Outage `json:"active_outages"`
	LastUpdated        string   `json:"last_updated"`
}

type Ticket struct {
	TicketID            string `json:"ticket_id"`
	UserID              string `json:"user_id"`
	IssueDescription    string `json:"issue_description"`
	Priority            string `json:"priority"`
	Status              string `json:"status"`
	CreatedAt           string `json:"created_at"`
	EstimatedResolution string `json:"estimated_resolution"`
}

type SpeedTest struct {
	UserID       string  `json:"user_id"`
	DownloadMbps float64 `json:"download_speed_mbps"`
	UploadMbps   float64 `json:"upload_speed_mbps"`
	PingMs       int     `json:"ping_ms"`
	TestServer   string  `json:"test_server"`
	TestedAt     string  `json:"test_timestamp"`
}

// NetworkStatus reports coverage and outages for a region.
func (s *Service) NetworkStatus(ctx context.Context, region string) (NetworkStatus, error) {
	if !slices.Contains(s.regions, region) {
		return NetworkStatus{}, fmt.Errorf("%w: %s", ErrInvalidRegion, region)
	}
	now := s.now()
	r := rng("network", region, now.Format(time.DateOnly))
	out := NetworkStatus{
		Region:             region,
		Status:             "operational",
		CoveragePercentage: 90 + r.IntN(10),
		ActiveOutages:      []Outage{},
		LastUpdated:        now.Format(time.RFC3339),
	}
	if r.IntN(2) == 0 {
		out.Status = "maintenance"
		out.ActiveOutages = append(out.ActiveOutages, Outage{
			Area:         region + " Test Bölgesi",
			Issue:        "Planlı bakım",
			StartTime:    now.Format(time.RFC3339),
			EstimatedEnd: now.Add(4 * time.Hour).Format(time.RFC3339),
		})
	}
	return out, nil
}

// CreateFaultTicket opens a support ticket.
func (s *Service) CreateFaultTicket(ctx context.Context, userID, description string) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.customer(userID); err != nil {
		return Ticket{}, err
	}
	now := s.now()
	t := Ticket{
		TicketID:            fmt.Sprintf("T-%05d", 10000+len(s.tickets)),
		UserID:              userID,
		IssueDescription:    description,
		Priority:            []string{"low", "medium", "high"}[rng("ticket", description).IntN(3)],
		Status:              "open",
		CreatedAt:           now.Format(time.RFC3339),
		EstimatedResolution: now.Add(24 * time.Hour).Format(time.RFC3339),
	}
	s.tickets[t.TicketID] = t
	return t, nil
}

// FaultTicketStatus returns a previously created ticket.
func (s *Service) FaultTicketStatus(ctx context.Context, ticketID string) (Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[ticketID]
	if !ok {
		return Ticket{}, fmt.Errorf("%w: %s", ErrTicketNotFound, ticketID)
	}
	return t, nil
}

// SpeedTest simulates a line speed measurement.
func (s *Service) SpeedTest(ctx context.Context, userID string) (SpeedTest, error) {
	if _, err := s.lookup(userID); err != nil {
		return SpeedTest{}, err
	}
	now := s.now()
	r := rng("speed", userID, now.Format(time.DateOnly))
	return SpeedTest{
		UserID:       userID,
		DownloadMbps: math.Round((10+r.Float64()*90)*10) / 10,
		UploadMbps:   math.Round((5+r.Float64()*45)*10) / 10,
		PingMs:       10 + r.IntN(40),
		TestServer:   "Istanbul-Mock",
		TestedAt:     now.Format(time.RFC3339),
	}, nil
}
