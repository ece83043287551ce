package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrUnknownService = errors.New("unknown service")

// AllowedDurations are the only service lengths the studio sells.
var AllowedDurations = []int{30, 60, 120, 180, 240}

// Service is one entry of the studio's service menu.
type Service struct {
	ID              string `yaml:"id" json:"id"`
	Label           string `yaml:"label" json:"label"`
	DurationMinutes int    `yaml:"duration_minutes" json:"duration_minutes"`
	DepositCents    int64  `yaml:"deposit_cents" json:"deposit_cents"`
	Description     string `yaml:"description" json:"description,omitempty"`
}

func (s Service) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// RequiresDeposit reports whether booking this service goes through checkout.
func (s Service) RequiresDeposit() bool {
	return s.DepositCents > 0
}

type Catalog struct {
	Currency string
	services []Service
	byID     map[string]Service
}

type file struct {
	Currency string    `yaml:"currency"`
	Services []Service `yaml:"services"`
}

// Default is the studio menu used when no catalog file is configured.
func Default() *Catalog {
	c, _ := New("usd", []Service{
		{ID: "consultation", Label: "Consultation", DurationMinutes: 30, Description: "Talk through placement, size and design."},
		{ID: "small", Label: "Small tattoo", DurationMinutes: 60, DepositCents: 5000},
		{ID: "medium", Label: "Medium tattoo", DurationMinutes: 120, DepositCents: 10000},
		{ID: "large", Label: "Large tattoo", DurationMinutes: 180, DepositCents: 15000},
		{ID: "session", Label: "Full session", DurationMinutes: 240, DepositCents: 20000},
	})
	return c
}

func New(currency string, services []Service) (*Catalog, error) {
	c := &Catalog{
		Currency: strings.ToLower(strings.TrimSpace(currency)),
		byID:     make(map[string]Service, len(services)),
	}
	if c.Currency == "" {
		c.Currency = "usd"
	}
	for _, s := range services {
		s.ID = strings.TrimSpace(s.ID)
		if s.ID == "" || s.Label == "" {
			return nil, fmt.Errorf("catalog: service id and label are required (got %q)", s.ID)
		}
		if _, dup := c.byID[s.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate service id %q", s.ID)
		}
		if !allowedDuration(s.DurationMinutes) {
			return nil, fmt.Errorf("catalog: service %q has duration %d, want one of %v", s.ID, s.DurationMinutes, AllowedDurations)
		}
		if s.DepositCents < 0 {
			return nil, fmt.Errorf("catalog: service %q has a negative deposit", s.ID)
		}
		c.byID[s.ID] = s
		c.services = append(c.services, s)
	}
	if len(c.services) == 0 {
		return nil, errors.New("catalog: no services")
	}
	return c, nil
}

// Load reads a YAML catalog. An empty path, a missing file or an empty file
// yields the default catalog.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return Default(), nil
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse catalog file: %w", err)
	}
	return New(f.Currency, f.Services)
}

func (c *Catalog) Lookup(id string) (Service, error) {
	s, ok := c.byID[id]
	if !ok {
		return Service{}, fmt.Errorf("%w: %q", ErrUnknownService, id)
	}
	return s, nil
}

// Services returns the menu in file order.
func (c *Catalog) Services() []Service {
	out := make([]Service, len(c.services))
	copy(out, c.services)
	return out
}

// Longest is the longest service duration on the menu.
func (c *Catalog) Longest() time.Duration {
	var longest time.Duration
	for _, s := range c.services {
		if d := s.Duration(); d > longest {
			longest = d
		}
	}
	return longest
}

func allowedDuration(m int) bool {
	for _, d := range AllowedDurations {
		if d == m {
			return true
		}
	}
	return false
}
