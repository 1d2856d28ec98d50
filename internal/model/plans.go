package model

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Plan is an entry of the subscription catalogue.
type Plan struct {
	ID      string `yaml:"id" json:"id"`
	Name    string `yaml:"name" json:"name"`
	Price   string `yaml:"price" json:"price"`
	Tokens  int    `yaml:"tokens" json:"tokens"`
	Period  string `yaml:"period" json:"period"`
	Popular bool   `yaml:"popular,omitempty" json:"popular,omitempty"`
}

// DefaultPlans is the built-in catalogue.
func DefaultPlans() []Plan {
	return []Plan{
		{ID: "weekly", Name: "Weekly", Price: "$19.99", Tokens: 50, Period: "week"},
		{ID: "monthly", Name: "Monthly", Price: "$69.99", Tokens: 200, Period: "month", Popular: true},
		{ID: "quarterly", Name: "Quarterly", Price: "$189.99", Tokens: 600, Period: "quarter"},
		{ID: "biannual", Name: "Bi-Annual", Price: "$349.99", Tokens: 1200, Period: "6 months"},
	}
}

type planFile struct {
	Plans []Plan `yaml:"plans"`
}

// LoadPlans reads a YAML catalogue; an empty path yields DefaultPlans.
func LoadPlans(path string) ([]Plan, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPlans(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plans file: %w", err)
	}
	var pf planFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse plans file: %w", err)
	}
	if len(pf.Plans) == 0 {
		return nil, errors.New("plans file defines no plans")
	}
	seen := map[string]bool{}
	for i, p := range pf.Plans {
		if strings.TrimSpace(p.ID) == "" {
			return nil, fmt.Errorf("plan %d has no id", i)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("duplicate plan id %q", p.ID)
		}
		if p.Tokens <= 0 {
			return nil, fmt.Errorf("plan %q must grant tokens", p.ID)
		}
		seen[p.ID] = true
	}
	return pf.Plans, nil
}

// FindPlan looks a plan up by id.
func FindPlan(plans []Plan, id string) (Plan, bool) {
	for _, p := range plans {
		if p.ID == id {
			return p, true
		}
	}
	return Plan{}, false
}
