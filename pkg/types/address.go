package types

import "strings"

// Address is the shipping address snapshot stored on orders.
type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// IsZero reports whether no field of the address is populated.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Validate checks the minimum fields a shippable address requires.
func (a Address) Validate() []string {
	var issues []string
	if strings.TrimSpace(a.Line1) == "" {
		issues = append(issues, "line1 is required")
	}
	if strings.TrimSpace(a.City) == "" {
		issues = append(issues, "city is required")
	}
	if strings.TrimSpace(a.State) == "" {
		issues = append(issues, "state is required")
	}
	if strings.TrimSpace(a.PostalCode) == "" {
		issues = append(issues, "postal_code is required")
	}
	if strings.TrimSpace(a.Country) == "" {
		issues = append(issues, "country is required")
	}
	return issues
}
