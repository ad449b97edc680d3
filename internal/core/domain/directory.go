package domain

import "time"

type Property struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

type Tenant struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type LeaseStatus string

const (
	LeaseActive  LeaseStatus = "active"
	LeasePending LeaseStatus = "pending"
	LeaseEnded   LeaseStatus = "ended"
)

type Lease struct {
	ID         string      `json:"id"`
	PropertyID string      `json:"property_id"`
	Status     LeaseStatus `json:"status"`
	StartDate  time.Time   `json:"start_date"`
	Tenant     Tenant      `json:"tenant"`
}

type Category struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}
