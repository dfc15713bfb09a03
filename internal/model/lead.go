package model

import "time"

// LeadStatus tracks a lead through back-office handling.
type LeadStatus string

const (
	LeadStatusNew LeadStatus = "new"
)

// LeadSourceWebIntake tags leads submitted through the intake form.
const LeadSourceWebIntake = "web_intake"

// Symptom tags offered by the intake form.
const (
	SymptomWallCracks    = "cracks_wall"
	SymptomDoorsSticking = "doors_sticking"
	SymptomTrimGaps      = "gaps_trim"
	SymptomBrickCracks   = "brick_cracks"
	SymptomUnevenFloor   = "uneven_floor"
	SymptomPrePurchase   = "pre_purchase"
)

// KnownSymptoms lists the symptom tags in form display order.
var KnownSymptoms = []string{
	SymptomWallCracks,
	SymptomDoorsSticking,
	SymptomTrimGaps,
	SymptomBrickCracks,
	SymptomUnevenFloor,
	SymptomPrePurchase,
}

// IsKnownSymptom reports whether tag is offered by the intake form.
func IsKnownSymptom(tag string) bool {
	for _, s := range KnownSymptoms {
		if s == tag {
			return true
		}
	}
	return false
}

// Lead is a homeowner's intake submission.
type Lead struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Phone      string     `json:"phone"`
	Address    string     `json:"address"`
	PostalCode string     `json:"zip"`
	Symptoms   []string   `json:"symptoms"`
	Status     LeadStatus `json:"status"`
	Source     string     `json:"source"`
	CreatedAt  time.Time  `json:"created_at"`
}
