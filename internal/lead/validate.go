// Package lead validates homeowner intake submissions and records them.
package lead

import (
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/foundationrisk/soilrisk/internal/model"
)

// ReasonMissingFields is the failure reason for a payload without email,
// phone or address.
const ReasonMissingFields = "Missing required fields"

// Payload is the intake form submission.
type Payload struct {
	Name       string   `json:"name"`
	Email      string   `json:"email" validate:"required"`
	Phone      string   `json:"phone" validate:"required"`
	Address    string   `json:"address" validate:"required"`
	PostalCode string   `json:"zip"`
	Symptoms   []string `json:"symptoms"`
}

// ValidationError reports a rejected payload.
type ValidationError struct {
	Reason string
	Fields []string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "lead: " + e.Reason
	}
	return "lead: " + e.Reason + ": " + strings.Join(e.Fields, ", ")
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "" || name == "-" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// Validate rejects a payload whose email, phone or address is empty after
// trimming whitespace. The returned error is a *ValidationError.
func Validate(p Payload) error {
	trimmed := p.trimmed()
	err := validatorInstance().Struct(trimmed)
	if err == nil {
		return nil
	}

	verr := &ValidationError{Reason: ReasonMissingFields}
	if fieldErrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range fieldErrs {
			verr.Fields = append(verr.Fields, fe.Field())
		}
	}
	return verr
}

// Normalize trims the payload, attaches the fixed status and source, and
// keeps only known symptom tags in first-seen order.
func Normalize(p Payload) *model.Lead {
	t := p.trimmed()

	var tags []string
	seen := make(map[string]bool, len(t.Symptoms))
	for _, tag := range t.Symptoms {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if !model.IsKnownSymptom(tag) || seen[tag] {
			continue
		}
		seen[tag] = true
		tags = append(tags, tag)
	}

	return &model.Lead{
		Name:       t.Name,
		Email:      t.Email,
		Phone:      t.Phone,
		Address:    t.Address,
		PostalCode: t.PostalCode,
		Symptoms:   tags,
		Status:     model.LeadStatusNew,
		Source:     model.LeadSourceWebIntake,
	}
}

func (p Payload) trimmed() Payload {
	return Payload{
		Name:       strings.TrimSpace(p.Name),
		Email:      strings.TrimSpace(p.Email),
		Phone:      strings.TrimSpace(p.Phone),
		Address:    strings.TrimSpace(p.Address),
		PostalCode: strings.TrimSpace(p.PostalCode),
		Symptoms:   p.Symptoms,
	}
}
