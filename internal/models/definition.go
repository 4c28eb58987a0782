package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

type Frequency string

const (
	FrequencyDaily      Frequency = "DAILY"
	FrequencyWeekly     Frequency = "WEEKLY"
	FrequencyMonthly    Frequency = "MONTHLY"
	FrequencyBimonthly  Frequency = "BIMONTHLY"
	FrequencyQuarterly  Frequency = "QUARTERLY"
	FrequencySemiannual Frequency = "SEMIANNUAL"
	FrequencyAnnual     Frequency = "ANNUAL"
	FrequencyOneTime    Frequency = "ONE_TIME"
)

// Frequencies lists every supported frequency in ascending period length.
var Frequencies = []Frequency{
	FrequencyDaily,
	FrequencyWeekly,
	FrequencyMonthly,
	FrequencyBimonthly,
	FrequencyQuarterly,
	FrequencySemiannual,
	FrequencyAnnual,
	FrequencyOneTime,
}

// ParseFrequency normalizes user input ("monthly", " Quarterly ") to a Frequency.
func ParseFrequency(s string) (Frequency, bool) {
	f := Frequency(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Frequencies {
		if f == known {
			return f, true
		}
	}
	return f, false
}

// RequiresDueMonth reports whether the frequency needs a due month to compute due dates.
func (f Frequency) RequiresDueMonth() bool {
	return f == FrequencyAnnual || f == FrequencyOneTime
}

// Entity is the regulated company a report is filed for.
type Entity struct {
	gorm.Model
	Name       string `json:"name" gorm:"not null" validate:"required,max=200"`
	TaxID      string `json:"tax_id" gorm:"index" validate:"max=30"`
	Website    string `json:"website"`
	LegalBasis string `json:"legal_basis" gorm:"type:text"`
	IsActive   bool   `json:"is_active" gorm:"default:true"`
}

// ReportDefinition is a recurring reporting obligation.
type ReportDefinition struct {
	gorm.Model
	Code            string                `json:"code" gorm:"uniqueIndex;not null" validate:"required,max=50"`
	Name            string                `json:"name" gorm:"not null" validate:"required,max=200"`
	EntityID        uint                  `json:"entity_id" gorm:"index;not null" validate:"required"`
	Entity          Entity                `json:"entity" validate:"-"`
	LegalBasis      string                `json:"legal_basis" gorm:"type:text"`
	Frequency       Frequency             `json:"frequency" gorm:"not null" validate:"required"`
	DueDay          *int                  `json:"due_day" validate:"omitempty,min=1,max=31"`
	DueMonth        *int                  `json:"due_month" validate:"omitempty,min=1,max=12"`
	GraceDays       int                   `json:"grace_days" validate:"min=0"`
	ValidFrom       *time.Time            `json:"valid_from"`
	ValidUntil      *time.Time            `json:"valid_until"`
	RequiredFormat  string                `json:"required_format"`
	InstructionsURL string                `json:"instructions_url"`
	ResponsibleID   uint                  `json:"responsible_id" gorm:"index;not null" validate:"required"`
	Responsible     User                  `json:"responsible" validate:"-"`
	SupervisorID    uint                  `json:"supervisor_id" gorm:"index;not null" validate:"required"`
	Supervisor      User                  `json:"supervisor" validate:"-"`
	IsActive        bool                  `json:"is_active" gorm:"default:true"`
	ExtraRecipients []DefinitionRecipient `json:"extra_recipients,omitempty" gorm:"foreignKey:DefinitionID"`
}

// DefinitionRecipient receives a copy of every alert raised for a definition.
type DefinitionRecipient struct {
	gorm.Model
	DefinitionID uint   `json:"definition_id" gorm:"index;not null"`
	Email        string `json:"email" gorm:"not null" validate:"required,email"`
}

const (
	DefaultDueDay   = 15
	DefaultDueMonth = 1
)

// EffectiveDueDay returns the configured due day or DefaultDueDay.
func (d *ReportDefinition) EffectiveDueDay() int {
	if d.DueDay == nil {
		return DefaultDueDay
	}
	return *d.DueDay
}

// EffectiveDueMonth returns the configured due month or DefaultDueMonth.
func (d *ReportDefinition) EffectiveDueMonth() int {
	if d.DueMonth == nil {
		return DefaultDueMonth
	}
	return *d.DueMonth
}
