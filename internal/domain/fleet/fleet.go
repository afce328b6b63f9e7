// Package fleet defines the agency-owned resources: tanker vehicles and
// payout bank accounts. Both carry a default flag that is exclusive within
// the owning agency's scope.
package fleet

import (
	"time"

	"github.com/tankerflow/booking-engine/internal/domain"
	"github.com/tankerflow/booking-engine/internal/domain/booking"
)

// Vehicle is a water tanker registered by an agency.
type Vehicle struct {
	ID                 string             `json:"id"`
	AgencyID           string             `json:"agencyId"`
	RegistrationNumber string             `json:"registrationNumber"`
	TankerSize         booking.TankerSize `json:"tankerSize"`
	CapacityLitres     int                `json:"capacityLitres"`
	IsDefault          bool               `json:"isDefault"`
	CreatedAt          time.Time          `json:"createdAt"`
	UpdatedAt          time.Time          `json:"updatedAt"`
}

// Validate checks required vehicle fields before a write.
func (v *Vehicle) Validate() error {
	if v.AgencyID == "" {
		return domain.NewValidationError("agencyId is required")
	}
	if v.RegistrationNumber == "" {
		return domain.NewValidationError("registrationNumber is required")
	}
	if !v.TankerSize.IsValid() {
		return domain.NewValidationError("invalid tanker size: " + string(v.TankerSize))
	}
	return nil
}

// BankAccount is an agency payout account.
type BankAccount struct {
	ID            string    `json:"id"`
	AgencyID      string    `json:"agencyId"`
	BankName      string    `json:"bankName"`
	AccountNumber string    `json:"accountNumber"`
	HolderName    string    `json:"holderName"`
	IFSCCode      string    `json:"ifscCode"`
	IsDefault     bool      `json:"isDefault"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Validate checks required bank-account fields before a write.
func (a *BankAccount) Validate() error {
	if a.AgencyID == "" {
		return domain.NewValidationError("agencyId is required")
	}
	if a.AccountNumber == "" {
		return domain.NewValidationError("accountNumber is required")
	}
	if a.HolderName == "" {
		return domain.NewValidationError("holderName is required")
	}
	return nil
}
