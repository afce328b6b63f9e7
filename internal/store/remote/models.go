// Package remote implements the persistence contract against the relational
// backend. Column names are snake_case; the camelCase field names callers
// use are translated at this boundary and never leak past it. Foreign keys
// are stored as internal row identifiers; the externally-visible auth
// identity is resolved on every write and reversed on every read.
package remote

import (
	"encoding/json"
	"time"
)

// UserModel is the users table: one row per person, linked to the external
// identity through auth_id. Email is stored lower-cased and unique.
type UserModel struct {
	ID           string    `gorm:"type:uuid;primaryKey"`
	AuthID       string    `gorm:"column:auth_id;index"`
	Name         string    `gorm:"not null;size:120"`
	Email        string    `gorm:"uniqueIndex;not null;size:255"`
	Phone        string    `gorm:"size:20;index"`
	PasswordHash string    `gorm:"size:255"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (UserModel) TableName() string { return "users" }

// UserRoleModel is the user_roles table: one row per role a person holds.
type UserRoleModel struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	UserID    string    `gorm:"type:uuid;not null;uniqueIndex:idx_user_role,priority:1"`
	Role      string    `gorm:"not null;size:20;uniqueIndex:idx_user_role,priority:2"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (UserRoleModel) TableName() string { return "user_roles" }

// CustomerModel is the customers profile table.
type CustomerModel struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	UserID    string    `gorm:"type:uuid;not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (CustomerModel) TableName() string { return "customers" }

// DriverModel is the drivers profile table.
type DriverModel struct {
	ID              string    `gorm:"type:uuid;primaryKey"`
	UserID          string    `gorm:"type:uuid;not null;uniqueIndex"`
	LicenseNumber   string    `gorm:"size:40"`
	VehicleNumber   string    `gorm:"size:20"`
	Approved        bool      `gorm:"not null;default:false"`
	TotalDeliveries int       `gorm:"not null;default:0"`
	Earnings        float64   `gorm:"not null;default:0"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (DriverModel) TableName() string { return "drivers" }

// AdminModel is the admins (agency) profile table.
type AdminModel struct {
	ID           string    `gorm:"type:uuid;primaryKey"`
	UserID       string    `gorm:"type:uuid;not null;uniqueIndex"`
	BusinessName string    `gorm:"size:160"`
	CreatedAt    time.Time `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (AdminModel) TableName() string { return "admins" }

// AddressModel is the addresses table holding customers' saved addresses.
type AddressModel struct {
	ID        string  `gorm:"type:uuid;primaryKey"`
	UserID    string  `gorm:"type:uuid;not null;index"`
	Label     string  `gorm:"size:60"`
	Line1     string  `gorm:"not null;size:255"`
	Line2     string  `gorm:"size:255"`
	City      string  `gorm:"size:80"`
	Pincode   string  `gorm:"size:12"`
	Latitude  float64 `gorm:""`
	Longitude float64 `gorm:""`
	IsDefault bool    `gorm:"not null;default:false"`
}

// TableName returns the table name for the GORM model.
func (AddressModel) TableName() string { return "addresses" }

// BookingModel is the bookings table. The delivery address snapshot is kept
// as a nested JSON object, not normalized columns.
type BookingModel struct {
	ID                 string          `gorm:"type:uuid;primaryKey"`
	CustomerID         string          `gorm:"type:uuid;not null;index"`
	DriverID           *string         `gorm:"type:uuid;index"`
	AgencyID           *string         `gorm:"type:uuid;index"`
	Status             string          `gorm:"not null;size:20;index"`
	PaymentStatus      string          `gorm:"not null;size:20"`
	TankerSize         string          `gorm:"not null;size:10"`
	Quantity           int             `gorm:"not null;default:1"`
	BasePrice          float64         `gorm:"not null"`
	DistanceCharge     float64         `gorm:"not null"`
	TotalPrice         float64         `gorm:"not null"`
	DeliveryAddress    json.RawMessage `gorm:"type:jsonb;not null"`
	ScheduledFor       *time.Time      `gorm:""`
	IsImmediate        bool            `gorm:"not null;default:true"`
	PaymentID          string          `gorm:"size:120"`
	CancellationReason string          `gorm:"size:500"`
	CanCancel          bool            `gorm:"not null;default:true"`
	CreatedAt          time.Time       `gorm:"not null"`
	UpdatedAt          time.Time       `gorm:"not null"`
	AcceptedAt         *time.Time      `gorm:""`
	DeliveredAt        *time.Time      `gorm:""`
}

// TableName returns the table name for the GORM model.
func (BookingModel) TableName() string { return "bookings" }

// VehicleModel is the vehicles table.
type VehicleModel struct {
	ID                 string    `gorm:"type:uuid;primaryKey"`
	AgencyID           string    `gorm:"type:uuid;not null;index"`
	RegistrationNumber string    `gorm:"not null;size:20"`
	TankerSize         string    `gorm:"not null;size:10"`
	CapacityLitres     int       `gorm:"not null"`
	IsDefault          bool      `gorm:"not null;default:false"`
	CreatedAt          time.Time `gorm:"not null"`
	UpdatedAt          time.Time `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (VehicleModel) TableName() string { return "vehicles" }

// BankAccountModel is the bank_accounts table.
type BankAccountModel struct {
	ID            string    `gorm:"type:uuid;primaryKey"`
	AgencyID      string    `gorm:"type:uuid;not null;index"`
	BankName      string    `gorm:"size:120"`
	AccountNumber string    `gorm:"not null;size:34"`
	HolderName    string    `gorm:"not null;size:120"`
	IFSCCode      string    `gorm:"column:ifsc_code;size:11"`
	IsDefault     bool      `gorm:"not null;default:false"`
	CreatedAt     time.Time `gorm:"not null"`
	UpdatedAt     time.Time `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (BankAccountModel) TableName() string { return "bank_accounts" }

// AllModels lists every remote model for auto-migration.
func AllModels() []any {
	return []any{
		&UserModel{},
		&UserRoleModel{},
		&CustomerModel{},
		&DriverModel{},
		&AdminModel{},
		&AddressModel{},
		&BookingModel{},
		&VehicleModel{},
		&BankAccountModel{},
	}
}
