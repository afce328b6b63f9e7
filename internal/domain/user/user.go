// Package user defines the multi-role user record. One person may hold
// several role records sharing the same contact identity; migration collapses
// them onto one canonical identifier.
package user

import "time"

// Role distinguishes the three account variants of the app.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleDriver   Role = "driver"
	RoleAdmin    Role = "admin"
)

// IsValid returns true if the role is recognized.
func (r Role) IsValid() bool {
	switch r {
	case RoleCustomer, RoleDriver, RoleAdmin:
		return true
	}
	return false
}

// Address is a customer's saved delivery address.
type Address struct {
	ID        string  `json:"id"`
	Label     string  `json:"label"`
	Line1     string  `json:"line1"`
	Line2     string  `json:"line2,omitempty"`
	City      string  `json:"city"`
	Pincode   string  `json:"pincode"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	IsDefault bool    `json:"isDefault"`
}

// CustomerProfile is the customer-specific payload of a user record.
type CustomerProfile struct {
	Addresses []Address `json:"addresses,omitempty"`
}

// DriverProfile is the driver-specific payload of a user record.
type DriverProfile struct {
	LicenseNumber   string  `json:"licenseNumber"`
	VehicleNumber   string  `json:"vehicleNumber"`
	Approved        bool    `json:"approved"`
	TotalDeliveries int     `json:"totalDeliveries"`
	Earnings        float64 `json:"earnings"`
}

// AdminProfile is the agency-admin payload of a user record.
type AdminProfile struct {
	BusinessName string `json:"businessName"`
}

// User is one role record. AuthID is the externally-visible identity the
// remote backend links to; it is empty for records that only ever lived in
// the on-device store.
type User struct {
	ID        string           `json:"id"`
	AuthID    string           `json:"authId,omitempty"`
	Role      Role             `json:"role"`
	Name      string           `json:"name"`
	Email     string           `json:"email"`
	Phone     string           `json:"phone"`
	Password  string           `json:"password,omitempty"`
	Customer  *CustomerProfile `json:"customer,omitempty"`
	Driver    *DriverProfile   `json:"driver,omitempty"`
	Admin     *AdminProfile    `json:"admin,omitempty"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}
