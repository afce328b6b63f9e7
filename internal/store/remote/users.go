package remote

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tankerflow/booking-engine/internal/domain"
	"github.com/tankerflow/booking-engine/internal/domain/user"
	"github.com/tankerflow/booking-engine/internal/events"
	"github.com/tankerflow/booking-engine/internal/realtime"
	"github.com/tankerflow/booking-engine/internal/store"
)

// Users is the remote implementation of the user collection. One domain
// record spans the users row plus its user_roles and role-profile rows; the
// assembly happens entirely inside this adapter.
type Users struct {
	db        *gorm.DB
	resolver  *IdentityResolver
	publisher *events.ChangePublisher
	manager   *realtime.Manager
}

// NewUsers creates the remote user collection.
func NewUsers(db *gorm.DB, resolver *IdentityResolver, publisher *events.ChangePublisher, manager *realtime.Manager) *Users {
	return &Users{db: db, resolver: resolver, publisher: publisher, manager: manager}
}

var _ store.Collection[user.User] = (*Users)(nil)

// Create inserts the users row plus the role and profile rows for the
// record's role. The rows of one user are written in a single transaction;
// cross-entity writes stay non-transactional.
func (r *Users) Create(ctx context.Context, rec user.User) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if !rec.Role.IsValid() {
		return "", domain.NewValidationError("invalid role: " + string(rec.Role))
	}
	now := time.Now().UTC()

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		userRow := UserModel{
			ID:           rec.ID,
			AuthID:       rec.AuthID,
			Name:         rec.Name,
			Email:        strings.ToLower(rec.Email),
			Phone:        rec.Phone,
			PasswordHash: rec.Password,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.Create(&userRow).Error; err != nil {
			return err
		}
		return createRoleRows(tx, rec, now)
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return "", domain.NewConflictError("user with this email already exists")
		}
		return "", translateError("failed to create user", err)
	}

	r.publisher.Publish(ctx, "users", realtime.EventInsert, recordSnapshot(rec))
	return rec.ID, nil
}

// createRoleRows inserts the user_roles row and the role-specific profile
// rows for one user record.
func createRoleRows(tx *gorm.DB, rec user.User, now time.Time) error {
	roleRow := UserRoleModel{
		ID:        uuid.NewString(),
		UserID:    rec.ID,
		Role:      string(rec.Role),
		CreatedAt: now,
	}
	if err := tx.Create(&roleRow).Error; err != nil {
		return err
	}

	switch rec.Role {
	case user.RoleCustomer:
		if err := tx.Create(&CustomerModel{ID: uuid.NewString(), UserID: rec.ID, CreatedAt: now}).Error; err != nil {
			return err
		}
		if rec.Customer != nil {
			for _, addr := range rec.Customer.Addresses {
				row := AddressModel{
					ID:        addr.ID,
					UserID:    rec.ID,
					Label:     addr.Label,
					Line1:     addr.Line1,
					Line2:     addr.Line2,
					City:      addr.City,
					Pincode:   addr.Pincode,
					Latitude:  addr.Latitude,
					Longitude: addr.Longitude,
					IsDefault: addr.IsDefault,
				}
				if row.ID == "" {
					row.ID = uuid.NewString()
				}
				if err := tx.Create(&row).Error; err != nil {
					return err
				}
			}
		}
	case user.RoleDriver:
		profile := DriverModel{ID: uuid.NewString(), UserID: rec.ID, CreatedAt: now, UpdatedAt: now}
		if rec.Driver != nil {
			profile.LicenseNumber = rec.Driver.LicenseNumber
			profile.VehicleNumber = rec.Driver.VehicleNumber
			profile.Approved = rec.Driver.Approved
			profile.TotalDeliveries = rec.Driver.TotalDeliveries
			profile.Earnings = rec.Driver.Earnings
		}
		if err := tx.Create(&profile).Error; err != nil {
			return err
		}
	case user.RoleAdmin:
		profile := AdminModel{ID: uuid.NewString(), UserID: rec.ID, CreatedAt: now}
		if rec.Admin != nil {
			profile.BusinessName = rec.Admin.BusinessName
		}
		if err := tx.Create(&profile).Error; err != nil {
			return err
		}
	}
	return nil
}

// Get returns the user known by the given external identifier, or
// (nil, nil) if absent.
func (r *Users) Get(ctx context.Context, id string) (*user.User, error) {
	rowID, err := r.resolver.RowID(ctx, id)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, err
	}

	var model UserModel
	if err := r.db.WithContext(ctx).Where("id = ?", rowID).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, translateError("failed to get user", err)
	}
	return r.assemble(ctx, &model, "")
}

// Update routes patch fields to the tables that own them: contact fields to
// users, driver fields to drivers, businessName to admins. Fails with a
// NotFoundError if the user is absent.
func (r *Users) Update(ctx context.Context, id string, patch store.Patch) error {
	rowID, err := r.resolver.RowID(ctx, id)
	if err != nil {
		return err
	}

	userCols := map[string]any{}
	driverCols := map[string]any{}
	adminCols := map[string]any{}
	for field, value := range patch {
		if value == store.Null {
			value = nil
		}
		switch field {
		case "name", "phone", "authId", "updatedAt":
			userCols[toSnakeCase(field)] = value
		case "email":
			if s, ok := value.(string); ok {
				value = strings.ToLower(s)
			}
			userCols["email"] = value
		case "password":
			userCols["password_hash"] = value
		case "licenseNumber", "vehicleNumber", "approved", "totalDeliveries", "earnings":
			driverCols[toSnakeCase(field)] = value
		case "businessName":
			adminCols["business_name"] = value
		default:
			return domain.NewValidationError("unknown user field: " + field)
		}
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(userCols) > 0 {
			result := tx.Model(&UserModel{}).Where("id = ?", rowID).Updates(userCols)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected == 0 {
				return domain.NewNotFoundError("User", id)
			}
		}
		if len(driverCols) > 0 {
			if err := tx.Model(&DriverModel{}).Where("user_id = ?", rowID).Updates(driverCols).Error; err != nil {
				return err
			}
		}
		if len(adminCols) > 0 {
			if err := tx.Model(&AdminModel{}).Where("user_id = ?", rowID).Updates(adminCols).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return err
		}
		return translateError("failed to update user", err)
	}

	r.resolver.Invalidate(rowID)
	if updated, err := r.Get(ctx, id); err == nil && updated != nil {
		r.publisher.Publish(ctx, "users", realtime.EventUpdate, recordSnapshot(updated))
	}
	return nil
}

// Delete removes the user and its role, profile and address rows; absent
// users are a no-op.
func (r *Users) Delete(ctx context.Context, id string) error {
	rowID, err := r.resolver.RowID(ctx, id)
	if err != nil {
		var notFound *domain.NotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return err
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&UserRoleModel{}, &CustomerModel{}, &DriverModel{}, &AdminModel{}, &AddressModel{}} {
			if err := tx.Where("user_id = ?", rowID).Delete(model).Error; err != nil {
				return err
			}
		}
		return tx.Where("id = ?", rowID).Delete(&UserModel{}).Error
	})
	if err != nil {
		return translateError("failed to delete user", err)
	}

	r.resolver.Invalidate(rowID)
	r.publisher.Publish(ctx, "users", realtime.EventDelete, map[string]any{"id": id})
	return nil
}

// Query returns users matching q. Supported filter fields: role, email,
// phone, name.
func (r *Users) Query(ctx context.Context, q store.Query) ([]user.User, error) {
	tx := r.db.WithContext(ctx).Model(&UserModel{})
	role := ""
	for field, value := range q.Where {
		switch field {
		case "role":
			role = fmt.Sprintf("%v", value)
			tx = tx.Joins("JOIN user_roles ON user_roles.user_id = users.id").
				Where("user_roles.role = ?", role)
		case "email":
			tx = tx.Where("users.email = ?", strings.ToLower(fmt.Sprintf("%v", value)))
		case "phone", "name":
			tx = tx.Where("users."+field+" = ?", value)
		default:
			return nil, domain.NewValidationError("unsupported user filter field: " + field)
		}
	}
	tx = applyOrder(tx, q)

	var models []UserModel
	if err := tx.Find(&models).Error; err != nil {
		return nil, translateError("failed to query users", err)
	}

	out := make([]user.User, 0, len(models))
	for i := range models {
		rec, err := r.assemble(ctx, &models[i], user.Role(role))
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

// Subscribe registers a live-update listener for users matching filterKey.
func (r *Users) Subscribe(filterKey string, handler realtime.Handler, onError func(error)) (func(), error) {
	if r.manager == nil {
		return nil, fmt.Errorf("users collection has no subscription manager")
	}
	desc := realtime.Descriptor{
		Name:    "users|" + filterKey,
		Table:   "users",
		Filter:  realtime.ParseFilter(filterKey),
		OnError: onError,
	}
	return r.manager.Subscribe(desc, handler)
}

// assemble builds the domain record from the users row plus role and
// profile rows. wantRole pins the record's primary role when the caller
// filtered by one; otherwise the first role row wins.
func (r *Users) assemble(ctx context.Context, m *UserModel, wantRole user.Role) (*user.User, error) {
	var roleRows []UserRoleModel
	if err := r.db.WithContext(ctx).Where("user_id = ?", m.ID).Order("created_at ASC").Find(&roleRows).Error; err != nil {
		return nil, translateError("failed to load user roles", err)
	}

	rec := &user.User{
		ID:        m.ID,
		AuthID:    m.AuthID,
		Name:      m.Name,
		Email:     m.Email,
		Phone:     m.Phone,
		Password:  m.PasswordHash,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if len(roleRows) > 0 {
		rec.Role = user.Role(roleRows[0].Role)
	}

	for _, roleRow := range roleRows {
		if wantRole != "" && user.Role(roleRow.Role) == wantRole {
			rec.Role = wantRole
		}
		switch user.Role(roleRow.Role) {
		case user.RoleCustomer:
			var addresses []AddressModel
			if err := r.db.WithContext(ctx).Where("user_id = ?", m.ID).Find(&addresses).Error; err != nil {
				return nil, translateError("failed to load addresses", err)
			}
			profile := &user.CustomerProfile{}
			for _, a := range addresses {
				profile.Addresses = append(profile.Addresses, user.Address{
					ID:        a.ID,
					Label:     a.Label,
					Line1:     a.Line1,
					Line2:     a.Line2,
					City:      a.City,
					Pincode:   a.Pincode,
					Latitude:  a.Latitude,
					Longitude: a.Longitude,
					IsDefault: a.IsDefault,
				})
			}
			rec.Customer = profile
		case user.RoleDriver:
			var profile DriverModel
			err := r.db.WithContext(ctx).Where("user_id = ?", m.ID).First(&profile).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, translateError("failed to load driver profile", err)
			}
			if err == nil {
				rec.Driver = &user.DriverProfile{
					LicenseNumber:   profile.LicenseNumber,
					VehicleNumber:   profile.VehicleNumber,
					Approved:        profile.Approved,
					TotalDeliveries: profile.TotalDeliveries,
					Earnings:        profile.Earnings,
				}
			}
		case user.RoleAdmin:
			var profile AdminModel
			err := r.db.WithContext(ctx).Where("user_id = ?", m.ID).First(&profile).Error
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, translateError("failed to load admin profile", err)
			}
			if err == nil {
				rec.Admin = &user.AdminProfile{BusinessName: profile.BusinessName}
			}
		}
	}
	return rec, nil
}
