// Package migration moves on-device collections into the relational
// backend: export, transform, import, verify, in that order, each phase
// completing before the next starts. Every record failure is isolated and
// collected into the run report; the batch never aborts.
package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tankerflow/booking-engine/internal/domain/booking"
	"github.com/tankerflow/booking-engine/internal/domain/fleet"
	"github.com/tankerflow/booking-engine/internal/domain/user"
	"github.com/tankerflow/booking-engine/internal/store"
	"github.com/tankerflow/booking-engine/internal/store/local"
	"github.com/tankerflow/booking-engine/internal/store/remote"
)

// Options control one migration run.
type Options struct {
	// SkipExisting merges onto users already present in the backend
	// instead of failing on their unique email.
	SkipExisting bool
	// DryRun exports and transforms but writes nothing.
	DryRun bool
	// CreateAuthAccounts is accepted for forward compatibility; external
	// identity provisioning is not wired yet, so enabling it only records
	// a warning.
	CreateAuthAccounts bool
}

// DefaultOptions are the options used by the migrate command when no flags
// override them.
func DefaultOptions() Options {
	return Options{SkipExisting: true, DryRun: false, CreateAuthAccounts: true}
}

// Engine runs the migration pipeline from an opened on-device store into
// the relational backend. The backend connection is expected to use the
// elevated migration credentials, not the per-user application tier.
type Engine struct {
	src    *local.Store
	db     *gorm.DB
	opts   Options
	logger *zap.Logger
}

// NewEngine creates a migration engine.
func NewEngine(src *local.Store, db *gorm.DB, opts Options, logger *zap.Logger) *Engine {
	return &Engine{src: src, db: db, opts: opts, logger: logger}
}

// dataset is the full export of the on-device store.
type dataset struct {
	Users        []user.User
	Bookings     []booking.Booking
	Vehicles     []fleet.Vehicle
	BankAccounts []fleet.BankAccount
}

// Run executes the pipeline and returns the run report. The returned
// report is complete even when individual records failed.
func (e *Engine) Run(ctx context.Context) *Report {
	report := newReport(e.opts.DryRun)
	report.Mapping = NewIDMapping()

	ds, err := e.export(ctx, report)
	if err != nil {
		report.fail("export", "", err)
		report.finish()
		return report
	}

	groups, userMap := e.transform(ds, report)
	report.Mapping.Users = userMap
	byPhone, byEmail := AlternateKeyIndexes(groups)

	if e.opts.DryRun {
		e.logger.Info("dry run, skipping import",
			zap.Int("user_groups", len(groups)),
			zap.Int("bookings", len(ds.Bookings)),
			zap.Int("vehicles", len(ds.Vehicles)),
			zap.Int("bank_accounts", len(ds.BankAccounts)),
		)
	} else {
		e.importUsers(ctx, groups, report)
		e.importVehicles(ctx, ds.Vehicles, byPhone, byEmail, report)
		e.importBookings(ctx, ds.Bookings, byPhone, byEmail, report)
		e.importBankAccounts(ctx, ds.BankAccounts, byPhone, byEmail, report)
	}

	e.verify(ctx, report)
	report.finish()

	e.logger.Info("migration finished",
		zap.Bool("success", report.Success),
		zap.Int("errors", len(report.Errors)),
		zap.Int("warnings", len(report.Warnings)),
		zap.Duration("duration", report.Duration),
	)
	return report
}

// export reads every collection out of the on-device store. Dates come
// back as time values through the same JSON decoding the collections were
// written with.
func (e *Engine) export(ctx context.Context, report *Report) (*dataset, error) {
	ds := &dataset{}

	users := local.NewCollection[user.User](e.src, local.CollectionUsers, "User", nil)
	bookings := local.NewCollection[booking.Booking](e.src, local.CollectionBookings, "Booking", nil)
	vehicles := local.NewCollection[fleet.Vehicle](e.src, local.CollectionVehicles, "Vehicle", nil)
	accounts := local.NewCollection[fleet.BankAccount](e.src, local.CollectionBankAccounts, "BankAccount", nil)

	var err error
	if ds.Users, err = users.Query(ctx, store.Query{}); err != nil {
		return nil, fmt.Errorf("export users: %w", err)
	}
	if ds.Bookings, err = bookings.Query(ctx, store.Query{}); err != nil {
		return nil, fmt.Errorf("export bookings: %w", err)
	}
	if ds.Vehicles, err = vehicles.Query(ctx, store.Query{}); err != nil {
		return nil, fmt.Errorf("export vehicles: %w", err)
	}
	if ds.BankAccounts, err = accounts.Query(ctx, store.Query{}); err != nil {
		return nil, fmt.Errorf("export bank accounts: %w", err)
	}

	if current, err := e.src.CurrentUser(); err == nil && current != nil {
		report.warnf("source store has a persisted session for %q; session state is not migrated", current.Email)
	}

	report.Exported["users"] = len(ds.Users)
	report.Exported["bookings"] = len(ds.Bookings)
	report.Exported["vehicles"] = len(ds.Vehicles)
	report.Exported["bank_accounts"] = len(ds.BankAccounts)
	return ds, nil
}

// transform consolidates duplicate role records onto canonical users.
func (e *Engine) transform(ds *dataset, report *Report) ([]ConsolidatedUser, map[string]string) {
	for _, rec := range ds.Users {
		if rec.Email == "" && rec.Phone == "" {
			report.warnf("user %s has no email or phone; record kept as its own identity", rec.ID)
		}
	}
	groups, mapping := ConsolidateUsers(ds.Users)
	e.logger.Info("consolidated users",
		zap.Int("records", len(ds.Users)),
		zap.Int("identities", len(groups)),
	)
	return groups, mapping
}

func (e *Engine) importUsers(ctx context.Context, groups []ConsolidatedUser, report *Report) {
	if e.opts.CreateAuthAccounts && len(groups) > 0 {
		report.warnf("auth account provisioning is not wired; users migrated without external identities")
	}
	for _, g := range groups {
		if err := e.importUser(ctx, g, report); err != nil {
			report.fail("user", g.LegacyIDs[0], err)
		}
	}
}

// importUser inserts one consolidated identity with its role and profile
// rows in a single transaction. A duplicate email merges onto the existing
// row when SkipExisting is set, remapping the group's legacy identifiers to
// the existing identifier.
func (e *Engine) importUser(ctx context.Context, g ConsolidatedUser, report *Report) error {
	email := g.Email
	if email == "" {
		email = fmt.Sprintf("user-%s@migration.local", g.NewID)
		report.warnf("user %s has no email; placeholder %s assigned", g.LegacyIDs[0], email)
	}

	var existing remote.UserModel
	err := e.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	switch {
	case err == nil:
		if !e.opts.SkipExisting {
			return fmt.Errorf("user with email %s already exists", email)
		}
		return e.mergeExistingUser(ctx, g, existing, report)
	case errors.Is(err, gorm.ErrRecordNotFound):
		// fall through to insert
	default:
		return fmt.Errorf("lookup existing user: %w", err)
	}

	now := time.Now().UTC()
	insertErr := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := remote.UserModel{
			ID:           g.NewID,
			Name:         g.Name,
			Email:        email,
			Phone:        g.Phone,
			PasswordHash: g.Password,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		return e.createRoleRows(tx, g.NewID, g.Roles, now)
	})
	if insertErr != nil {
		if errors.Is(insertErr, gorm.ErrDuplicatedKey) && e.opts.SkipExisting {
			// Lost the race to another writer; merge onto whoever won.
			var won remote.UserModel
			if err := e.db.WithContext(ctx).Where("email = ?", email).First(&won).Error; err != nil {
				return fmt.Errorf("duplicate email %s but existing row not found: %w", email, err)
			}
			return e.mergeExistingUser(ctx, g, won, report)
		}
		return insertErr
	}

	report.Imported["users"]++
	return nil
}

// mergeExistingUser backfills the id mapping to the existing row, refreshes
// its mutable contact fields, and creates any role rows the existing user
// does not have yet. Saved addresses are not re-imported onto existing
// users to avoid duplicating them on every run.
func (e *Engine) mergeExistingUser(ctx context.Context, g ConsolidatedUser, existing remote.UserModel, report *Report) error {
	for i := range g.LegacyIDs {
		report.Mapping.Users[g.LegacyIDs[i]] = existing.ID
	}

	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{
			"name":       g.Name,
			"phone":      g.Phone,
			"updated_at": time.Now().UTC(),
		}
		if err := tx.Model(&remote.UserModel{}).Where("id = ?", existing.ID).Updates(updates).Error; err != nil {
			return err
		}

		var held []remote.UserRoleModel
		if err := tx.Where("user_id = ?", existing.ID).Find(&held).Error; err != nil {
			return err
		}
		have := make(map[string]bool, len(held))
		for _, r := range held {
			have[r.Role] = true
		}
		var missing []user.User
		for _, rec := range g.Roles {
			if !have[string(rec.Role)] {
				missing = append(missing, rec)
				have[string(rec.Role)] = true
			}
		}
		return e.createRoleRows(tx, existing.ID, missing, time.Now().UTC())
	})
	if err != nil {
		return err
	}

	if hasAddresses(g.Roles) {
		report.warnf("user %s merged onto existing %s; saved addresses were not re-imported", g.LegacyIDs[0], existing.ID)
	}
	report.Imported["users_merged"]++
	return nil
}

// createRoleRows creates the user_roles rows and per-role profile rows for
// the given role records, deduplicating roles held more than once.
func (e *Engine) createRoleRows(tx *gorm.DB, userID string, roles []user.User, now time.Time) error {
	seen := make(map[user.Role]bool, len(roles))
	for _, rec := range roles {
		if seen[rec.Role] {
			continue
		}
		seen[rec.Role] = true

		roleRow := remote.UserRoleModel{
			ID:        uuid.NewString(),
			UserID:    userID,
			Role:      string(rec.Role),
			CreatedAt: now,
		}
		if err := tx.Create(&roleRow).Error; err != nil {
			return fmt.Errorf("role %s: %w", rec.Role, err)
		}

		switch rec.Role {
		case user.RoleCustomer:
			profile := remote.CustomerModel{ID: uuid.NewString(), UserID: userID, CreatedAt: now}
			if err := tx.Create(&profile).Error; err != nil {
				return err
			}
			if rec.Customer != nil {
				for _, addr := range rec.Customer.Addresses {
					row := remote.AddressModel{
						ID:        uuid.NewString(),
						UserID:    userID,
						Label:     addr.Label,
						Line1:     addr.Line1,
						Line2:     addr.Line2,
						City:      addr.City,
						Pincode:   addr.Pincode,
						Latitude:  addr.Latitude,
						Longitude: addr.Longitude,
						IsDefault: addr.IsDefault,
					}
					if err := tx.Create(&row).Error; err != nil {
						return err
					}
				}
			}
		case user.RoleDriver:
			profile := remote.DriverModel{ID: uuid.NewString(), UserID: userID, CreatedAt: now, UpdatedAt: now}
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
			profile := remote.AdminModel{ID: uuid.NewString(), UserID: userID, CreatedAt: now}
			if rec.Admin != nil {
				profile.BusinessName = rec.Admin.BusinessName
			}
			if err := tx.Create(&profile).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) importVehicles(ctx context.Context, vehicles []fleet.Vehicle, byPhone, byEmail map[string]string, report *Report) {
	for _, v := range vehicles {
		agency := ResolveRef(v.AgencyID, report.Mapping.Users, byPhone, byEmail)
		if !agency.Resolved {
			report.fail("vehicle", v.ID, fmt.Errorf("unresolved agency reference %q", v.AgencyID))
			continue
		}
		now := time.Now().UTC()
		row := remote.VehicleModel{
			ID:                 uuid.NewString(),
			AgencyID:           agency.ID,
			RegistrationNumber: v.RegistrationNumber,
			TankerSize:         string(v.TankerSize),
			CapacityLitres:     v.CapacityLitres,
			IsDefault:          v.IsDefault,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if err := e.db.WithContext(ctx).Create(&row).Error; err != nil {
			report.fail("vehicle", v.ID, err)
			continue
		}
		report.Mapping.Vehicles[v.ID] = row.ID
		report.Imported["vehicles"]++
	}
}

func (e *Engine) importBookings(ctx context.Context, bookings []booking.Booking, byPhone, byEmail map[string]string, report *Report) {
	for _, b := range bookings {
		customer := ResolveRef(b.CustomerID, report.Mapping.Users, byPhone, byEmail)
		if !customer.Resolved {
			report.fail("booking", b.ID, fmt.Errorf("unresolved customer reference %q", b.CustomerID))
			continue
		}

		var driverID, agencyID *string
		if b.DriverID != nil {
			if r := ResolveRef(*b.DriverID, report.Mapping.Users, byPhone, byEmail); r.Resolved {
				driverID = &r.ID
			} else {
				report.warnf("booking %s: unresolved driver reference %q dropped", b.ID, *b.DriverID)
			}
		}
		if b.AgencyID != nil {
			if r := ResolveRef(*b.AgencyID, report.Mapping.Users, byPhone, byEmail); r.Resolved {
				agencyID = &r.ID
			} else {
				report.warnf("booking %s: unresolved agency reference %q dropped", b.ID, *b.AgencyID)
			}
		}

		address, err := json.Marshal(b.DeliveryAddress)
		if err != nil {
			report.fail("booking", b.ID, fmt.Errorf("encode delivery address: %w", err))
			continue
		}

		row := remote.BookingModel{
			ID:                 uuid.NewString(),
			CustomerID:         customer.ID,
			DriverID:           driverID,
			AgencyID:           agencyID,
			Status:             string(b.Status),
			PaymentStatus:      string(b.PaymentStatus),
			TankerSize:         string(b.TankerSize),
			Quantity:           b.Quantity,
			BasePrice:          b.BasePrice,
			DistanceCharge:     b.DistanceCharge,
			TotalPrice:         b.TotalPrice,
			DeliveryAddress:    address,
			ScheduledFor:       b.ScheduledFor,
			IsImmediate:        b.IsImmediate,
			PaymentID:          b.PaymentID,
			CancellationReason: b.CancellationReason,
			CanCancel:          b.CanCancel,
			CreatedAt:          b.CreatedAt,
			UpdatedAt:          b.UpdatedAt,
			AcceptedAt:         b.AcceptedAt,
			DeliveredAt:        b.DeliveredAt,
		}
		if err := e.db.WithContext(ctx).Create(&row).Error; err != nil {
			report.fail("booking", b.ID, err)
			continue
		}
		report.Mapping.Bookings[b.ID] = row.ID
		report.Imported["bookings"]++
	}
}

func (e *Engine) importBankAccounts(ctx context.Context, accounts []fleet.BankAccount, byPhone, byEmail map[string]string, report *Report) {
	for _, a := range accounts {
		agency := ResolveRef(a.AgencyID, report.Mapping.Users, byPhone, byEmail)
		if !agency.Resolved {
			report.fail("bank_account", a.ID, fmt.Errorf("unresolved agency reference %q", a.AgencyID))
			continue
		}
		now := time.Now().UTC()
		row := remote.BankAccountModel{
			ID:            uuid.NewString(),
			AgencyID:      agency.ID,
			BankName:      a.BankName,
			AccountNumber: a.AccountNumber,
			HolderName:    a.HolderName,
			IFSCCode:      a.IFSCCode,
			IsDefault:     a.IsDefault,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := e.db.WithContext(ctx).Create(&row).Error; err != nil {
			report.fail("bank_account", a.ID, err)
			continue
		}
		report.Mapping.BankAccounts[a.ID] = row.ID
		report.Imported["bank_accounts"]++
	}
}

// verify counts the backend tables after import. The counts are recorded
// and logged for the operator; they are informational and never turn a run
// into a failure on their own.
func (e *Engine) verify(ctx context.Context, report *Report) {
	tables := map[string]any{
		"users":         &remote.UserModel{},
		"user_roles":    &remote.UserRoleModel{},
		"customers":     &remote.CustomerModel{},
		"drivers":       &remote.DriverModel{},
		"admins":        &remote.AdminModel{},
		"addresses":     &remote.AddressModel{},
		"bookings":      &remote.BookingModel{},
		"vehicles":      &remote.VehicleModel{},
		"bank_accounts": &remote.BankAccountModel{},
	}
	for name, model := range tables {
		var n int64
		if err := e.db.WithContext(ctx).Model(model).Count(&n).Error; err != nil {
			report.warnf("verify %s: %v", name, err)
			continue
		}
		report.Verified[name] = n
		e.logger.Info("verified table", zap.String("table", name), zap.Int64("rows", n))
	}
}

func hasAddresses(roles []user.User) bool {
	for _, rec := range roles {
		if rec.Customer != nil && len(rec.Customer.Addresses) > 0 {
			return true
		}
	}
	return false
}
