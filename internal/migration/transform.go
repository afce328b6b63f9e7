package migration

import (
	"strings"

	"github.com/google/uuid"

	"github.com/tankerflow/booking-engine/internal/domain/user"
)

// ConsolidatedUser is one person assembled from every role record sharing a
// contact identity. All roles share the one freshly minted identifier; the
// first record's profile fields are canonical.
type ConsolidatedUser struct {
	NewID     string
	Name      string
	Email     string
	Phone     string
	Password  string
	Roles     []user.User
	LegacyIDs []string
}

// ConsolidateUsers groups role records by contact key (lower-cased email,
// falling back to phone for records without one) and collapses each group
// onto a single new identifier. It returns the groups in first-seen order
// together with the user id mapping from every legacy per-role identifier
// to the group's new identifier.
func ConsolidateUsers(records []user.User) ([]ConsolidatedUser, map[string]string) {
	mapping := make(map[string]string)
	byKey := make(map[string]int)
	var groups []ConsolidatedUser

	for _, rec := range records {
		key := strings.ToLower(strings.TrimSpace(rec.Email))
		if key == "" {
			key = strings.TrimSpace(rec.Phone)
		}
		if key == "" {
			// No contact identity at all: the record stays its own group.
			key = "legacy:" + rec.ID
		}

		idx, exists := byKey[key]
		if !exists {
			groups = append(groups, ConsolidatedUser{
				NewID:    uuid.NewString(),
				Name:     rec.Name,
				Email:    strings.ToLower(strings.TrimSpace(rec.Email)),
				Phone:    rec.Phone,
				Password: rec.Password,
			})
			idx = len(groups) - 1
			byKey[key] = idx
		}

		groups[idx].Roles = append(groups[idx].Roles, rec)
		groups[idx].LegacyIDs = append(groups[idx].LegacyIDs, rec.ID)
		mapping[rec.ID] = groups[idx].NewID
	}

	return groups, mapping
}

// AlternateKeyIndexes builds the phone and email lookup tables consulted
// after the canonical id mapping when resolving legacy user references.
func AlternateKeyIndexes(groups []ConsolidatedUser) (byPhone, byEmail map[string]string) {
	byPhone = make(map[string]string)
	byEmail = make(map[string]string)
	for _, g := range groups {
		if g.Phone != "" {
			if _, taken := byPhone[g.Phone]; !taken {
				byPhone[g.Phone] = g.NewID
			}
		}
		if g.Email != "" {
			if _, taken := byEmail[g.Email]; !taken {
				byEmail[g.Email] = g.NewID
			}
		}
	}
	return byPhone, byEmail
}
