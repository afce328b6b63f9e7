package migration

// Resolution is the tagged outcome of a foreign-key lookup. Making
// unresolved references an explicit value keeps the ambiguity of legacy
// data visible and testable instead of hiding it behind chained
// fallthrough conditions.
type Resolution struct {
	ID       string
	Resolved bool
}

// Resolved wraps a successfully resolved identifier.
func Resolved(id string) Resolution { return Resolution{ID: id, Resolved: true} }

// Unresolved is the outcome of a reference no lookup table could resolve.
var Unresolved = Resolution{}

// ResolveRef resolves a legacy reference through an ordered list of lookup
// tables: the canonical id mapping first, then any declared alternate-key
// indexes (phone, email). The first table containing the reference wins.
func ResolveRef(ref string, tables ...map[string]string) Resolution {
	if ref == "" {
		return Unresolved
	}
	for _, table := range tables {
		if id, ok := table[ref]; ok {
			return Resolved(id)
		}
	}
	return Unresolved
}
