package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Field names of the persisted profile schema. The localized name is the
// canonical one; alternates are accepted on input only.
const (
	FieldEmail        = "email"
	FieldFullName     = "nomComplet"
	FieldPhone        = "telephone"
	FieldDepartment   = "departement"
	FieldWorkLocation = "lieuDeTravail"
	FieldHireDate     = "dateEmbauche"
	FieldManager      = "manager"
	FieldWorkSchedule = "horaireDeTravail"
	FieldCompanyID    = "companyId"
	FieldRole         = "role"
	FieldPasswordHash = "passwordHash"
)

// fieldAliases lists accepted alternates per canonical field, most specific first.
var fieldAliases = map[string][]string{
	FieldFullName:     {"fullName", "name"},
	FieldPhone:        {"phone"},
	FieldDepartment:   {"department"},
	FieldWorkLocation: {"workLocation"},
	FieldHireDate:     {"hireDate"},
	FieldWorkSchedule: {"workSchedule"},
}

// mirroredAliases are written next to their canonical field in every stored
// record, because other readers of the storage look them up by either name.
var mirroredAliases = map[string]string{
	FieldPhone:      "phone",
	FieldDepartment: "department",
}

var aliasToCanonical = func() map[string]string {
	out := make(map[string]string)
	for canonical, aliases := range fieldAliases {
		for _, a := range aliases {
			out[a] = canonical
		}
	}
	return out
}()

var hiddenFields = map[string]struct{}{
	FieldPasswordHash: {},
	"password":        {},
}

// Record is one loosely-typed stored entry.
type Record map[string]any

// Clone returns a shallow copy.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Email returns the merge key of the record.
func (r Record) Email() string {
	return stringValue(r[FieldEmail])
}

// String renders the value at key as text.
func (r Record) String(key string) string {
	return stringValue(r[key])
}

// Populated reports whether the value counts as set.
func Populated(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(val) != ""
	default:
		return true
	}
}

// CanonicalField maps an input field name to its canonical name.
func CanonicalField(name string) string {
	if canonical, ok := aliasToCanonical[name]; ok {
		return canonical
	}
	return name
}

// NormalizeFields folds alias names into canonical ones. When both a
// canonical name and an alias are populated the canonical value wins; among
// aliases the earlier one in fieldAliases wins.
func NormalizeFields(in map[string]any) Record {
	out := make(Record, len(in))
	for k, v := range in {
		if _, isAlias := aliasToCanonical[k]; isAlias {
			continue
		}
		out[k] = v
	}
	for canonical, aliases := range fieldAliases {
		if Populated(out[canonical]) {
			continue
		}
		for _, a := range aliases {
			if v, ok := in[a]; ok && Populated(v) {
				out[canonical] = v
				break
			}
		}
	}
	return out
}

// MergeRecords overlays normalized records in order; a populated value in a
// later record replaces the earlier one.
func MergeRecords(layers ...Record) Record {
	merged := Record{}
	for _, layer := range layers {
		for k, v := range NormalizeFields(layer) {
			if Populated(v) || !Populated(merged[k]) {
				merged[k] = v
			}
		}
	}
	return merged
}

// ApplyPatch writes canonical patch values into a stored record, keeping
// mirrored aliases and any alias the record already carries in sync.
func ApplyPatch(target Record, patch Record) {
	for k, v := range patch {
		target[k] = v
		for _, a := range fieldAliases[k] {
			if _, has := target[a]; has || mirroredAliases[k] == a {
				target[a] = v
			}
		}
	}
}

// UserProfile is the reconciled view of one user.
type UserProfile struct {
	Email        string
	FullName     string
	Phone        string
	Department   string
	WorkLocation string
	HireDate     string
	Manager      string
	WorkSchedule string
	CompanyID    string
	Role         string
	Extra        map[string]any
}

// ProfileFromRecord projects a record onto the canonical profile fields.
// Unmodeled fields are kept in Extra; credentials are dropped.
func ProfileFromRecord(r Record) UserProfile {
	n := NormalizeFields(r)
	p := UserProfile{
		Email:        stringValue(n[FieldEmail]),
		FullName:     stringValue(n[FieldFullName]),
		Phone:        stringValue(n[FieldPhone]),
		Department:   stringValue(n[FieldDepartment]),
		WorkLocation: stringValue(n[FieldWorkLocation]),
		HireDate:     stringValue(n[FieldHireDate]),
		Manager:      stringValue(n[FieldManager]),
		WorkSchedule: stringValue(n[FieldWorkSchedule]),
		CompanyID:    stringValue(n[FieldCompanyID]),
		Role:         stringValue(n[FieldRole]),
	}
	for k, v := range n {
		if isModeled(k) {
			continue
		}
		if _, hidden := hiddenFields[k]; hidden {
			continue
		}
		if p.Extra == nil {
			p.Extra = make(map[string]any)
		}
		p.Extra[k] = v
	}
	return p
}

// Record renders the profile in the persisted schema, with both names of
// every mirrored alias pair populated.
func (p UserProfile) Record() Record {
	r := Record{}
	for k, v := range p.Extra {
		r[k] = v
	}
	set := func(k, v string) {
		if v != "" {
			r[k] = v
		}
	}
	set(FieldEmail, p.Email)
	set(FieldFullName, p.FullName)
	set(FieldPhone, p.Phone)
	set(FieldDepartment, p.Department)
	set(FieldWorkLocation, p.WorkLocation)
	set(FieldHireDate, p.HireDate)
	set(FieldManager, p.Manager)
	set(FieldWorkSchedule, p.WorkSchedule)
	set(FieldCompanyID, p.CompanyID)
	set(FieldRole, p.Role)
	for canonical, alias := range mirroredAliases {
		if v, ok := r[canonical]; ok {
			r[alias] = v
		}
	}
	return r
}

// MarshalJSON encodes the persisted schema.
func (p UserProfile) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any(p.Record()))
}

// UnmarshalJSON accepts any alias spelling.
func (p *UserProfile) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = ProfileFromRecord(raw)
	return nil
}

func isModeled(k string) bool {
	switch k {
	case FieldEmail, FieldFullName, FieldPhone, FieldDepartment, FieldWorkLocation,
		FieldHireDate, FieldManager, FieldWorkSchedule, FieldCompanyID, FieldRole:
		return true
	}
	return false
}

func stringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
