package dto

import (
	"html"
	"reflect"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

var (
	safeStringRe = regexp.MustCompile(`^[a-zA-Z0-9_\-\.]+$`)

	// Bech32-style: lowercase human-readable prefix, "1", lowercase data part.
	ledgerAddressRe = regexp.MustCompile(`^[a-z]{1,20}1[02-9ac-hj-np-z]{6,90}$`)

	// Positive integer in base units with no sign, decimals or leading zeros.
	baseUnitsRe = regexp.MustCompile(`^[1-9][0-9]*$`)
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("safe_id", validateSafeID)
		_ = v.RegisterValidation("ledger_address", validateLedgerAddress)
		_ = v.RegisterValidation("base_units", validateBaseUnits)
	}
}

// validateSafeID allows alphanumeric, underscore, dash, and dot.
func validateSafeID(fl validator.FieldLevel) bool {
	return safeStringRe.MatchString(fl.Field().String())
}

func validateLedgerAddress(fl validator.FieldLevel) bool {
	return IsLedgerAddress(fl.Field().String())
}

func validateBaseUnits(fl validator.FieldLevel) bool {
	return IsBaseUnits(fl.Field().String())
}

// IsLedgerAddress reports whether s looks like a ledger account address.
// Checksums are not verified; a wrong address simply never matches.
func IsLedgerAddress(s string) bool {
	return ledgerAddressRe.MatchString(s)
}

// IsBaseUnits reports whether s is a canonical positive integer amount.
func IsBaseUnits(s string) bool {
	return baseUnitsRe.MatchString(s)
}

// SanitizeStruct trims whitespace and HTML-escapes every exported string
// field (including *string) of a struct pointer.
func SanitizeStruct(v interface{}) {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Struct {
		return
	}
	sanitizeFields(rv.Elem())
}

func sanitizeFields(rv reflect.Value) {
	for i := 0; i < rv.NumField(); i++ {
		f := rv.Field(i)
		if !f.CanSet() {
			continue
		}
		switch f.Kind() {
		case reflect.String:
			f.SetString(sanitize(f.String()))
		case reflect.Ptr:
			if f.IsNil() {
				continue
			}
			elem := f.Elem()
			if elem.Kind() == reflect.String {
				elem.SetString(sanitize(elem.String()))
			}
		}
	}
}

func sanitize(s string) string {
	return html.EscapeString(strings.TrimSpace(s))
}
