package identifier

import (
	"regexp"

	"github.com/clinicgen/clinicgen/internal/domain/dictionary"
	"github.com/clinicgen/clinicgen/pkg/checksum"
)

var (
	passportPatterns = map[string]*regexp.Regexp{
		dictionary.CountryRU: regexp.MustCompile(`^\d{4} \d{6}$`),
		dictionary.CountryBY: regexp.MustCompile(`^[A-Z]{2}\d{7}$`),
		dictionary.CountryKZ: regexp.MustCompile(`^N\d{8}$`),
	}

	snilsPattern          = regexp.MustCompile(`^\d{3}-\d{3}-\d{3} \d{2}$`)
	iinPattern            = regexp.MustCompile(`^\d{12}$`)
	cardPattern           = regexp.MustCompile(`^\d{16}$`)
	departmentCodePattern = regexp.MustCompile(`^\d{3}-\d{3}$`)
)

// ValidPassport reports whether passport matches the format of the country.
func ValidPassport(country, passport string) bool {
	re, ok := passportPatterns[country]
	return ok && re.MatchString(passport)
}

// DetectPassportCountry returns the country whose format passport matches,
// or "" if none does.
func DetectPassportCountry(passport string) string {
	for _, code := range []string{dictionary.CountryRU, dictionary.CountryBY, dictionary.CountryKZ} {
		if passportPatterns[code].MatchString(passport) {
			return code
		}
	}
	return ""
}

// ValidNationalID checks format and checksum for the identifier's scheme.
func ValidNationalID(id NationalID) bool {
	switch id.Scheme {
	case dictionary.SchemeSNILS:
		return ValidSNILS(id.Value)
	case dictionary.SchemeIIN:
		return iinPattern.MatchString(id.Value) && checksum.IINValid(id.Value)
	}
	return false
}

// ValidSNILS checks the "XXX-XXX-XXX YY" layout and the control number.
func ValidSNILS(s string) bool {
	return snilsPattern.MatchString(s) && checksum.SNILSValid(s)
}

// ValidCard reports whether number is 16 digits (spaces allowed) passing Luhn.
func ValidCard(number string) bool {
	raw := checksum.StripSeparators(number)
	return cardPattern.MatchString(raw) && checksum.LuhnValid(raw)
}

// ValidDepartmentCode reports whether code has the "DDD-DDD" layout.
func ValidDepartmentCode(code string) bool {
	return departmentCodePattern.MatchString(code)
}
