// Package validation содержит проверки пользовательского ввода.
package validation

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// defaultRegion определяет регион для номеров, записанных в национальном формате.
const defaultRegion = "RU"

// IsValidPhoneNumber проверяет номер телефона по правилам нумерации:
// номер в международном формате принимается для любой страны, номер
// в национальном формате трактуется как российский.
func IsValidPhoneNumber(number string) bool {
	num, err := phonenumbers.Parse(strings.TrimSpace(number), defaultRegion)
	if err != nil {
		return false
	}
	return phonenumbers.IsValidNumber(num)
}
