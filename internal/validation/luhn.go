package validation

import (
	"strconv"
	"strings"
)

// LuhnValid validates a card number using the Luhn algorithm.
func LuhnValid(cardNum string) bool {
	cardNum = strings.ReplaceAll(cardNum, " ", "")
	if len(cardNum) < 13 || len(cardNum) > 19 {
		return false
	}

	sum := 0
	isSecond := false

	// Process digits from right to left.
	for i := len(cardNum) - 1; i >= 0; i-- {
		digit, err := strconv.Atoi(string(cardNum[i]))
		if err != nil {
			return false // non-digit character
		}

		if isSecond {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}

		sum += digit
		isSecond = !isSecond
	}

	return sum%10 == 0
}
