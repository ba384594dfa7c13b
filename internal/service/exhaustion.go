package service

import (
	"regexp"
	"strconv"
	"strings"
)

var digitRun = regexp.MustCompile(`\d[\d.,]*`)

// DeclaredListSize extracts the declared count embedded in a source-list
// label, e.g. "500,000numberIT.xls" -> 500000. It takes the largest
// contiguous digit run with thousands separators stripped. Fragile by
// convention: if the label carries no digits, the size is undeterminable
// and ok is false.
func DeclaredListSize(label string) (size int, ok bool) {
	best := ""
	for _, run := range digitRun.FindAllString(label, -1) {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, run)
		if len(digits) > len(best) {
			best = digits
		}
	}
	if best == "" {
		return 0, false
	}
	n, err := strconv.Atoi(best)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ListExhausted reports whether the processed count has reached the
// declared size of the attached list. Undeterminable sizes are treated as
// not exhausted. This is a UI-facing signal only; it never forces a
// transition on its own.
func ListExhausted(label string, processed int) bool {
	size, ok := DeclaredListSize(label)
	if !ok {
		return false
	}
	return processed >= size
}
