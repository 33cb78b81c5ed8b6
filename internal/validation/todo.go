// Package validation computes field constraint violations before persistence.
package validation

import (
	"errors"
	"strconv"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
)

// MaxTitleLength is the longest trimmed title accepted, in characters.
const MaxTitleLength = 255

const (
	MsgTitleRequired = "Title is required"
	MsgTitleTooLong  = "Title must be less than 255 characters"
)

var (
	validate  = validator.New()
	titleRule = "required,max=" + strconv.Itoa(MaxTitleLength)
)

// titleMessages maps the failing validator tag to the violation reported to callers.
var titleMessages = map[string]string{
	"required": MsgTitleRequired,
	"max":      MsgTitleTooLong,
}

// Title returns the ordered violations for a candidate title. A nil title is
// treated as absent. An empty result means the title is valid.
func Title(title *string) []string {
	if title == nil {
		return []string{MsgTitleRequired}
	}
	err := validate.Var(NormalizeTitle(*title), titleRule)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return []string{MsgTitleRequired}
	}
	// validator stops at the first failing tag, so required always wins over max.
	if msg, ok := titleMessages[fieldErrs[0].Tag()]; ok {
		return []string{msg}
	}
	return []string{MsgTitleRequired}
}

// NormalizeTitle strips leading and trailing whitespace, byte order marks
// included; internal whitespace is kept.
func NormalizeTitle(title string) string {
	return strings.TrimFunc(title, isTitlePadding)
}

func isTitlePadding(r rune) bool {
	return unicode.IsSpace(r) || r == '\ufeff'
}
