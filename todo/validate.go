package todo

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// MaxTitleLength bounds titles accepted for create and rename.
const MaxTitleLength = 255

// ErrTitleRequired is the message shown when a title is blank after trimming.
const ErrTitleRequired = "Title cannot be empty"

// ErrTitleTooLong is the message shown when a title exceeds MaxTitleLength.
const ErrTitleTooLong = "Title is too long"

// CleanTitle trims raw and validates the result. The trimmed title is
// returned even when validation fails.
func CleanTitle(raw string) (string, error) {
	title := strings.TrimSpace(raw)

	err := validation.Validate(title,
		validation.Required.Error(ErrTitleRequired),
		validation.RuneLength(1, MaxTitleLength),
	)
	if err != nil {
		msg := ErrTitleRequired
		if title != "" {
			msg = ErrTitleTooLong
		}
		return title, newValidationFailure(validation.Errors{"title": err}, msg).
			WithTextCode(TextCodeTitle)
	}
	return title, nil
}
