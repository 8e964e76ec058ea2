package healthcheck

import (
	"net/url"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// ValidationError reports input that was rejected before any request was made.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// ValidateTarget checks that target is an absolute http or https URL.
func ValidateTarget(target string) error {
	err := validation.Validate(target,
		validation.Required,
		is.RequestURL,
		validation.By(httpScheme),
	)
	if err != nil {
		return &ValidationError{Field: "url", Err: err}
	}
	return nil
}

func httpScheme(value interface{}) error {
	raw, _ := value.(string)

	u, err := url.Parse(raw)
	if err != nil {
		return validation.NewError("validation_invalid_url", "must be a valid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return validation.NewError("validation_invalid_scheme", "URL must use http or https scheme")
	}
	if u.Host == "" {
		return validation.NewError("validation_missing_host", "URL must have a host")
	}
	return nil
}
