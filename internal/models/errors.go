package models

import "errors"

var (
	ErrSourceUnavailable  = errors.New("source unavailable")
	ErrMalformedRow       = errors.New("malformed row")
	ErrValidationRejected = errors.New("validation rejected")
	ErrPersistence        = errors.New("persistence failure")
	ErrConfiguration      = errors.New("configuration error")
)

// ErrorKind names the taxonomy class of err for reports.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrSourceUnavailable):
		return "SourceUnavailable"
	case errors.Is(err, ErrMalformedRow):
		return "MalformedRow"
	case errors.Is(err, ErrValidationRejected):
		return "ValidationRejected"
	case errors.Is(err, ErrPersistence):
		return "PersistenceFailure"
	case errors.Is(err, ErrConfiguration):
		return "ConfigurationError"
	}
	return "Unclassified"
}
