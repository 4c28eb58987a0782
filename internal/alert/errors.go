package alert

import "errors"

// ErrInvalidAlertType is returned when an alert type fails validation.
var ErrInvalidAlertType = errors.New("invalid alert type")
