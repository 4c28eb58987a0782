package models

import "errors"

var (
	// ErrNotFound is returned when a referenced definition, instance, alert type or user is absent.
	ErrNotFound = errors.New("not found")
	// ErrInvalidPeriodFormat is returned when a period label does not match its frequency.
	ErrInvalidPeriodFormat = errors.New("invalid period format")
	// ErrUnsupportedFrequency is returned for frequency values outside the known set.
	ErrUnsupportedFrequency = errors.New("unsupported frequency")
	// ErrDeliveryFailure wraps notifier and file storage errors.
	ErrDeliveryFailure = errors.New("delivery failure")
	// ErrInvalidDefinition is returned when a report definition fails validation.
	ErrInvalidDefinition = errors.New("invalid report definition")
	// ErrAlreadyApproved is returned when an approved instance is submitted again.
	ErrAlreadyApproved = errors.New("instance already approved")
	// ErrInvalidStatus is returned for unknown statuses and disallowed status transitions.
	ErrInvalidStatus = errors.New("invalid instance status")
	// ErrDuplicatePeriod is returned when a definition already has an instance for a period.
	ErrDuplicatePeriod = errors.New("period already exists")
	// ErrInvalidInput is returned for malformed request values.
	ErrInvalidInput = errors.New("invalid input")
)
