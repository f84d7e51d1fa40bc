// Package services holds the marketplace core: the chat engine, name
// resolution, repair orders with their invoices, the invoice stream and the
// service-request workflow.
//
// Lookups in this package return an absent value rather than an error when a
// document does not exist, and read paths that feed realtime views degrade to
// empty lists. The errors below are for the write paths the HTTP layer needs
// to tell apart.
package services

import (
	"errors"

	"github.com/tbourn/go-repair-backend/internal/domain"
)

var (
	// ErrEmptyMessage is returned when a message text is blank.
	ErrEmptyMessage = errors.New("message text is empty")

	// ErrMessageTooLong is returned when a message text exceeds the
	// service's MaxMessageRunes.
	ErrMessageTooLong = errors.New("message text is too long")

	// ErrInvalidParticipants is returned when a chat is requested without a
	// client or business id.
	ErrInvalidParticipants = errors.New("client and business ids are required")

	// ErrOrderNotFound indicates that the repair order does not exist.
	ErrOrderNotFound = errors.New("repair order not found")

	// ErrInvoiceNotFound indicates that the invoice does not exist.
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrRequestNotFound indicates that the service request does not exist.
	ErrRequestNotFound = errors.New("service request not found")

	// ErrBusinessNotFound indicates that the business does not exist.
	ErrBusinessNotFound = errors.New("business not found")

	// ErrVersionConflict is returned when an order changed since the version
	// the caller based its edit on.
	ErrVersionConflict = errors.New("order was modified concurrently")

	// ErrInvalidStatus is returned for an unknown status or a transition the
	// workflow does not allow.
	ErrInvalidStatus = errors.New("invalid status transition")

	// ErrInvalidAmount is returned when a part price or the labor cost is
	// negative, or when an amount or the total exceeds domain.MaxAmount.
	ErrInvalidAmount = domain.ErrInvalidAmount

	// ErrEmptyUpdate is returned when an order edit carries no fields.
	ErrEmptyUpdate = errors.New("no fields to update")
)
