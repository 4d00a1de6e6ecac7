// Package errors provides structured error handling with i18n support.
package errors

import (
	"net/http"

	"google.golang.org/grpc/codes"
)

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Cashier errors
	CodeCashierNameEmpty       Code = "CASHIER_NAME_EMPTY"
	CodeCashierEmailInvalid    Code = "CASHIER_EMAIL_INVALID"
	CodeCashierEmailExists     Code = "CASHIER_EMAIL_EXISTS"
	CodeCashierHasOpenInvoices Code = "CASHIER_HAS_OPEN_INVOICES"

	// Invoice errors
	CodeInvoiceNumberEmpty             Code = "INVOICE_NUMBER_EMPTY"
	CodeInvoiceNumberExists            Code = "INVOICE_NUMBER_EXISTS"
	CodeInvoiceCashierEmpty            Code = "INVOICE_CASHIER_EMPTY"
	CodeInvoiceAmountInvalid           Code = "INVOICE_AMOUNT_INVALID"
	CodeInvoiceCurrencyInvalid         Code = "INVOICE_CURRENCY_INVALID"
	CodeInvoiceDueDateInvalid          Code = "INVOICE_DUE_DATE_INVALID"
	CodeInvoiceInvalidStatusTransition Code = "INVOICE_INVALID_STATUS_TRANSITION"
	CodeInvoiceStatusDisallowsOp       Code = "INVOICE_STATUS_DISALLOWS_OPERATION"

	// Ledger errors
	CodeLedgerEntryInvalid     Code = "LEDGER_ENTRY_INVALID"
	CodeLedgerActorUnavailable Code = "LEDGER_ACTOR_UNAVAILABLE"

	// Request errors
	CodeRequestInvalid   Code = "REQUEST_INVALID"
	CodeTenantInvalid    Code = "TENANT_INVALID"
	CodeFilterInvalid    Code = "FILTER_INVALID"
	CodePageTokenInvalid Code = "PAGE_TOKEN_INVALID"
	CodeUnauthenticated  Code = "UNAUTHENTICATED"
	CodeRateLimited      Code = "RATE_LIMITED"

	// Storage errors
	CodeNotFound        Code = "NOT_FOUND"
	CodeVersionConflict Code = "VERSION_CONFLICT"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeCashierNameEmpty,
		CodeCashierEmailInvalid,
		CodeInvoiceNumberEmpty,
		CodeInvoiceCashierEmpty,
		CodeInvoiceAmountInvalid,
		CodeInvoiceCurrencyInvalid,
		CodeInvoiceDueDateInvalid,
		CodeLedgerEntryInvalid,
		CodeRequestInvalid,
		CodeTenantInvalid,
		CodeFilterInvalid,
		CodePageTokenInvalid:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodeCashierHasOpenInvoices,
		CodeInvoiceInvalidStatusTransition,
		CodeInvoiceStatusDisallowsOp:
		return codes.FailedPrecondition

	// AlreadyExists - uniqueness violations
	case CodeCashierEmailExists,
		CodeInvoiceNumberExists:
		return codes.AlreadyExists

	// Aborted - optimistic concurrency conflicts
	case CodeVersionConflict:
		return codes.Aborted

	// NotFound - resource doesn't exist
	case CodeNotFound:
		return codes.NotFound

	case CodeUnauthenticated:
		return codes.Unauthenticated

	case CodeRateLimited:
		return codes.ResourceExhausted

	case CodeLedgerActorUnavailable:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}

// HTTPStatus maps domain codes to HTTP status codes for REST responses.
func (c Code) HTTPStatus() int {
	switch c.GRPCCode() {
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.FailedPrecondition:
		return http.StatusConflict
	case codes.AlreadyExists, codes.Aborted:
		return http.StatusConflict
	case codes.NotFound:
		return http.StatusNotFound
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
