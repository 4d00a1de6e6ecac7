package i18n

// Error codes must match the codes defined in internal/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeCashierNameEmpty               = "CASHIER_NAME_EMPTY"
	CodeCashierEmailInvalid            = "CASHIER_EMAIL_INVALID"
	CodeCashierEmailExists             = "CASHIER_EMAIL_EXISTS"
	CodeCashierHasOpenInvoices         = "CASHIER_HAS_OPEN_INVOICES"
	CodeInvoiceNumberEmpty             = "INVOICE_NUMBER_EMPTY"
	CodeInvoiceNumberExists            = "INVOICE_NUMBER_EXISTS"
	CodeInvoiceCashierEmpty            = "INVOICE_CASHIER_EMPTY"
	CodeInvoiceAmountInvalid           = "INVOICE_AMOUNT_INVALID"
	CodeInvoiceCurrencyInvalid         = "INVOICE_CURRENCY_INVALID"
	CodeInvoiceDueDateInvalid          = "INVOICE_DUE_DATE_INVALID"
	CodeInvoiceInvalidStatusTransition = "INVOICE_INVALID_STATUS_TRANSITION"
	CodeInvoiceStatusDisallowsOp       = "INVOICE_STATUS_DISALLOWS_OPERATION"
	CodeLedgerEntryInvalid             = "LEDGER_ENTRY_INVALID"
	CodeLedgerActorUnavailable         = "LEDGER_ACTOR_UNAVAILABLE"
	CodeRequestInvalid                 = "REQUEST_INVALID"
	CodeTenantInvalid                  = "TENANT_INVALID"
	CodeFilterInvalid                  = "FILTER_INVALID"
	CodePageTokenInvalid               = "PAGE_TOKEN_INVALID"
	CodeUnauthenticated                = "UNAUTHENTICATED"
	CodeRateLimited                    = "RATE_LIMITED"
	CodeNotFound                       = "NOT_FOUND"
	CodeVersionConflict                = "VERSION_CONFLICT"
)

var enUSCatalog = &Catalog{
	locale: "en-US",
	messages: map[Code]string{
		// Cashier errors
		CodeCashierNameEmpty:       "Cashier name cannot be empty",
		CodeCashierEmailInvalid:    "Cashier email address is not valid",
		CodeCashierEmailExists:     "A cashier with email {{.Email}} already exists",
		CodeCashierHasOpenInvoices: "Cashier has {{.OpenInvoices}} open invoices and cannot be deleted",

		// Invoice errors
		CodeInvoiceNumberEmpty:             "Invoice number cannot be empty",
		CodeInvoiceNumberExists:            "An invoice with number {{.Number}} already exists",
		CodeInvoiceCashierEmpty:            "Cashier ID is required for invoice",
		CodeInvoiceAmountInvalid:           "Invoice amount must be greater than zero",
		CodeInvoiceCurrencyInvalid:         "Currency {{.Currency}} is not a valid ISO 4217 code",
		CodeInvoiceDueDateInvalid:          "Invoice due date is not valid",
		CodeInvoiceInvalidStatusTransition: "Cannot transition invoice from {{.FromStatus}} to {{.ToStatus}}",
		CodeInvoiceStatusDisallowsOp:       "Invoice status {{.Status}} does not allow {{.Operation}}",

		// Ledger errors
		CodeLedgerEntryInvalid:     "Ledger entry is not valid",
		CodeLedgerActorUnavailable: "Ledger for tenant {{.Tenant}} is temporarily unavailable",

		// Request errors
		CodeRequestInvalid:   "Request body could not be parsed",
		CodeTenantInvalid:    "Tenant identifier is not valid",
		CodeFilterInvalid:    "List filter could not be parsed",
		CodePageTokenInvalid: "Page token is not valid",
		CodeUnauthenticated:  "Authentication is required",
		CodeRateLimited:      "Too many requests, slow down",

		// Storage errors
		CodeNotFound:        "The requested resource was not found",
		CodeVersionConflict: "The resource was modified concurrently, retry with the latest version",
	},
}
