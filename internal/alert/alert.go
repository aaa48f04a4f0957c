// Package alert computes budget health warnings over the spend chain.
// Alerts are derived on every request from the records the caller can
// read; nothing is stored.
package alert

// Severity orders alerts for display.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Alert is one finding, tied to the record it is about.
type Alert struct {
	Type       string   `json:"type"`
	Severity   Severity `json:"severity"`
	Message    string   `json:"message"`
	RecordType string   `json:"record_type"`
	RecordID   string   `json:"record_id"`
}

const (
	// TypeLowBalance flags an open purchase order whose goods receipts
	// have consumed nearly the whole total amount.
	TypeLowBalance = "low_po_balance"
	// TypeNoReceiptThisMonth flags an open purchase order with no goods
	// receipt dated in the current month.
	TypeNoReceiptThisMonth = "no_receipt_this_month"
	// TypeStaleAllocation flags an active resource allocation whose
	// validity window does not cover today.
	TypeStaleAllocation = "stale_allocation"
)
