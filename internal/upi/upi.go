// Package upi validates UPI payment fields and builds upi://pay deep links.
package upi

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

const (
	// DefaultPayeeName is used when a payment request carries no payee name.
	DefaultPayeeName = "UPI Payment"
	// DefaultNote is used when a payment request carries no transaction note.
	DefaultNote = "Payment"

	// Currency is fixed: UPI settles in Indian rupees only.
	Currency = "INR"
)

var (
	// idPattern accepts a VPA of the form <local-part>@<bank-handle>. The
	// local part allows dots, hyphens and underscores; the handle is purely
	// alphabetic. Syntactic check only, no bank-side verification.
	idPattern = regexp.MustCompile(`^[A-Za-z0-9.\-_]{2,256}@[A-Za-z]{2,64}$`)

	// amountPattern accepts a plain decimal with at most two fractional
	// digits. No sign, no exponent, no grouping.
	amountPattern = regexp.MustCompile(`^\d+(\.\d{1,2})?$`)
)

// IsValidID reports whether s is a syntactically valid VPA (name@bank).
func IsValidID(s string) bool {
	return idPattern.MatchString(s)
}

// IsValidAmount reports whether s is a positive decimal amount with at most
// two fractional digits. Zero is rejected.
func IsValidAmount(s string) bool {
	if !amountPattern.MatchString(s) {
		return false
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return false
	}

	return value > 0
}

// Defaults carries the fallback payee name and note applied to blank fields.
type Defaults struct {
	PayeeName string
	Note      string
}

// StandardDefaults returns the built-in fallback values.
func StandardDefaults() Defaults {
	return Defaults{
		PayeeName: DefaultPayeeName,
		Note:      DefaultNote,
	}
}

func (d Defaults) payeeName() string {
	if strings.TrimSpace(d.PayeeName) == "" {
		return DefaultPayeeName
	}
	return d.PayeeName
}

func (d Defaults) note() string {
	if strings.TrimSpace(d.Note) == "" {
		return DefaultNote
	}
	return d.Note
}

// PaymentRequest holds the validated fields of a single /qr command. It is
// built per incoming command and discarded after the reply is sent.
type PaymentRequest struct {
	UPIID     string
	Amount    string
	PayeeName string
	Note      string
}

// NewPaymentRequest assembles a request, substituting defaults for blank
// payee name and note. The UPI id and amount are stored verbatim; callers
// validate them with IsValidID and IsValidAmount before building a link.
func NewPaymentRequest(upiID, amount, payeeName, note string, defaults Defaults) PaymentRequest {
	if strings.TrimSpace(payeeName) == "" {
		payeeName = defaults.payeeName()
	}
	if strings.TrimSpace(note) == "" {
		note = defaults.note()
	}

	return PaymentRequest{
		UPIID:     strings.TrimSpace(upiID),
		Amount:    strings.TrimSpace(amount),
		PayeeName: payeeName,
		Note:      note,
	}
}

// Link renders the upi://pay deep link consumed by wallet apps. Parameter
// order and encoding are part of the wire contract and must stay stable:
// pa, pn, am, cu, tn, with only the free-text fields percent-encoded.
//
// The pa field is deliberately NOT encoded: BHIM rejects a percent-encoded
// `@` in the VPA, so it is passed through as plain name@bank.
func (r PaymentRequest) Link() string {
	var b strings.Builder
	b.WriteString("upi://pay?pa=")
	b.WriteString(r.UPIID)
	b.WriteString("&pn=")
	b.WriteString(encodeText(r.PayeeName))
	b.WriteString("&am=")
	b.WriteString(r.Amount)
	b.WriteString("&cu=")
	b.WriteString(Currency)
	b.WriteString("&tn=")
	b.WriteString(encodeText(r.Note))

	return b.String()
}

// encodeText percent-encodes a free-text field, using %20 for spaces so the
// output matches what wallet apps were captured accepting.
func encodeText(s string) string {
	return strings.ReplaceAll(url.QueryEscape(strings.TrimSpace(s)), "+", "%20")
}
