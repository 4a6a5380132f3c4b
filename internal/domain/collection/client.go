package collection

// Client identifies the person to call about outstanding invoices. Immutable
// during a cycle; sourced from the ledger alongside its invoices.
type Client struct {
	// Ref is the ledger-side client identifier
	Ref string
	// Name is the contact's display name
	Name string
	// CompanyName is the contact's company, when known
	CompanyName string
	// PhoneNumber is the contact number in E.164 form (+919876543210)
	PhoneNumber string
	// PreferredLanguage is the language for the call script (e.g. "hi", "en")
	PreferredLanguage string
	// SheetID is the ledger sheet this client's invoices live in
	SheetID string
}
