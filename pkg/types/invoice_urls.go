package types

// InvoiceURLs holds the rendered invoice artifacts the invoice collaborator
// returns. Written back onto the order once generation succeeds; absent until
// then.
type InvoiceURLs struct {
	PDFURL    string `json:"pdf_url,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	QRCodeURL string `json:"qr_code_url,omitempty"`
}

// Empty reports whether no artifact has been recorded yet.
func (u InvoiceURLs) Empty() bool {
	return u.PDFURL == "" && u.ImageURL == "" && u.QRCodeURL == ""
}
