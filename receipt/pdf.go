package receipt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/go-pdf/fpdf"
)

const (
	pageMargin = 15.0
	pageWidth  = 210.0
	bodyWidth  = pageWidth - 2*pageMargin
	labelWidth = 55.0
	// footerTop is where the footer rule is drawn. Body content stops
	// above contentLimit.
	footerTop    = 268.0
	contentLimit = footerTop - 2

	maxRowLines     = 2
	maxAddressLines = 4
	maxTaxLines     = 3
	ellipsis        = "\u2026"
)

var (
	brandColor = [3]int{0, 102, 94}
	mutedColor = [3]int{110, 110, 110}
	textColor  = [3]int{33, 33, 33}
	panelColor = [3]int{232, 244, 242}
)

// Renderer lays out the single-page A4 receipt.
type Renderer struct {
	Logos LogoResolver
	// Fonts are tried in order for text the bundled DejaVu face cannot
	// draw.
	Fonts  []*Font
	Logger *slog.Logger
}

type receiptPDF struct {
	pdf   *fpdf.Fpdf
	faces []*Font
	added map[string]bool
}

// Render produces the receipt PDF. The same data always yields the same
// bytes: document dates are pinned to the payment completion time.
func (r Renderer) Render(ctx context.Context, data *ReceiptData) ([]byte, error) {
	if data == nil {
		return nil, fmt.Errorf("render receipt: no data")
	}
	pdf, _, err := r.layout(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("render receipt %s: %w", data.ReceiptNumber, err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render receipt %s: %w", data.ReceiptNumber, err)
	}
	return buf.Bytes(), nil
}

// layout draws the page and returns the document along with the lowest
// point the body reached before the footer.
func (r Renderer) layout(ctx context.Context, data *ReceiptData) (*fpdf.Fpdf, float64, error) {
	bundled, err := bundledFace()
	if err != nil {
		return nil, 0, err
	}
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(true)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(data.CompletedAt)
	pdf.SetModificationDate(data.CompletedAt)
	pdf.SetTitle("Receipt "+data.ReceiptNumber, true)
	pdf.SetAuthor(data.Organization.Name, true)
	pdf.SetCreator(data.Organization.Name, true)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(false, pageMargin)
	pdf.AddPage()

	doc := receiptPDF{
		pdf:   pdf,
		faces: append([]*Font{bundled}, r.Fonts...),
		added: map[string]bool{},
	}
	logoWidth := r.placeLogo(ctx, pdf, data)

	doc.header(data, logoWidth)
	doc.donorSection(data)
	doc.amountBlock(data)
	doc.paymentSection(data)

	var tax []string
	if data.TaxDeductible() {
		tax = doc.taxLines(data)
	}
	if strings.TrimSpace(pdfText(data.Message)) != "" {
		doc.messageBlock(data.Message, contentLimit-taxHeight(tax))
	}
	if len(tax) > 0 {
		doc.taxNotice(tax)
	}
	bottom := pdf.GetY()
	doc.footer(data)

	if err := pdf.Error(); err != nil {
		return nil, 0, err
	}
	return pdf, bottom, nil
}

// placeLogo embeds the logo at the top-left corner and returns the width it
// occupies, or 0 when the logo could not be used.
func (r Renderer) placeLogo(ctx context.Context, pdf *fpdf.Fpdf, data *ReceiptData) float64 {
	png, err := r.Logos.Resolve(ctx, data.Organization.Logo)
	if err != nil {
		if !errors.Is(err, errNoLogo) {
			r.logger().Warn("receipt logo omitted", "receipt_number", data.ReceiptNumber, "error", err)
		}
		return 0
	}
	opts := fpdf.ImageOptions{ImageType: "PNG", ReadDpi: false}
	pdf.RegisterImageOptionsReader("logo", opts, bytes.NewReader(png))
	if !pdf.Ok() {
		r.logger().Warn("receipt logo omitted", "receipt_number", data.ReceiptNumber, "error", pdf.Error())
		pdf.ClearError()
		return 0
	}
	const w = 24.0
	pdf.ImageOptions("logo", pageMargin, pageMargin, w, 0, false, opts, 0, "")
	return w + 4
}

func (r Renderer) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

func (d receiptPDF) color(c [3]int) {
	d.pdf.SetTextColor(c[0], c[1], c[2])
}

// font selects the first face that can draw text, registering it with
// the document on first use.
func (d receiptPDF) font(style string, size float64, text string) {
	f := chooseFont(d.faces, pdfText(text))
	if key := f.Family + style; !d.added[key] {
		d.pdf.AddUTF8FontFromBytes(f.Family, style, f.styles[style])
		d.added[key] = true
	}
	d.pdf.SetFont(f.Family, style, size)
}

// fit wraps text to width using the current font and keeps at most
// maxLines, ending the last kept line with an ellipsis. Line breaks in
// the input are folded into spaces.
func (d receiptPDF) fit(text string, width float64, maxLines int) []string {
	text = strings.Join(strings.Fields(pdfText(text)), " ")
	if text == "" || maxLines < 1 {
		return nil
	}
	lines := d.pdf.SplitText(text, width)
	if len(lines) <= maxLines {
		return lines
	}
	lines = lines[:maxLines]
	last := []rune(strings.TrimRightFunc(lines[maxLines-1], unicode.IsSpace))
	room := width - 2*d.pdf.GetCellMargin()
	for len(last) > 0 && d.pdf.GetStringWidth(string(last)+ellipsis) > room {
		last = last[:len(last)-1]
	}
	lines[maxLines-1] = strings.TrimRightFunc(string(last), unicode.IsSpace) + ellipsis
	return lines
}

// line writes text clipped to a single line.
func (d receiptPDF) line(style string, size, w, h float64, text, align string) {
	d.font(style, size, text)
	out := d.fit(text, w, 1)
	if len(out) == 0 {
		out = []string{""}
	}
	d.pdf.CellFormat(w, h, out[0], "", 2, align, false, 0, "")
}

func (d receiptPDF) header(data *ReceiptData, logoWidth float64) {
	pdf := d.pdf
	org := data.Organization
	left := pageMargin + logoWidth
	orgWidth := 110.0 - logoWidth

	pdf.SetXY(left, pageMargin)
	d.color(brandColor)
	d.font("B", 14, org.Name)
	for _, l := range d.fit(org.Name, orgWidth, 2) {
		pdf.CellFormat(orgWidth, 6.5, l, "", 2, "L", false, 0, "")
	}
	d.color(textColor)
	if org.LegalName != "" && org.LegalName != org.Name {
		d.line("", 8.5, orgWidth, 4.2, org.LegalName, "L")
	}
	if org.RegistrationNumber != "" {
		d.line("", 8.5, orgWidth, 4.2, "Reg. No: "+org.RegistrationNumber, "L")
	}
	d.color(mutedColor)
	address := org.Address
	if len(address) > maxAddressLines {
		address = address[:maxAddressLines]
	}
	for _, l := range address {
		d.line("", 8.5, orgWidth, 4.2, l, "L")
	}
	if contact := joinNonEmpty(" | ", org.Phone, org.Email); contact != "" {
		d.line("", 8.5, orgWidth, 4.2, contact, "L")
	}
	orgBottom := pdf.GetY()

	right := 125.0
	w := pageWidth - pageMargin - right
	pdf.SetXY(right, pageMargin)
	d.color(brandColor)
	d.line("B", 13, w, 7, "OFFICIAL RECEIPT", "R")
	d.color(mutedColor)
	d.line("I", 9, w, 5, "Resit Rasmi", "R")
	pdf.Ln(2)
	pdf.SetX(right)
	d.color(textColor)
	d.line("", 9, w, 5, "Receipt No / No. Resit: "+data.ReceiptNumber, "R")
	d.line("", 9, w, 5, "Date / Tarikh: "+data.FormattedDate(), "R")

	y := max(orgBottom, pdf.GetY(), pageMargin+26) + 4
	pdf.SetDrawColor(brandColor[0], brandColor[1], brandColor[2])
	pdf.SetLineWidth(0.6)
	pdf.Line(pageMargin, y, pageWidth-pageMargin, y)
	pdf.SetXY(pageMargin, y+5)
}

func (d receiptPDF) sectionTitle(english, malay string) {
	pdf := d.pdf
	d.font("B", 10.5, "")
	d.color(brandColor)
	pdf.CellFormat(bodyWidth, 6, english+" / "+malay, "", 1, "L", false, 0, "")
	pdf.SetDrawColor(210, 210, 210)
	pdf.SetLineWidth(0.2)
	y := pdf.GetY()
	pdf.Line(pageMargin, y, pageWidth-pageMargin, y)
	pdf.Ln(1.5)
}

func (d receiptPDF) row(label, value string) {
	pdf := d.pdf
	if strings.TrimSpace(value) == "" {
		value = "-"
	}
	d.font("", 9, label)
	d.color(mutedColor)
	pdf.CellFormat(labelWidth, 6, label, "", 0, "L", false, 0, "")
	d.font("B", 9.5, value)
	d.color(textColor)
	for _, l := range d.fit(value, bodyWidth-labelWidth, maxRowLines) {
		pdf.SetX(pageMargin + labelWidth)
		pdf.CellFormat(bodyWidth-labelWidth, 6, l, "", 1, "L", false, 0, "")
	}
}

func (d receiptPDF) donorSection(data *ReceiptData) {
	d.sectionTitle("Donor Information", "Maklumat Penderma")
	d.row("Name / Nama", data.DonorName)
	d.row("Email / E-mel", data.DonorEmail)
	d.row("Phone / Telefon", data.DonorPhone)
	d.pdf.Ln(4)
}

func (d receiptPDF) amountBlock(data *ReceiptData) {
	pdf := d.pdf
	const h = 26.0
	y := pdf.GetY()
	pdf.SetFillColor(panelColor[0], panelColor[1], panelColor[2])
	pdf.SetDrawColor(brandColor[0], brandColor[1], brandColor[2])
	pdf.SetLineWidth(0.4)
	pdf.Rect(pageMargin, y, bodyWidth, h, "FD")

	pdf.SetXY(pageMargin, y+3)
	d.color(mutedColor)
	d.line("", 9, bodyWidth, 5, "Amount Received / Jumlah Diterima", "C")
	d.color(brandColor)
	d.line("B", 20, bodyWidth, 10, data.FormattedAmount(), "C")
	d.color(textColor)
	d.line("I", 9, bodyWidth, 5, "for "+data.ProjectTitle, "C")
	pdf.SetXY(pageMargin, y+h+6)
}

func (d receiptPDF) paymentSection(data *ReceiptData) {
	d.sectionTitle("Payment Details", "Butiran Pembayaran")
	d.row("Project / Projek", data.ProjectTitle)
	d.row("Payment Method / Kaedah", PaymentMethodLabel(data.PaymentMethod))
	d.row("Payment Reference / Rujukan", data.PaymentReference)
	d.row("Transaction ID / ID Transaksi", data.TransactionID)
	d.row("Payment Date / Tarikh Bayaran", data.FormattedDate())
	d.pdf.Ln(4)
}

const (
	sectionTitleHeight = 6 + 1.5
	messageLineHeight  = 5.0
	blockGap           = 4.0
	taxTitleHeight     = 5.0
	taxLineHeight      = 4.5
	taxPadding         = 1.5
)

// messageBlock prints as much of the donor's message as fits above limit.
// The section is left out when not even one line fits.
func (d receiptPDF) messageBlock(message string, limit float64) {
	pdf := d.pdf
	room := limit - pdf.GetY() - sectionTitleHeight - blockGap
	n := int(room / messageLineHeight)
	if n < 1 {
		return
	}
	d.sectionTitle("Your Message", "Mesej Anda")
	d.font("I", 9.5, message)
	d.color(textColor)
	for _, l := range d.fit(message, bodyWidth, n) {
		pdf.CellFormat(bodyWidth, messageLineHeight, l, "", 2, "L", false, 0, "")
	}
	pdf.Ln(blockGap)
}

func (d receiptPDF) taxLines(data *ReceiptData) []string {
	text := fmt.Sprintf("This donation is tax deductible under subsection 44(6) of the Income Tax Act 1967. "+
		"Approval reference: %s. Please keep this receipt for your tax filing.", data.Organization.TaxReference)
	d.font("", 8.5, text)
	return d.fit(text, bodyWidth, maxTaxLines)
}

func taxHeight(lines []string) float64 {
	if len(lines) == 0 {
		return 0
	}
	return taxTitleHeight + float64(len(lines))*taxLineHeight + taxPadding + blockGap
}

func (d receiptPDF) taxNotice(lines []string) {
	pdf := d.pdf
	y := pdf.GetY()
	h := taxHeight(lines) - blockGap
	pdf.SetFillColor(255, 248, 225)
	pdf.SetDrawColor(230, 190, 90)
	pdf.SetLineWidth(0.3)
	pdf.Rect(pageMargin, y, bodyWidth, h, "FD")

	d.color(textColor)
	d.font("B", 9, "")
	pdf.CellFormat(bodyWidth, taxTitleHeight, "Tax Deduction / Potongan Cukai", "", 2, "L", false, 0, "")
	d.font("", 8.5, strings.Join(lines, " "))
	for _, l := range lines {
		pdf.CellFormat(bodyWidth, taxLineHeight, l, "", 2, "L", false, 0, "")
	}
	pdf.SetXY(pageMargin, y+h+blockGap)
}

func (d receiptPDF) footer(data *ReceiptData) {
	pdf := d.pdf
	org := data.Organization
	pdf.SetDrawColor(210, 210, 210)
	pdf.SetLineWidth(0.2)
	pdf.Line(pageMargin, footerTop, pageWidth-pageMargin, footerTop)
	pdf.SetXY(pageMargin, footerTop+2)
	d.color(mutedColor)

	reg := ""
	if org.RegistrationNumber != "" {
		reg = "Registration No: " + org.RegistrationNumber
	}
	d.line("", 7.5, bodyWidth, 4, joinNonEmpty("  |  ", org.DisplayLegalName(), reg, org.Website), "C")
	if verify := joinNonEmpty(" or ", org.Email, org.Phone); verify != "" {
		d.line("", 7.5, bodyWidth, 4, "To verify this receipt, contact "+verify+".", "C")
	}
	d.line("", 7.5, bodyWidth, 4, "This is a computer-generated receipt. No signature is required.", "C")
}

func joinNonEmpty(sep string, parts ...string) string {
	var out []string
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}
