// Package presenter renders the images recorded on an order for the admin screen and for e-mails.
package presenter

import (
	"bytes"
	"context"
	"html/template"

	"github.com/cppla/orderimages/orders"
	"github.com/cppla/orderimages/settings"
)

// EmailImageLimit caps the images embedded in a rich e-mail.
const EmailImageLimit = 3

// PlainTextHeader is the only thing plain-text e-mails carry.
const PlainTextHeader = "\n\nImages attached to this order:\n\n"

var adminTmpl = template.Must(template.New("admin").Parse(`<div class="aiep-order-images">
<h3>Attached images</h3>
{{- range .}}
<div class="aiep-image-container">
{{- if .ProductName}}<p><strong>{{.ProductName}}</strong></p>{{end}}
<a href="{{.URL}}" target="_blank" rel="noopener"><img src="{{.URL}}" alt="Attached image" style="max-width: 200px; max-height: 200px; margin-bottom: 10px;"></a>
</div>
{{- end}}
</div>
`))

var emailTmpl = template.Must(template.New("email").Parse(`<div style="margin-top: 20px; margin-bottom: 20px; padding: 10px; background-color: #f8f8f8;">
<h2 style="margin-bottom: 10px;">Attached images</h2>
{{- if .More}}
<p><i>Only the first {{.Limit}} of {{.Total}} images are shown in this email.</i></p>
{{- end}}
{{- range .Items}}
<div style="margin-bottom: 20px;">
{{- if .ProductName}}<p><strong>{{.ProductName}}</strong></p>{{end}}
<img src="{{.URL}}" alt="Attached image" style="max-width: 100%; height: auto; max-height: 300px; border: 1px solid #ddd;">
</div>
{{- end}}
</div>
`))

// Adapter reads attachments through an order backend and renders them.
type Adapter struct {
	backend orders.Backend
	names   orders.ProductNamer
}

// NewAdapter returns an adapter. names may be nil.
func NewAdapter(backend orders.Backend, names orders.ProductNamer) *Adapter {
	return &Adapter{backend: backend, names: names}
}

// AdminData returns every recorded attachment and the recorded count.
func (a *Adapter) AdminData(ctx context.Context, orderID uint) ([]orders.Attachment, int, error) {
	return orders.ReadAttachments(ctx, a.backend, orderID, a.names, 0)
}

// AdminHTML renders all attachments, each linking to the full image. An order without images
// renders as an empty string.
func (a *Adapter) AdminHTML(ctx context.Context, orderID uint) (template.HTML, error) {
	items, _, err := a.AdminData(ctx, orderID)
	if err != nil || len(items) == 0 {
		return "", err
	}
	var buf bytes.Buffer
	if err := adminTmpl.Execute(&buf, items); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

// Email renders the e-mail section for an order.
func (a *Adapter) Email(ctx context.Context, orderID uint, s settings.Settings, plain bool) (string, error) {
	if !s.ShowInEmails {
		return "", nil
	}
	items, total, err := orders.ReadAttachments(ctx, a.backend, orderID, a.names, EmailImageLimit)
	if err != nil || total == 0 {
		return "", err
	}
	if plain {
		return PlainTextHeader, nil
	}
	var buf bytes.Buffer
	err = emailTmpl.Execute(&buf, struct {
		Items []orders.Attachment
		Total int
		Limit int
		More  bool
	}{items, total, EmailImageLimit, total > EmailImageLimit})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
