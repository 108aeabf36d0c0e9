package notify

import (
	"bytes"
	"html/template"
)

var (
	customerTemplate = template.Must(template.New("customer").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
<h1>Siparişiniz Alındı!</h1>
<p>Merhaba <strong>{{.CustomerName}}</strong>,</p>
<p>Ödemeniz alındı ve siparişiniz hazırlanmaya başladı.</p>
<table>
<tr><td>Sipariş No:</td><td>{{.OrderNumber}}</td></tr>
{{if .PaymentID}}<tr><td>Ödeme ID:</td><td>{{.PaymentID}}</td></tr>{{end}}
<tr><td>Toplam Tutar:</td><td>{{.Total}} ₺</td></tr>
</table>
</div>`))

	adminTemplate = template.Must(template.New("admin").Parse(`<div style="font-family: Arial, sans-serif; max-width: 800px; margin: 0 auto;">
<h1>YENİ SİPARİŞ ALINDI</h1>
<p>Sipariş #{{.OrderNumber}} ({{.PaymentMethod}})</p>
<table>
<tr><td>Ad Soyad:</td><td>{{.CustomerName}}</td></tr>
<tr><td>E-posta:</td><td>{{.CustomerEmail}}</td></tr>
<tr><td>Telefon:</td><td>{{.CustomerPhone}}</td></tr>
<tr><td>Adres:</td><td>{{.Address}}</td></tr>
</table>
<table>
{{range $i, $item := .Items}}<tr><td>{{$item.Name}}</td><td>{{$item.Quantity}}</td><td>{{$item.LineTotal.StringFixed 2}} ₺</td></tr>
{{else}}<tr><td colspan="3">Ürün detayı sağlanmadı.</td></tr>
{{end}}</table>
<p>TOPLAM: {{.Total}} ₺</p>
</div>`))

	trackingTemplate = template.Must(template.New("tracking").Parse(`<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
<h1>Siparişiniz Kargoya Verildi</h1>
<p>Merhaba <strong>{{.CustomerName}}</strong>,</p>
<p>Sipariş #{{.OrderNumber}} kargoya verildi. Takip numarası: <strong>{{.TrackingNumber}}</strong></p>
{{if .TrackingURL}}<p><a href="{{.TrackingURL}}">Kargomu Takip Et</a></p>{{end}}
</div>`))
)

func render(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
