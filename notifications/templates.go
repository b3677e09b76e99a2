package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFiles embed.FS

var subjects = map[Kind]string{
	KindNFTPurchased:       "You bought {{listing_name}}",
	KindNFTSold:            "{{listing_name}} was sold",
	KindDepositApproved:    "Your deposit was approved",
	KindDepositDeclined:    "Your deposit was declined",
	KindWithdrawalApproved: "Your withdrawal was approved",
	KindWithdrawalDeclined: "Your withdrawal was declined",
	KindWelcome:            "Welcome to the marketplace",
	KindNewsletter:         "Marketplace newsletter",
	KindReviewDigest:       "Items waiting for review",
}

// Email is a rendered message ready for a Mailer.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// Renderer turns Messages into Emails using the embedded templates.
type Renderer struct {
	tmpl *template.Template
}

func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse notification templates: %w", err)
	}
	return &Renderer{tmpl: tmpl}, nil
}

func (r *Renderer) Render(msg Message) (Email, error) {
	subject, ok := subjects[msg.Kind]
	if !ok {
		return Email{}, fmt.Errorf("unknown notification kind %q", msg.Kind)
	}
	if msg.Subject != "" {
		subject = msg.Subject
	}
	subject = expand(subject, msg.Data)

	var body bytes.Buffer
	err := r.tmpl.ExecuteTemplate(&body, string(msg.Kind), struct {
		Name string
		Data map[string]string
	}{Name: msg.To.Name, Data: msg.Data})
	if err != nil {
		return Email{}, fmt.Errorf("render %s: %w", msg.Kind, err)
	}

	return Email{To: msg.To.Email, Subject: subject, HTML: body.String()}, nil
}

// expand replaces {{key}} placeholders in a subject line.
func expand(s string, data map[string]string) string {
	for k, v := range data {
		s = strings.ReplaceAll(s, "{{"+k+"}}", v)
	}
	return s
}
