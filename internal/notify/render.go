package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/bigkaa/eventgate/internal/domain/model"
)

//go:embed templates/*.html
var templateFS embed.FS

// qrSize: сторона PNG с QR-кодом в пикселях.
const qrSize = 300

// EventInfo: данные мероприятия для писем (из системных настроек).
type EventInfo struct {
	Name         string
	Date         *time.Time
	Location     string
	ContactEmail string
}

// Person: участник, для которого в письмо вкладывается QR-код.
type Person struct {
	FullName    string
	QID         string
	AgeGroup    model.AgeGroup
	AccessToken string
}

// PersonFromRegistration строит Person из регистрации.
func PersonFromRegistration(r *model.Registration) Person {
	return Person{FullName: r.FullName, QID: r.QID, AgeGroup: r.AgeGroup, AccessToken: r.AccessToken}
}

// personView: данные участника для шаблона.
type personView struct {
	FullName      string
	MaskedQID     string
	AgeGroupLabel string
	AccessToken   string
	ContentID     string
}

// Renderer формирует письма из встроенных HTML-шаблонов.
type Renderer struct {
	from string
	tmpl *template.Template
}

// NewRenderer разбирает встроенные шаблоны.
func NewRenderer(from string) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("ошибка разбора шаблонов писем: %w", err)
	}
	return &Renderer{from: from, tmpl: tmpl}, nil
}

// Registration формирует одно письмо для основного регистранта и членов семьи.
// people[0]: основной регистрант. Каждый участник получает встроенный QR-код.
func (r *Renderer) Registration(to string, event EventInfo, people []Person) (*Message, error) {
	if len(people) == 0 {
		return nil, fmt.Errorf("письмо о регистрации без участников")
	}
	event = withDefaults(event)

	views := make([]personView, 0, len(people))
	attachments := make([]Attachment, 0, len(people))
	for _, p := range people {
		png, err := QRCodePNG(p.AccessToken)
		if err != nil {
			return nil, err
		}
		cid := contentID(p.AccessToken)
		attachments = append(attachments, Attachment{
			Filename:    "qrcode-" + p.AccessToken + ".png",
			ContentType: "image/png",
			ContentID:   cid,
			Content:     png,
		})
		views = append(views, personView{
			FullName:      p.FullName,
			MaskedQID:     model.MaskQID(p.QID),
			AgeGroupLabel: p.AgeGroup.Label(),
			AccessToken:   p.AccessToken,
			ContentID:     cid,
		})
	}

	data := struct {
		Event   EventInfo
		Primary personView
		Family  []personView
		People  []personView
	}{Event: event, Primary: views[0], Family: views[1:], People: views}

	html, err := r.execute("registration.html", data)
	if err != nil {
		return nil, err
	}

	subject := fmt.Sprintf("Your %s Registration is Confirmed!", event.Name)
	if len(people) > 1 {
		subject = fmt.Sprintf("Your %s Family Registration is Confirmed!", event.Name)
	}

	return &Message{
		From:        r.from,
		To:          []string{to},
		Subject:     subject,
		HTML:        html,
		Attachments: attachments,
		Ref:         people[0].AccessToken,
	}, nil
}

// Invite формирует приглашение на мероприятие.
func (r *Renderer) Invite(to, inviterName, registerURL string, event EventInfo) (*Message, error) {
	event = withDefaults(event)

	html, err := r.execute("invite.html", struct {
		Event       EventInfo
		InviterName string
		RegisterURL string
	}{Event: event, InviterName: inviterName, RegisterURL: registerURL})
	if err != nil {
		return nil, err
	}

	return &Message{
		From:    r.from,
		To:      []string{to},
		Subject: fmt.Sprintf("%s invited you to %s", inviterName, event.Name),
		HTML:    html,
	}, nil
}

func (r *Renderer) execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("ошибка рендеринга шаблона %s: %w", name, err)
	}
	return buf.String(), nil
}

// QRCodePNG кодирует token в PNG с высоким уровнем коррекции ошибок.
func QRCodePNG(token string) ([]byte, error) {
	png, err := qrcode.Encode(token, qrcode.High, qrSize)
	if err != nil {
		return nil, fmt.Errorf("ошибка генерации QR-кода: %w", err)
	}
	return png, nil
}

func contentID(token string) string {
	return "qr-" + strings.ToLower(token)
}

func withDefaults(e EventInfo) EventInfo {
	if strings.TrimSpace(e.Name) == "" {
		e.Name = "Event"
	}
	return e
}
