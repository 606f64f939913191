package email

import (
	"fmt"
	"html"
	"strings"
	"time"
)

type MissedDoseLine struct {
	Medicine    string
	ScheduledAt time.Time
}

type MissedDoseData struct {
	CaretakerName string
	PatientName   string
	Doses         []MissedDoseLine
	Location      *time.Location
}

func BuildMissedDoseEmail(to string, data MissedDoseData) Message {
	loc := data.Location
	if loc == nil {
		loc = time.Local
	}

	subject := fmt.Sprintf("%s missed %d dose(s)", data.PatientName, len(data.Doses))

	var text, body strings.Builder
	fmt.Fprintf(&text, "Hi %s,\n\n%s did not take the following medication:\n\n", data.CaretakerName, data.PatientName)
	fmt.Fprintf(&body, "<p>Hi %s,</p><p>%s did not take the following medication:</p><ul>",
		html.EscapeString(data.CaretakerName), html.EscapeString(data.PatientName))

	for _, d := range data.Doses {
		when := d.ScheduledAt.In(loc).Format("Mon 02 Jan 15:04")
		fmt.Fprintf(&text, "  - %s at %s\n", d.Medicine, when)
		fmt.Fprintf(&body, "<li>%s at %s</li>", html.EscapeString(d.Medicine), when)
	}

	text.WriteString("\nPlease check in with them.\n")
	body.WriteString("</ul><p>Please check in with them.</p>")

	return Message{
		To:       []string{to},
		Subject:  subject,
		TextBody: text.String(),
		HTMLBody: body.String(),
	}
}
