package binding

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/wunderbyte/evasync/core"
)

// Notifier mails the organizers when a survey goes live. It implements
// EventSink; delivery errors are logged, never propagated, so a mail outage
// can't fail a sync job.
type Notifier struct {
	dir     InstructorDirectory
	mailSvc core.EmailService
	logger  core.Logger
}

func NewNotifier(dir InstructorDirectory, mailSvc core.EmailService, logger core.Logger) *Notifier {
	return &Notifier{dir: dir, mailSvc: mailSvc, logger: logger}
}

func (n *Notifier) SurveyCreated(ctx context.Context, evt SurveyCreatedEvent) {
	to := make([]mail.Address, 0, len(evt.Organizers))
	for _, id := range evt.Organizers {
		instr, err := n.dir.GetInstructor(ctx, id)
		if err != nil {
			n.logger.Warn(fmt.Sprintf("notify: loading organizer %d: %v", id, err))
			continue
		}
		if instr.Email == "" {
			continue
		}
		to = append(to, mail.Address{
			Name:    instr.FirstName + " " + instr.LastName,
			Address: instr.Email,
		})
	}
	if len(to) == 0 {
		return
	}

	msg := &core.EmailMessage{
		To:           to,
		Subject:      fmt.Sprintf("Evaluation survey created: %s", evt.OptionTitle),
		TemplateName: "survey-created",
		TemplateData: map[string]interface{}{
			"OptionTitle":        evt.OptionTitle,
			"SurveyURL":          evt.SurveyURL,
			"QRURL":              evt.QRURL,
			"NotifyParticipants": evt.NotifyParticipants,
		},
	}
	n.mailSvc.SendMessages(msg)
}
