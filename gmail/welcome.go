package gmail

import (
	"context"
	"fmt"

	"github.com/matcornic/hermes/v2"
	"github.com/pkg/errors"

	"github.com/athomewithrose/homeletter"
)

type welcomeService struct {
	config    *homeletter.Config
	transport homeletter.MailTransport
}

// NewWelcomeService returns a service sending the welcome email through transport
func NewWelcomeService(config *homeletter.Config, transport homeletter.MailTransport) homeletter.WelcomeService {
	return &welcomeService{
		config:    config,
		transport: transport,
	}
}

// SendWelcome sends a "welcome" email
func (ws *welcomeService) SendWelcome(ctx context.Context, to, unsubscribeURL string) error {
	site := ws.config.Site

	h := hermes.Hermes{
		Product: hermes.Product{
			Name:      site.Name,
			Link:      site.URL,
			Copyright: fmt.Sprintf("© %s", site.Name),
		},
	}

	email := hermes.Email{
		Body: hermes.Body{
			Greeting:  "Hi",
			Signature: "Talk soon",
			Intros: []string{
				fmt.Sprintf("Thank you for subscribing to %s!", site.Name),
				"You will receive DIY projects, home decor inspiration and behind-the-scenes updates in your inbox.",
			},
			Actions: []hermes.Action{
				{
					Instructions: "While you wait for the next newsletter, catch up on the blog:",
					Button: hermes.Button{
						Color: "#A3B3A2",
						Text:  "Read the blog",
						Link:  site.URL + "/blog",
					},
				},
			},
			Outros: []string{
				fmt.Sprintf("Changed your mind? You can unsubscribe at any time: %s", unsubscribeURL),
			},
		},
	}

	html, err := h.GenerateHTML(email)
	if err != nil {
		return errors.Errorf("failed to generate HTML email: %v", err)
	}
	text, err := h.GeneratePlainText(email)
	if err != nil {
		return errors.Errorf("failed to generate plain text email: %v", err)
	}

	return ws.transport.Send(ctx, &homeletter.Message{
		To:      to,
		Subject: fmt.Sprintf("Welcome to %s", site.Name),
		HTML:    html,
		Text:    text,
	})
}
