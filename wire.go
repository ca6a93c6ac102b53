package main

import (
	"github.com/pocketbase/pocketbase/core"

	"yipfoundation/appform"
	"yipfoundation/config"
	"yipfoundation/database"
	"yipfoundation/donation"
	"yipfoundation/emailsender"
	"yipfoundation/notify"
	"yipfoundation/receipt"
	"yipfoundation/settings"
)

// services are built once the app is bootstrapped so every component logs
// through app.Logger() into the PocketBase log store.
type services struct {
	donations *donation.Service
	forms     appform.Handler
}

func newServices(app core.App, cfg config.Config, store database.Store, mail *emailsender.Client, fonts []*receipt.Font) services {
	logger := app.Logger()
	mail.Logger = logger

	siteSettings := settings.RecordProvider{App: app}
	bell := notify.Store{App: app}
	links := receipt.LinkSigner{Secret: []byte(cfg.ReceiptLinkSecret)}

	assembler := receipt.Assembler{
		Donations: store,
		Settings:  siteSettings,
		Prefix:    cfg.ReceiptPrefix,
		Logger:    logger,
	}
	renderer := receipt.Renderer{
		Logos:  receipt.LogoResolver{PublicDir: cfg.PublicDir},
		Fonts:  fonts,
		Logger: logger,
	}
	issuer := &donation.Issuer{
		Numbers:   store,
		Assembler: assembler,
		Renderer:  renderer,
		Mailer: emailsender.ReceiptMailer{
			Client: mail,
			DownloadURL: func(ref string) (string, error) {
				return links.DownloadURL(cfg.SiteURL, ref)
			},
			Logger: logger,
		},
		Notifier: bell,
		Prefix:   cfg.ReceiptPrefix,
		Logger:   logger,
	}
	return services{
		donations: &donation.Service{
			Donations:     store,
			Issuer:        issuer,
			Notifier:      bell,
			Assembler:     assembler,
			Renderer:      renderer,
			Links:         links,
			NewSession:    donation.StripeSession,
			PaymentMethod: donation.StripePaymentMethod,
			WebhookSecret: cfg.StripeWebhookSecret,
			Currency:      cfg.Currency,
			SiteURL:       cfg.SiteURL,
			Logger:        logger,
		},
		forms: appform.Handler{
			Turnstile: appform.Turnstile{Secret: cfg.TurnstileSecret},
			Mailer: emailsender.AdminNotifier{
				Client:   mail,
				Settings: siteSettings,
				AdminURL: cfg.SiteURL + "/admin",
				Logger:   logger,
			},
			Bell: bell,
		},
	}
}
