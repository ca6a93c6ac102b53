package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/stripe/stripe-go/v81"

	"yipfoundation/appform"
	"yipfoundation/config"
	"yipfoundation/database"
	"yipfoundation/donation"
	"yipfoundation/emailsender"
	"yipfoundation/notify"
	"yipfoundation/receipt"
	"yipfoundation/settings"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}
	stripe.Key = cfg.StripeKey

	fonts, err := receipt.LoadFonts(cfg.FontDir)
	if err != nil {
		log.Fatal(err)
	}

	app := pocketbase.New()

	store := database.Store{App: app}
	if cfg.PgURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		seq, err := database.OpenSequence(ctx, cfg.PgURL)
		cancel()
		if err != nil {
			log.Fatal(err)
		}
		defer seq.Close()
		store.Sequence = seq
	}

	mail := emailsender.NewClient(cfg)
	emailsender.RegisterMailer(app, mail)

	// Filled in after bootstrap, when app.Logger() is the PocketBase logger.
	donations := &donation.Service{}
	var forms appform.Handler
	app.OnBootstrap().BindFunc(func(e *core.BootstrapEvent) error {
		if err := e.Next(); err != nil {
			return err
		}
		svc := newServices(e.App, cfg, store, mail, fonts)
		*donations = *svc.donations
		forms = svc.forms
		return nil
	})

	app.RootCmd.AddCommand(donation.NewCommand(donations))
	app.Cron().MustAdd("receipt_backlog", "0 9 * * *", func() {
		if _, err := donations.CheckBacklog(); err != nil {
			app.Logger().Error("receipt backlog check failed", "error", err)
		}
	})

	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		settings.RegisterRoutes(se.Router, func(a core.App) settings.Provider {
			return settings.RecordProvider{App: a}
		})
		notify.RegisterRoutes(se.Router)
		donation.RegisterRoutes(se.Router, donations)
		appform.RegisterRoutes(se.Router, forms)

		se.Router.GET("/{path...}", apis.Static(os.DirFS(cfg.PublicDir), false))

		return se.Next()
	})

	if err := app.Start(); err != nil {
		log.Fatal(err)
	}
}
