package main

import (
	"context"
	"fmt"

	"github.com/counselops/reconcile/internal/chat"
	"github.com/counselops/reconcile/internal/check"
	"github.com/counselops/reconcile/internal/config"
	"github.com/counselops/reconcile/internal/identity"
	"github.com/counselops/reconcile/internal/logging"
	"github.com/counselops/reconcile/internal/repair"
	"github.com/counselops/reconcile/internal/report"
	"github.com/counselops/reconcile/internal/store"
)

// services bundles the connected collaborators of one run.
type services struct {
	pg       *store.Postgres
	mongo    *store.Mongo
	identity *identity.Client
	chat     *chat.Client
	audit    *report.Audit

	deps *check.Deps
	sink report.Sink
	log  *logging.Logger

	stopRefresh  context.CancelFunc
	chatLoggedIn bool
}

// bootstrap connects all backing services and assembles the check
// dependencies. The chat login only happens in repair mode; read-only
// runs never touch the chat API.
func bootstrap(ctx context.Context, cfg config.Config, log *logging.Logger, withRepair bool) (*services, error) {
	s := &services{log: log}

	pg, err := store.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("connecting service database: %w", err)
	}
	s.pg = pg

	mongo, err := store.NewMongo(ctx, cfg.Mongo)
	if err != nil {
		s.Close(ctx)
		return nil, fmt.Errorf("connecting chat database: %w", err)
	}
	s.mongo = mongo

	s.identity = identity.NewClient(identity.ClientConfig{
		BaseURL:  cfg.Identity.BaseURL,
		Realm:    cfg.Identity.Realm,
		ClientID: cfg.Identity.ClientID,
		Username: cfg.Identity.Username,
		Password: cfg.Identity.Password,
	})
	if err := s.identity.Login(ctx); err != nil {
		s.Close(ctx)
		return nil, fmt.Errorf("logging into identity provider: %w", err)
	}
	refreshCtx, stop := context.WithCancel(ctx)
	s.stopRefresh = stop
	s.identity.StartRefresh(refreshCtx, func(err error) {
		log.Error("Refreshing identity provider token: %v", err)
	})

	s.deps = &check.Deps{
		Identity:        s.identity,
		Docs:            s.mongo,
		Rel:             s.pg,
		Log:             log,
		StaleAfter:      cfg.StaleAfter,
		EventThresholds: cfg.Thresholds,
	}

	if withRepair {
		s.chat = chat.NewClient(chat.ClientConfig{
			BaseURL:           cfg.Chat.BaseURL,
			Username:          cfg.Chat.Username,
			Password:          cfg.Chat.Password,
			RequestsPerSecond: cfg.Chat.RequestsPerSecond,
		})
		if err := s.chat.Login(ctx); err != nil {
			s.Close(ctx)
			return nil, fmt.Errorf("logging into chat service: %w", err)
		}
		s.chatLoggedIn = true

		engine := repair.New(s.mongo, s.pg, s.identity, s.chat, log)
		engine.GeneralRoomID = cfg.Chat.GeneralRoomID
		s.deps.Repairer = engine
	}

	sinks := report.Multi{&report.CSV{Dir: cfg.LogDir}}
	if cfg.Webhook.URL != "" {
		sinks = append(sinks, &report.Webhook{URL: cfg.Webhook.URL})
	}
	if cfg.Audit.BaseURL != "" {
		s.audit = &report.Audit{BaseURL: cfg.Audit.BaseURL, IndexPrefix: cfg.Audit.IndexPrefix}
		if err := s.audit.EnsureIndex(ctx); err != nil {
			log.Error("Preparing audit index: %v", err)
		}
		sinks = append(sinks, s.audit)
	}
	s.sink = sinks

	return s, nil
}

// Close tears down in reverse connection order. The context is taken
// fresh so teardown still runs after a deadline fired.
func (s *services) Close(ctx context.Context) {
	if s.chatLoggedIn {
		if err := s.chat.Logout(context.WithoutCancel(ctx)); err != nil {
			s.log.Error("Logging out technical account: %v", err)
		} else {
			s.chatLoggedIn = false
		}
	}
	if s.stopRefresh != nil {
		s.stopRefresh()
	}
	if s.mongo != nil {
		s.mongo.Close(context.WithoutCancel(ctx))
	}
	if s.pg != nil {
		s.pg.Close()
	}
}
