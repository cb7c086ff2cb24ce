package main

import (
	"context"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/dataponto/dataponto-backend/config"
	"github.com/dataponto/dataponto-backend/live"
	"github.com/dataponto/dataponto-backend/repository"
	"github.com/dataponto/dataponto-backend/router"
	"github.com/dataponto/dataponto-backend/services"
	"github.com/dataponto/dataponto-backend/utils"
)

// App owns the background components and the HTTP routes built on them.
type App struct {
	Config     config.Config
	Store      *repository.Store
	Monitor    *services.ChangeMonitor
	Dispatcher *services.PushDispatcher
	Pusher     *services.AsyncPusher
	Hub        *live.Hub
	Router     *gin.Engine

	ctx    context.Context
	cancel context.CancelFunc
}

func NewApp(conf config.Config, db *gorm.DB) *App {
	ctx, cancel := context.WithCancel(context.Background())
	loc := conf.Location()

	store := repository.NewStore(db)
	store.Shared = conf.SharedWorkspace

	sender := services.NewSender(services.VAPIDKeys{
		PublicKey:  conf.VAPIDPublicKey,
		PrivateKey: conf.VAPIDPrivateKey,
	}, conf.VAPIDSubject, conf.PushTTL, conf.PushTimeout)
	dispatcher := services.NewPushDispatcher(store, sender)
	dispatcher.Workers = conf.PushWorkers

	// sessions push through the dispatch endpoint of another deployment
	// when one is configured, otherwise in process
	var pusher services.Pusher = dispatcher
	if conf.PushDispatchURL != "" {
		pusher = services.NewPushClient(conf.PushDispatchURL, conf.SupabaseAnonKey, conf.PushTimeout)
	}
	async := services.NewAsyncPusher(pusher, conf.PushTimeout)

	monitor := services.NewChangeMonitor(db)
	monitor.Interval = conf.ChangePollInterval
	monitor.Retention = conf.ChangeRetention

	hub := live.NewHub()
	center := &services.NotificationCenter{
		Store:            store,
		Feed:             monitor,
		Pusher:           async,
		Location:         loc,
		ReminderInterval: conf.ReminderInterval,
	}

	r := router.SetupRouter(router.Deps{
		Config:        conf,
		Store:         store,
		Dispatcher:    dispatcher,
		Aggregator:    services.NewDeadlineAggregator(store, loc),
		Hub:           hub,
		Notifications: center,
		BaseContext:   ctx,
	})

	return &App{
		Config:     conf,
		Store:      store,
		Monitor:    monitor,
		Dispatcher: dispatcher,
		Pusher:     async,
		Hub:        hub,
		Router:     r,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins polling the change log.
func (a *App) Start() {
	a.Monitor.Start(a.ctx)
	utils.InfoLogger.Printf("Change monitor polling every %s", a.Monitor.Interval)
}

// Shutdown closes live sessions, stops polling and waits for queued pushes.
func (a *App) Shutdown() {
	a.cancel()
	a.Hub.CloseAll()
	a.Monitor.Stop()
	a.Pusher.Wait()
}
