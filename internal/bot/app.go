package bot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dkurbatov/coursebot/core/cmd"
	"github.com/dkurbatov/coursebot/core/database"
	"github.com/dkurbatov/coursebot/core/logger"
	coretelegram "github.com/dkurbatov/coursebot/core/telegram"
	"github.com/dkurbatov/coursebot/core/telegram/commands"
	"github.com/dkurbatov/coursebot/core/telegram/router"
	"github.com/dkurbatov/coursebot/internal/course"
	"github.com/dkurbatov/coursebot/internal/journal"
)

// App assembles the course bot: store, engine, delivery adapter, and the
// optional journal.
type App struct {
	cfg      *Config
	store    *course.Store
	engine   *course.Engine
	delivery *telegramDelivery
	journal  *journal.Journal
}

// Bootstrap builds the application from loaded configuration. Fatal
// errors here (bad token, unreachable journal database) abort startup.
func Bootstrap(carrier cmd.ConfigCarrier) (*App, error) {
	cfg, ok := carrier.(*Config)
	if !ok {
		return nil, fmt.Errorf("bot: unexpected config type %T", carrier)
	}

	if err := logger.Init(cfg.CoreConfig()); err != nil {
		return nil, fmt.Errorf("bot: logger init: %w", err)
	}

	store := course.NewStore(&cfg.Course)
	delivery := newDelivery(&cfg.Course)

	var (
		rec course.Recorder = course.NopRecorder{}
		jrn *journal.Journal
	)
	if cfg.Database.Enabled() {
		if err := database.RunMigrations(cfg.Database); err != nil {
			return nil, err
		}
		db, err := database.Connect(cfg.Database)
		if err != nil {
			return nil, err
		}
		jrn = journal.New(db)
		rec = jrn
	} else {
		logger.Info(context.Background(), "journal", "journal.disabled")
	}

	return &App{
		cfg:      cfg,
		store:    store,
		engine:   course.NewEngine(&cfg.Course, store, delivery, rec),
		delivery: delivery,
		journal:  jrn,
	}, nil
}

// TelegramRunOptions implements cmd.TelegramApp: registers commands and
// callbacks, wires routes, and hooks the lifecycle.
func (a *App) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()

	reg.RegisterCommand("/start", commands.Command{
		Handler:     a.handleStart,
		Description: "Начать обучение",
	})
	reg.RegisterCommand("/help", commands.Command{
		Handler:     a.handleHelp,
		Description: "Справка",
	})
	reg.RegisterCommand("/debug", commands.Command{
		Handler:     a.handleDebug,
		Description: "Состояние сессий",
		AdminOnly:   true,
		Hidden:      true,
	})

	if err := reg.RegisterCallback(callbackLessonWatched, a.handleWatched); err != nil {
		return coretelegram.RunOptions{}, err
	}

	coreCfg := a.cfg.CoreConfig()

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{
		AdminID: coreCfg.Telegram.AdminID,
	})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{}))
	routes = append(routes, router.TextRoutes(reg, router.TextOptions{})...)

	return coretelegram.RunOptions{
		Config:      coreCfg,
		Registry:    reg,
		Middlewares: coretelegram.DefaultMiddlewares(coreCfg, nil),
		Routes:      routes,
		OnStart:     a.onStart,
		OnStop:      a.onStop,
	}, nil
}

func (a *App) onStart(ctx context.Context, rt coretelegram.Runtime) error {
	a.delivery.bind(rt.Bot, rt.Dispatcher)
	a.engine.Bind(ctx)
	go a.store.RunSweeper(ctx)

	logger.Info(ctx, "app", "course.ready",
		slog.Int("lessons", a.cfg.Course.LastLesson()),
		slog.Duration("timer", a.cfg.Course.AdvanceTimeout()),
	)
	return nil
}

func (a *App) onStop(ctx context.Context, _ coretelegram.Runtime) error {
	// Cancel outstanding timers explicitly so no task dangles past the
	// run loop; the lifecycle context already gates their callbacks.
	a.store.CancelAllTimers()

	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			logger.Warn(ctx, "journal", "journal.close.fail",
				slog.String("err", err.Error()),
			)
		}
	}
	return nil
}
