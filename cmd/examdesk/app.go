package main

import (
	"context"
	"fmt"
	"os"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/mind-engage/examdesk/internal/audit"
	"github.com/mind-engage/examdesk/internal/bank"
	"github.com/mind-engage/examdesk/internal/config"
	"github.com/mind-engage/examdesk/internal/db"
	"github.com/mind-engage/examdesk/internal/exam"
	"github.com/mind-engage/examdesk/internal/logger"
	"github.com/mind-engage/examdesk/internal/mongostore"
	"github.com/mind-engage/examdesk/internal/notify"
	"github.com/mind-engage/examdesk/internal/stats"
	"github.com/mind-engage/examdesk/internal/storage"
	"github.com/mind-engage/examdesk/internal/users"
)

// app holds the wired services. close releases everything open tasks
// acquired, in reverse order.
type app struct {
	cfg config.Config
	log *logger.Logger

	questions *bank.Service
	exams     *exam.Service
	users     *users.Service
	notify    *notify.Service
	stats     *stats.Service
	audit     audit.Log
	blobs     storage.BlobStore

	ready   []func(ctx context.Context) error
	closers []func() error
}

func newLogger(cfg config.Config) *logger.Logger {
	host, _ := os.Hostname()
	return logger.New(logger.Options{
		Prefix:       "examdesk",
		RollbarToken: cfg.RollbarToken,
		Env:          cfg.Env,
		Host:         host,
		Version:      version,
	})
}

type stores struct {
	questions bank.Store
	exams     exam.Store
	users     users.Store
	notify    notify.Store
	audit     audit.Log
}

func (a *app) openStores(ctx context.Context) (stores, error) {
	driver := db.Driver(a.cfg.DBDriver)
	if driver == db.DriverMongo {
		client, mdb, err := mongostore.Connect(ctx, mongostore.Config{URI: a.cfg.MongoURI, Database: a.cfg.MongoDatabase})
		if err != nil {
			return stores{}, fmt.Errorf("mongo: %w", err)
		}
		a.closers = append(a.closers, func() error { return client.Disconnect(context.Background()) })
		a.ready = append(a.ready, func(ctx context.Context) error { return client.Ping(ctx, nil) })
		return mongoStores(mdb), nil
	}
	sqlDB, err := db.Open(ctx, driver, a.cfg.DBDSN)
	if err != nil {
		return stores{}, fmt.Errorf("db open: %w", err)
	}
	a.closers = append(a.closers, sqlDB.Close)
	a.ready = append(a.ready, sqlDB.PingContext)
	return stores{
		questions: bank.NewSQLStore(sqlDB),
		exams:     exam.NewSQLStore(sqlDB),
		users:     users.NewSQLStore(sqlDB),
		notify:    notify.NewSQLStore(sqlDB),
		audit:     audit.NewSQLLog(sqlDB),
	}, nil
}

func mongoStores(mdb *mongo.Database) stores {
	return stores{
		questions: mongostore.NewQuestionStore(mdb),
		exams:     mongostore.NewExamStore(mdb),
		users:     mongostore.NewUserStore(mdb),
		notify:    mongostore.NewNotificationStore(mdb),
		audit:     mongostore.NewAuditLog(mdb),
	}
}

func (a *app) openBlobs(ctx context.Context) (storage.BlobStore, error) {
	switch a.cfg.BlobDriver {
	case "minio":
		return storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  a.cfg.MinioEndpoint,
			AccessKey: a.cfg.MinioAccessKey,
			SecretKey: a.cfg.MinioSecretKey,
			Bucket:    a.cfg.MinioBucket,
			UseSSL:    a.cfg.MinioUseSSL,
		})
	case "fs", "":
		return storage.NewFSStore(a.cfg.BlobBasePath, a.cfg.PublicURL+"/media")
	}
	return nil, fmt.Errorf("unknown blob driver %q", a.cfg.BlobDriver)
}

func (a *app) statsCache(ctx context.Context) stats.Cache {
	if a.cfg.RedisAddr == "" {
		return stats.NopCache{}
	}
	rc := stats.NewRedisCache(a.cfg.RedisAddr, a.cfg.RedisPassword, a.cfg.RedisDB)
	if err := rc.Ping(ctx); err != nil {
		// statistics still work, only uncached
		a.log.Warnf("redis %s: %v", a.cfg.RedisAddr, err)
	}
	a.closers = append(a.closers, rc.Close)
	return rc
}

// newApp opens storage and wires every service. withChannels also dials the
// notification channels; admin tasks only need the log channel.
func newApp(ctx context.Context, cfg config.Config, withChannels bool) (*app, error) {
	a := &app{cfg: cfg, log: newLogger(cfg)}
	st, err := a.openStores(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	if a.blobs, err = a.openBlobs(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("blob store: %w", err)
	}

	channels := notify.Multi{notify.LogNotifier{Log: a.log.With("notify")}}
	if withChannels {
		var closeChannels func() error
		channels, closeChannels, err = notify.New(cfg, a.log.With("notify"))
		if err != nil {
			a.close()
			return nil, err
		}
		a.closers = append(a.closers, closeChannels)
	}

	a.audit = st.audit
	a.questions = bank.NewService(st.questions, st.exams)
	a.users = users.NewService(st.users, nil)
	a.notify = notify.NewService(st.notify, a.users, channels, a.log.With("notify"))
	a.exams = exam.NewService(st.exams, a.questions, exam.Options{
		Notifier:   a.notify,
		Directory:  a.users,
		Media:      a.blobs.Get,
		AutoNotify: cfg.AutoNotify,
		Log:        a.log.With("exam"),
	})
	a.users.SetPurger(a.exams)
	a.stats = stats.NewService(st.exams, a.questions, a.users, a.statsCache(ctx), cfg.StatsTTL, a.log.With("stats"))
	a.exams.SetStats(a.stats)
	return a, nil
}

// readyCheck pings every backing store.
func (a *app) readyCheck(ctx context.Context) error {
	for _, f := range a.ready {
		if err := f(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warnf("close: %v", err)
		}
	}
	a.closers = nil
	a.log.Close()
}
