// Package di builds the dependency graph shared by the binaries.
package di

import (
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hansini-nalla/pes-sub000/core"
	"github.com/hansini-nalla/pes-sub000/core/actor"
	"github.com/hansini-nalla/pes-sub000/core/dispute"
	"github.com/hansini-nalla/pes-sub000/core/exam"
	"github.com/hansini-nalla/pes-sub000/core/screening"
	appfs "github.com/hansini-nalla/pes-sub000/fs"
	emailsvc "github.com/hansini-nalla/pes-sub000/services/email"
	"github.com/hansini-nalla/pes-sub000/services/metrics"
	"github.com/hansini-nalla/pes-sub000/services/notifier"
	"github.com/hansini-nalla/pes-sub000/storage/database"
	inmemdb "github.com/hansini-nalla/pes-sub000/storage/database/inmem"
	sqlxrepos "github.com/hansini-nalla/pes-sub000/storage/database/sqlx"
)

// engineInMemory keeps everything in memory, for demos and tests.
const engineInMemory = "inmem"

type (
	repositories struct {
		actors   actor.Repository
		exams    exam.Repository
		verdicts screening.Repository
		disputes dispute.Repository
	}

	Container struct {
		Conf     *core.Config
		Logger   core.Logger
		DB       *sqlx.DB // nil in memory
		Registry *prometheus.Registry
		Metrics  *metrics.Metrics

		Roster       *actor.Roster
		ExamSvc      *exam.Service
		ScreeningSvc *screening.Service
		DisputeSvc   *dispute.Service

		closers []func() error
	}
)

// New opens the storage configured in conf, creating the postgres database when needed,
// and builds every service on top of it. With autoMigrate, pending migrations are applied first.
func New(conf *core.Config, logger core.Logger, autoMigrate bool) (*Container, error) {
	c := &Container{
		Conf:     conf,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
	}
	c.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.Metrics = metrics.New(c.Registry)

	repos, err := c.openStorage(autoMigrate)
	if err != nil {
		return nil, err
	}

	if err := core.ParseEmailTemplates(appfs.FS, appfs.EmailTemplatesDir, !conf.Debug); err != nil {
		_ = c.Close()
		return nil, errors.Wrap(err, "parsing email templates")
	}
	c.Roster = actor.NewRoster(repos.actors)
	c.ExamSvc = exam.NewService(repos.exams, logger)
	n, err := c.newNotifier()
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	c.DisputeSvc = dispute.NewService(repos.disputes, repos.exams, c.Roster, n, logger)
	c.ScreeningSvc = screening.NewService(repos.verdicts, repos.exams, c.DisputeSvc, screening.Thresholds{Class: conf.Screening.ClassThreshold, Self: conf.Screening.SelfThreshold}, logger)
	return c, nil
}

func (c *Container) openStorage(autoMigrate bool) (repositories, error) {
	if c.Conf.Database.Engine == engineInMemory {
		c.Logger.Warn("using in-memory storage, nothing will be persisted")
		db := inmemdb.Open()
		return repositories{
			actors:   inmemdb.NewActorRepository(db),
			exams:    inmemdb.NewExamRepository(db),
			verdicts: inmemdb.NewVerdictRepository(db),
			disputes: inmemdb.NewDisputeRepository(db),
		}, nil
	}

	if err := database.CreateIfNotExist(c.Conf); err != nil {
		return repositories{}, errors.Wrap(err, "creating database")
	}
	db, err := database.Open(c.Conf)
	if err != nil {
		return repositories{}, errors.Wrap(err, "opening database")
	}
	c.DB = db
	c.closers = append(c.closers, db.Close)
	if autoMigrate {
		if err := database.Migrate(db.DB); err != nil {
			_ = c.Close()
			return repositories{}, err
		}
	}
	return repositories{
		actors:   sqlxrepos.NewActorRepository(db),
		exams:    sqlxrepos.NewExamRepository(db),
		verdicts: sqlxrepos.NewVerdictRepository(db),
		disputes: sqlxrepos.NewDisputeRepository(db),
	}, nil
}

// newNotifier sends emails, through SendGrid outside of DEV, and publishes to the broker when one is configured.
func (c *Container) newNotifier() (core.Notifier, error) {
	var mailSvc core.EmailService
	if c.Conf.Debug || c.Conf.SendgridApiKey == "" {
		mailSvc = emailsvc.NewConsoleService(c.Conf, c.Logger)
	} else {
		mailSvc = emailsvc.NewSendgridService(c.Conf, c.Logger)
	}

	deliverers := []notifier.Deliverer{
		c.Metrics.Instrument(notifier.NewEmail(c.Roster, c.ExamSvc, mailSvc, c.Conf.FrontendBaseURL)),
	}

	if c.Conf.AMQP.URL != "" {
		conn, err := notifier.Dial(c.Conf.AMQP.URL, c.Conf.AMQP.Exchange)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, conn.Close)
		deliverers = append(deliverers, c.Metrics.Instrument(notifier.NewAMQP(conn.Channel, c.Conf.AMQP.Exchange, c.Conf.AMQP.RoutingKey)))
	}
	return notifier.NewFanout(c.Logger, deliverers...), nil
}

// Close releases the storage and broker connections, the last opened first.
func (c *Container) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.closers = nil
	return firstErr
}
