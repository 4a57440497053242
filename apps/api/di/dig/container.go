package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/academia/apps/api/echo"
	"github.com/trezcool/academia/core"
	"github.com/trezcool/academia/core/bulletin"
	"github.com/trezcool/academia/core/gradebook"
	"github.com/trezcool/academia/core/report"
	"github.com/trezcool/academia/core/school"
	"github.com/trezcool/academia/core/user"
	cachesvc "github.com/trezcool/academia/services/cache"
	emailsvc "github.com/trezcool/academia/services/email"
	logsvc "github.com/trezcool/academia/services/logger"
	metricsvc "github.com/trezcool/academia/services/metrics"
	"github.com/trezcool/academia/storage/database"
	sqlxrepos "github.com/trezcool/academia/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func() (*sqlx.DB, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := database.CreateIfNotExist(ctx, conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}
		if err = database.Ping(ctx, db); err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newMetrics() *metricsvc.Metrics {
	return metricsvc.New(nil)
}

// newReportCache returns the redis report cache, or no cache when redis is not configured or unreachable.
func newReportCache(conf *core.Config, logger core.Logger, metrics *metricsvc.Metrics) report.Cache {
	var cache report.Cache = report.NopCache{}
	if conf.Redis.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		client, err := cachesvc.NewRedisClient(ctx, conf)
		if err != nil {
			logger.Error(fmt.Sprintf("report cache disabled: %v", err), err)
		} else {
			cache = cachesvc.NewReportCache(client, conf.Redis.ReportTTL)
		}
	}
	return metrics.InstrumentCache(cache)
}

func newReportService(
	repo report.Repository,
	schools school.Repository,
	policy report.AccessPolicy,
	cache report.Cache,
	logger core.Logger,
) *report.Service {
	return report.NewService(repo, schools, policy, cache, logger)
}

func newUserService(repo user.Repository, mailSvc core.EmailService, conf *core.Config, reports *report.Service) *user.Service {
	return user.NewService(repo, mailSvc, conf, reports)
}

func newSchoolService(
	repo school.Repository,
	users user.Repository,
	tx core.Transactor,
	mailSvc core.EmailService,
	reports *report.Service,
) *school.Service {
	return school.NewService(repo, users, tx, mailSvc, reports)
}

func newGradebookService(
	repo gradebook.Repository,
	schools school.Repository,
	tx core.Transactor,
	policy report.AccessPolicy,
	reports *report.Service,
) *gradebook.Service {
	return gradebook.NewService(repo, schools, tx, policy, reports)
}

func newBulletinService(repo bulletin.Repository, schools school.Repository, teaching bulletin.TeacherClasses) *bulletin.Service {
	return bulletin.NewService(repo, schools, teaching)
}

type serverParams struct {
	dig.In

	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator

	UserSvc      user.ServiceInterface
	SchoolSvc    *school.Service
	GradebookSvc *gradebook.Service
	ReportSvc    *report.Service
	BulletinSvc  *bulletin.Service
	Metrics      *metricsvc.Metrics
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(echoapi.Deps{
		Conf:         p.Conf,
		Logger:       p.Logger,
		Validate:     p.Validate,
		Translator:   p.Translator,
		UserSvc:      p.UserSvc,
		SchoolSvc:    p.SchoolSvc,
		GradebookSvc: p.GradebookSvc,
		ReportSvc:    p.ReportSvc,
		BulletinSvc:  p.BulletinSvc,
		Metrics:      p.Metrics,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(database.NewTransactor, dig.As(new(core.Transactor))))
	must(c.Provide(newEmailService))
	must(c.Provide(newMetrics))
	must(c.Provide(newReportCache))

	// repositories
	must(c.Provide(sqlxrepos.NewUserRepository, dig.As(new(user.Repository))))
	must(c.Provide(sqlxrepos.NewSchoolRepository, dig.As(new(school.Repository))))
	must(c.Provide(sqlxrepos.NewGradebookRepository, dig.As(
		new(gradebook.Repository),
		new(report.Repository),
		new(report.LessonTopicLookup),
		new(bulletin.TeacherClasses),
	)))
	must(c.Provide(sqlxrepos.NewBulletinRepository, dig.As(new(bulletin.Repository))))

	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))

	// services
	must(c.Provide(report.NewClassPolicy, dig.As(new(report.AccessPolicy))))
	must(c.Provide(newReportService))
	must(c.Provide(newUserService, dig.As(new(user.ServiceInterface))))
	must(c.Provide(newSchoolService))
	must(c.Provide(newGradebookService))
	must(c.Provide(newBulletinService))

	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
