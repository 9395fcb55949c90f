package main

import (
	"context"
	"flag"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/diwise/farm-operations/internal/pkg/application"
	"github.com/diwise/farm-operations/internal/pkg/application/alerts"
	"github.com/diwise/farm-operations/internal/pkg/application/batches"
	"github.com/diwise/farm-operations/internal/pkg/application/equipment"
	"github.com/diwise/farm-operations/internal/pkg/application/events"
	"github.com/diwise/farm-operations/internal/pkg/application/executions"
	"github.com/diwise/farm-operations/internal/pkg/application/finance"
	"github.com/diwise/farm-operations/internal/pkg/application/harvests"
	"github.com/diwise/farm-operations/internal/pkg/application/inventory"
	"github.com/diwise/farm-operations/internal/pkg/application/labor"
	"github.com/diwise/farm-operations/internal/pkg/application/profitability"
	"github.com/diwise/farm-operations/internal/pkg/application/quality"
	"github.com/diwise/farm-operations/internal/pkg/application/recipes"
	"github.com/diwise/farm-operations/internal/pkg/application/watchdog"
	"github.com/diwise/farm-operations/internal/pkg/application/webevents"
	"github.com/diwise/farm-operations/internal/pkg/application/zones"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database"
	alertDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/alerts"
	batchDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/batches"
	equipmentDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/equipment"
	executionDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/executions"
	financeDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/finance"
	harvestDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/harvests"
	inventoryDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/inventory"
	laborDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/labor"
	profitabilityDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/profitability"
	qualityDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/quality"
	recipeDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/recipes"
	zoneDb "github.com/diwise/farm-operations/internal/pkg/infrastructure/repositories/database/zones"
	"github.com/diwise/farm-operations/internal/pkg/infrastructure/router"
	"github.com/diwise/farm-operations/internal/pkg/presentation/api"
	"github.com/diwise/farm-operations/pkg/types"
	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

const serviceName string = "farm-operations"

var policiesFile, configFile, equipmentFile string
var devmode bool

func main() {
	serviceVersion := buildinfo.SourceVersion()

	ctx, logger, cleanup := o11y.Init(context.Background(), serviceName, serviceVersion)
	defer cleanup()

	flag.StringVar(&policiesFile, "policies", "/opt/diwise/config/authz.rego", "An authorization policy file")
	flag.StringVar(&configFile, "config", "/opt/diwise/config/config.yaml", "Notification subscribers and seed recipes")
	flag.StringVar(&equipmentFile, "equipment", "/opt/diwise/config/equipment.csv", "Zones and equipment to seed")
	flag.BoolVar(&devmode, "devmode", false, "Use an in memory database and no message broker")
	flag.Parse()

	policiesFile = env.GetVariableOrDefault(logger, "POLICIES_FILE", policiesFile)
	configFile = env.GetVariableOrDefault(logger, "CONFIG_FILE", configFile)
	equipmentFile = env.GetVariableOrDefault(logger, "EQUIPMENT_FILE", equipmentFile)

	cfg := loadConfiguration(ctx, configFile)

	var connect database.ConnectorFunc
	var publisher application.Publisher
	var messenger messaging.MsgContext

	if devmode {
		logger.Warn().Msg("running in dev mode with an in memory database")
		connect = database.NewSQLiteConnector(ctx)
		publisher = &discardPublisher{log: logger}
	} else {
		connect = database.NewPostgreSQLConnector(ctx, database.LoadConfigFromEnv(ctx))

		var err error
		messenger, err = messaging.Initialize(messaging.LoadConfiguration(serviceName, logger))
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to init messenger")
		}
		publisher = messenger
	}

	allowedOrigins := strings.Split(env.GetVariableOrDefault(logger, "CORS_ALLOWED_ORIGINS", "http://localhost:*"), ",")
	corsPolicy := router.NewCORS(allowedOrigins)

	feed := webevents.New(corsPolicy.OriginAllowed)
	defer feed.Shutdown()

	app, jobs, err := newServices(ctx, connect, publisher, feed, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create application services")
	}

	err = seed(ctx, connect, app, cfg, equipmentFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to seed database")
	}

	if messenger != nil {
		messenger.RegisterTopicMessageHandler(types.CommandStatusTopic, equipment.CommandStatusHandler(app.Equipment))
		messenger.RegisterTopicMessageHandler(types.EquipmentStatusTopic, equipment.EquipmentStatusHandler(app.Equipment))
		defer messenger.Close()
	}

	wd := watchdog.New(logger, jobs...)
	wd.Start()
	defer wd.Stop()

	policies, err := os.Open(policiesFile)
	if err != nil {
		logger.Fatal().Err(err).Msg("unable to open opa policy file")
	}
	defer policies.Close()

	r, err := setupRouter(ctx, corsPolicy, policies, app)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to register api handlers")
	}

	servicePort := env.GetVariableOrDefault(logger, "SERVICE_PORT", "8080")

	logger.Info().Str("port", servicePort).Msg("starting to listen for connections")

	err = http.ListenAndServe(":"+servicePort, r)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start request router")
	}
}

func loadConfiguration(ctx context.Context, path string) *application.Config {
	logger := logging.GetFromContext(ctx)

	f, err := os.Open(path)
	if err != nil {
		logger.Warn().Err(err).Msgf("no configuration loaded from %s", path)
		return &application.Config{}
	}
	defer f.Close()

	cfg, err := application.LoadConfiguration(f)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse configuration")
	}

	return cfg
}

func newServices(ctx context.Context, connect database.ConnectorFunc, publisher application.Publisher, feed webevents.WebEvents, cfg *application.Config) (api.Services, []watchdog.Job, error) {
	zr, err := zoneDb.NewZoneRepository(connect)
	if err != nil {
		return api.Services{}, nil, err
	}
	rr, err := recipeDb.NewRecipeRepository(connect)
	if err != nil {
		return api.Services{}, nil, err
	}
	br, err := batchDb.NewBatchRepository(connect)
	if err != nil {
		return api.Services{}, nil, err
	}
	er, err := executionDb.NewExecutionRepository(connect)
	if err != nil {
		return api.Services{}, nil, err
	}
	eqr, err := equipmentDb.NewEquipmentRepository(connect)
	if err != nil {
		return api.Services{}, nil, err
	}
	hr, err := harvestDb.NewHarvestRepository(connect)
	if err != nil {
		return api.Services{}, nil, err
	}
	fr, err := financeDb.NewFinanceRepository(connect)
	if err != nil {
		return api.Services{}, nil, err
	}
	wr, err := laborDb.NewWorkLogRepository(connect)
	if err != nil {
		return api.Services{}, nil, err
	}
	ar, err := alertDb.NewAlertRepository(connect)
	if err != nil {
		return api.Services{}, nil, err
	}
	pr, err := profitabilityDb.NewProfitabilityRepository(connect)
	if err != nil {
		return api.Services{}, nil, err
	}
	ir, err := inventoryDb.NewInventoryRepository(connect)
	if err != nil {
		return api.Services{}, nil, err
	}
	qr, err := qualityDb.NewQualityRepository(connect)
	if err != nil {
		return api.Services{}, nil, err
	}

	logger := logging.GetFromContext(ctx)

	commandTimeout := durationOrDefault(logger, "COMMAND_TIMEOUT", equipment.DefaultCommandTimeout)
	stageCheckInterval := durationOrDefault(logger, "STAGE_CHECK_INTERVAL", time.Hour)

	alertSvc := alerts.New(ar, events.New(&events.Config{Notifications: cfg.Notifications}), feed)
	batchSvc := batches.New(br, zr, rr, hr, alertSvc, feed)
	equipmentSvc := equipment.New(eqr, zr, publisher, alertSvc, feed, commandTimeout)
	executionSvc := executions.New(er, zr, rr, batchSvc, equipmentSvc, publisher, alertSvc, feed)

	app := api.Services{
		Zones:      zones.New(zr),
		Recipes:    recipes.New(rr),
		Batches:    batchSvc,
		Executions: executionSvc,
		Equipment:  equipmentSvc,
		Harvests:   harvests.New(hr, batchSvc, zr, rr),
		Finance:    finance.New(fr),
		Labor:      labor.New(wr),
		Alerts:     alertSvc,
		Feed:       feed,

		Profitability: profitability.New(pr, br),
		Inventory:     inventory.New(ir, alertSvc, feed),
		Quality:       quality.New(qr, alertSvc, feed),
	}

	jobs := []watchdog.Job{
		{Name: "command-timeout", Interval: time.Minute, Run: equipmentSvc.TimeoutCommands},
		{Name: "stage-check", Interval: stageCheckInterval, Run: executionSvc.CheckStages},
		{Name: "batch-milestones", Interval: time.Hour, Run: batchSvc.CheckMilestones},
		{Name: "alert-cleanup", Interval: 24 * time.Hour, Run: alertSvc.Cleanup},
	}

	return app, jobs, nil
}

func seed(ctx context.Context, connect database.ConnectorFunc, app api.Services, cfg *application.Config, equipmentPath string) error {
	logger := logging.GetFromContext(ctx)

	seedTenants := strings.Split(env.GetVariableOrDefault(logger, "ALLOWED_SEED_TENANTS", "default"), ",")

	if len(cfg.Recipes) > 0 {
		err := app.Recipes.Seed(ctx, seedTenants[0], cfg.Recipes)
		if err != nil {
			return err
		}
	}

	f, err := os.Open(equipmentPath)
	if err != nil {
		logger.Info().Msgf("no equipment seeded, %s", err.Error())
		return nil
	}

	return seedEquipment(ctx, connect, f, seedTenants)
}

func seedEquipment(ctx context.Context, connect database.ConnectorFunc, f io.ReadCloser, tenants []string) error {
	zr, err := zoneDb.NewZoneRepository(connect)
	if err != nil {
		return err
	}

	eqr, err := equipmentDb.NewEquipmentRepository(connect)
	if err != nil {
		return err
	}

	return equipment.Seed(ctx, zr, eqr, f, tenants)
}

func setupRouter(ctx context.Context, corsPolicy *cors.Cors, policies io.Reader, app api.Services) (*chi.Mux, error) {
	r := router.New(serviceName, corsPolicy)
	return api.RegisterHandlers(ctx, r, policies, app)
}

func durationOrDefault(logger zerolog.Logger, name string, def time.Duration) time.Duration {
	s := env.GetVariableOrDefault(logger, name, def.String())

	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		logger.Warn().Msgf("invalid duration %q in %s, using %s", s, name, def)
		return def
	}

	return d
}

// discardPublisher stands in for the message broker in dev mode.
type discardPublisher struct {
	log zerolog.Logger
}

func (p *discardPublisher) PublishOnTopic(ctx context.Context, message messaging.TopicMessage) error {
	p.log.Debug().Str("topic", message.TopicName()).Msg("dropping message in dev mode")
	return nil
}
