// cmd/recall-migrate/main.go
package main

import (
	"context"
	"flag"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"recall/internal/pkg/bootstrap"
	"recall/internal/pkg/database"
	"recall/internal/pkg/logger"
	"recall/internal/service/recall/application"
	"recall/internal/service/recall/domain"
	"recall/internal/service/recall/infrastructure"
)

const serviceName = "recall-migrate"

var (
	seedUser     = flag.String("seed-user", "", "create a merchant with this username after migrating")
	seedPassword = flag.String("seed-password", "", "password of the seeded merchant")
	seedName     = flag.String("seed-name", "", "display name of the seeded merchant")
	seedIndustry = flag.String("seed-industry", "", "industry of the seeded merchant")
	useBcrypt    = flag.Bool("bcrypt", false, "store the seeded password as bcrypt instead of sha256")
)

func main() {
	flag.Parse()
	cfg, err := bootstrap.Init()
	if err != nil {
		zerolog.New(os.Stderr).Fatal().Err(err).Msg("load config failed")
	}
	cfg.Log.Service = serviceName
	log := logger.Init(cfg.Log)
	ctx := log.WithContext(context.Background())

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("migrate failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *bootstrap.Config) error {
	log := logger.Ctx(ctx)

	db, err := infrastructure.OpenGorm(cfg.Database)
	if err != nil {
		return err
	}
	if err := infrastructure.AutoMigrate(ctx, db); err != nil {
		return err
	}
	log.Info().Str("database", cfg.Database.Name).Msg("schema migrated")

	if *seedUser == "" {
		return nil
	}
	pool, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	var opts []application.MerchantOption
	if *useBcrypt {
		opts = append(opts, application.WithBcrypt())
	}
	svc := application.NewMerchantService(infrastructure.NewMerchantDAO(pool), otel.Tracer(serviceName), opts...)
	m, err := svc.CreateMerchant(ctx, application.CreateMerchantRequest{
		Username: *seedUser,
		Password: *seedPassword,
		Name:     *seedName,
		Industry: *seedIndustry,
	})
	if errors.Is(err, domain.ErrUsernameTaken) {
		log.Info().Str("username", *seedUser).Msg("seed merchant already exists")
		return nil
	}
	if err != nil {
		return err
	}
	log.Info().Int64("merchant_id", m.ID).Str("username", m.Username).Msg("seed merchant created")
	return nil
}
