package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/config"
	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/handler"
	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/notifier"
	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/repository"
	"github.com/vasapolrittideah/health-journal-api/services/journal-service/internal/usecase"
	"github.com/vasapolrittideah/health-journal-api/shared/auth"
	"github.com/vasapolrittideah/health-journal-api/shared/discovery"
	"github.com/vasapolrittideah/health-journal-api/shared/mailer"
	"github.com/vasapolrittideah/health-journal-api/shared/metrics"
	"github.com/vasapolrittideah/health-journal-api/shared/ratelimit"
	"github.com/vasapolrittideah/health-journal-api/shared/security"
	"github.com/vasapolrittideah/health-journal-api/shared/utilities"
	"github.com/vasapolrittideah/health-journal-api/shared/validator"
)

const (
	metricsNamespace = "journal"
	redisPingTimeout = 5 * time.Second
	rateLimitPrefix  = "journal:ratelimit:"
	healthPath       = "/healthz"
)

// App owns every long-lived component of the journal service.
type App struct {
	cfg    *config.JournalServiceConfig
	logger *zerolog.Logger

	store         *repository.Store
	redis         *redis.Client
	limiter       ratelimit.Limiter
	passwordReset usecase.PasswordResetUsecase
	handler       http.Handler

	httpListener net.Listener
	httpServer   *http.Server
	grpcListener net.Listener
	probe        *utilities.HealthProbeServer
	registrar    *discovery.ConsulRegistrar
}

// New connects to the backing services and binds the listeners. Nothing is
// served until Run is called; Close releases what New acquired if Run is
// never reached.
func New(ctx context.Context, cfg *config.JournalServiceConfig, logger *zerolog.Logger) (*App, error) {
	a := &App{cfg: cfg, logger: logger}
	if err := a.init(ctx); err != nil {
		a.Close(context.Background())
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	var err error

	a.store, err = repository.Open(ctx, a.cfg.Store, a.logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}

	denylist := repository.NewMemoryTokenDenylist(time.Now)
	a.limiter = ratelimit.NewMemoryLimiter()
	if a.cfg.Redis.Enabled() {
		a.redis = redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		err := a.redis.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}

		_ = a.limiter.Close()
		denylist = repository.NewRedisTokenDenylist(a.redis)
		a.limiter = ratelimit.NewRedisLimiter(a.redis, rateLimitPrefix, a.logger)
	}

	v, err := validator.New()
	if err != nil {
		return fmt.Errorf("failed to create validator: %w", err)
	}

	resetNotifier, err := a.newNotifier()
	if err != nil {
		return err
	}

	m := metrics.New(metricsNamespace)
	hasher := security.NewArgon2Hasher(a.cfg.HashConcurrency)
	jwtAuth := auth.NewJWTAuthenticator(a.cfg.Token.Audience, a.cfg.Token.Issuer)

	authUsecase := usecase.NewAuthUsecase(a.store.Users, denylist, hasher, jwtAuth, v, a.cfg.Token, a.logger)
	a.passwordReset = usecase.NewPasswordResetUsecase(a.store.Users, hasher, resetNotifier, v, a.cfg, a.logger,
		usecase.WithResetObserver(m))
	healthEntryUsecase := usecase.NewHealthEntryUsecase(a.store.Entries, v)

	a.handler = handler.NewRouter(handler.RouterConfig{
		Logger:               a.logger,
		AuthUsecase:          authUsecase,
		PasswordResetUsecase: a.passwordReset,
		HealthEntryUsecase:   healthEntryUsecase,
		Metrics:              m,
		Limiter:              a.limiter,
		AuthRateLimit:        a.cfg.RateLimit.AuthPerMinute,
		CORSOrigins:          a.cfg.HTTP.CORSOrigins,
		HealthCheck:          a.store.Ping,
	})

	a.httpListener, err = net.Listen("tcp", a.cfg.HTTP.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.HTTP.Addr, err)
	}
	a.httpServer = &http.Server{
		Handler:           a.handler,
		ReadTimeout:       a.cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: a.cfg.HTTP.ReadTimeout,
		WriteTimeout:      a.cfg.HTTP.WriteTimeout,
	}

	if a.cfg.HTTP.GRPCHealthEnabled() {
		a.grpcListener, err = net.Listen("tcp", a.cfg.HTTP.GRPCHealthAddr)
		if err != nil {
			return fmt.Errorf("failed to listen on %s: %w", a.cfg.HTTP.GRPCHealthAddr, err)
		}
		a.probe = utilities.NewHealthProbeServer(a.logger, a.cfg.Discovery.ServiceName)
	}

	if a.cfg.Discovery.ConsulAddr != "" {
		a.registrar, err = discovery.NewConsulRegistrar(a.cfg.Discovery.ConsulAddr, a.logger)
		if err != nil {
			return err
		}
	}

	return nil
}

func (a *App) newNotifier() (usecase.PasswordResetNotifier, error) {
	if !a.cfg.SMTP.Enabled() {
		a.logger.Warn().Msg("SMTP_HOST not set; password reset links will only be logged")
		return notifier.NewLogNotifier(a.logger, !a.cfg.IsProduction()), nil
	}

	m, err := mailer.NewMailer(mailer.Config{
		Host:     a.cfg.SMTP.Host,
		Port:     a.cfg.SMTP.Port,
		Username: a.cfg.SMTP.Username,
		Password: a.cfg.SMTP.Password,
		From:     a.cfg.SMTP.From,
	}, a.logger)
	if err != nil {
		return nil, err
	}
	return notifier.NewEmailNotifier(m, a.logger), nil
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Addr is the bound HTTP address.
func (a *App) Addr() net.Addr {
	return a.httpListener.Addr()
}

// Run serves until ctx is cancelled or a server fails, then shuts down.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.Info().Str("addr", a.httpListener.Addr().String()).Msg("HTTP server listening")
		if err := a.httpServer.Serve(a.httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if a.probe != nil {
		g.Go(func() error {
			if err := a.probe.Serve(a.grpcListener); err != nil {
				return fmt.Errorf("grpc health server: %w", err)
			}
			return nil
		})
	}

	var registration *discovery.Registration
	if a.registrar != nil {
		reg, err := discovery.RegistrationFromAddr(a.cfg.Discovery.ServiceName,
			a.httpListener.Addr().String(), a.cfg.Discovery.ServiceAddress, healthPath)
		if err != nil {
			a.logger.Error().Err(err).Msg("skipping consul registration")
		} else if err := a.registrar.Register(reg); err != nil {
			a.logger.Error().Err(err).Msg("consul registration failed")
		} else {
			registration = &reg
		}
	}

	g.Go(func() error {
		<-gctx.Done()

		if registration != nil {
			if err := a.registrar.Deregister(*registration); err != nil {
				a.logger.Error().Err(err).Msg("consul deregistration failed")
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return a.shutdown(shutdownCtx)
	})

	return g.Wait()
}

// shutdown stops accepting work, lets in-flight requests and reset
// notifications finish, then closes the backing services.
func (a *App) shutdown(ctx context.Context) error {
	a.logger.Info().Msg("shutting down")

	if a.probe != nil {
		a.probe.Shutdown(ctx)
	}

	var errs []error
	if err := a.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	a.passwordReset.Wait()

	if err := a.closeBackends(ctx); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Close releases resources without serving. It is safe to call on a
// partially initialised App.
func (a *App) Close(ctx context.Context) {
	if a.httpListener != nil {
		_ = a.httpListener.Close()
	}
	if a.grpcListener != nil {
		_ = a.grpcListener.Close()
	}
	if a.passwordReset != nil {
		a.passwordReset.Wait()
	}
	if err := a.closeBackends(ctx); err != nil {
		a.logger.Error().Err(err).Msg("failed to close backends")
	}
}

func (a *App) closeBackends(ctx context.Context) error {
	var errs []error

	if a.limiter != nil {
		if err := a.limiter.Close(); err != nil {
			errs = append(errs, fmt.Errorf("rate limiter: %w", err))
		}
		a.limiter = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
		a.redis = nil
	}
	if a.store != nil {
		if err := a.store.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("store: %w", err))
		}
		a.store = nil
	}

	return errors.Join(errs...)
}
