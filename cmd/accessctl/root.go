package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jacksonlee411/fleet-console/internal/server"
	"github.com/jacksonlee411/fleet-console/modules/access/infrastructure/persistence"
	"github.com/jacksonlee411/fleet-console/modules/access/services"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type cli struct {
	v   *viper.Viper
	out io.Writer
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), out: out}
	var cfgFile string

	root := &cobra.Command{
		Use:           "accessctl",
		Short:         "Evaluate IMEI access restrictions from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cfgFile != "" {
				c.v.SetConfigFile(cfgFile)
				if err := c.v.ReadInConfig(); err != nil {
					return fmt.Errorf("read config %s: %w", cfgFile, err)
				}
			}
			_, err := server.ConfigureLogging(c.v.GetString("log-level"), "console", cmd.ErrOrStderr())
			return err
		},
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml)")
	flags.String("store", server.StoreMemory, "rule store: memory|postgres")
	flags.String("seed", "", "seed file for the memory store")
	flags.String("database-url", "", "postgres connection string")
	flags.Float64("time-gap-hours", 1, "verification dedupe window in hours")
	flags.Int("fanout", 8, "concurrent rule loads for reseller checks")
	flags.String("log-level", "warn", "log level")

	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.SetEnvPrefix("ACCESSCTL")
	c.v.AutomaticEnv()
	_ = c.v.BindPFlags(flags)
	_ = c.v.BindEnv("auth-jwt-secret", "AUTH_JWT_SECRET")

	root.AddCommand(c.checkCmd(), c.checkAdminCmd(), c.verifyCmd(), c.tokenCmd())
	return root
}

type engine struct {
	svc   services.AccessService
	close func()
}

func (c *cli) openEngine(ctx context.Context) (engine, error) {
	hours := c.v.GetFloat64("time-gap-hours")
	if hours <= 0 {
		return engine{}, errors.New("time-gap-hours must be positive")
	}
	opts := services.AccessServiceOptions{
		TimeGap: time.Duration(hours * float64(time.Hour)),
		Fanout:  c.v.GetInt("fanout"),
	}

	switch store := c.v.GetString("store"); store {
	case server.StoreMemory:
		mem, err := persistence.NewMemoryStore()
		if err != nil {
			return engine{}, err
		}
		if path := c.v.GetString("seed"); path != "" {
			seed, err := persistence.LoadSeedFile(path)
			if err != nil {
				return engine{}, err
			}
			if err := seed.Apply(mem); err != nil {
				return engine{}, err
			}
		}
		return engine{svc: services.NewAccessService(mem, mem, mem, mem, opts), close: func() {}}, nil
	case server.StorePostgres:
		dsn := c.v.GetString("database-url")
		if dsn == "" {
			return engine{}, errors.New("--database-url is required for the postgres store")
		}
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return engine{}, err
		}
		pg := persistence.NewAccessPGStore(pool)
		svc := services.NewAccessService(pg, pg, pg, persistence.NewVerificationPGStore(pool), opts)
		return engine{svc: svc, close: pool.Close}, nil
	default:
		return engine{}, fmt.Errorf("unknown store %q", store)
	}
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
