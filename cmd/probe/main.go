package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/erikg84/supabase-sdk/client"
	"github.com/erikg84/supabase-sdk/errors"
	sdklog "github.com/erikg84/supabase-sdk/internal/pkg/log"
	platformconfig "github.com/erikg84/supabase-sdk/internal/platform/config"
	"github.com/erikg84/supabase-sdk/result"
)

// probe connects with the environment's configuration, optionally signs in,
// and counts the rows of one table.
func main() {
	cfg, err := platformconfig.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	c, err := client.NewFromConfig(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	if err := client.Init(c); err != nil {
		log.Fatalf("Failed to register client: %v", err)
	}
	defer func() {
		if c := client.Reset(); c != nil {
			c.Close()
		}
	}()

	if email, password := os.Getenv("PROBE_EMAIL"), os.Getenv("PROBE_PASSWORD"); email != "" && password != "" {
		client.MustDefault().Auth().SignInWithEmail(ctx, email, password).
			OnFailure(func(e *errors.Error) {
				sdklog.Warn("Sign-in failed (%s): %s", e.Kind, e.Message)
			})
	}
	sdklog.InfoStruct(client.MustDefault().Auth().State())

	table := os.Getenv("PROBE_TABLE")
	if table == "" {
		table = "todos"
	}

	count := client.Table[map[string]interface{}](client.MustDefault(), table).Select().Count(ctx)
	result.Fold(count,
		func(n int64) struct{} {
			sdklog.Info("Table %q has %d rows", table, n)
			return struct{}{}
		},
		func(e *errors.Error) struct{} {
			sdklog.Error("Count on %q failed (%s, code %q): %s", table, e.Kind, e.Code, e.Message)
			return struct{}{}
		},
	)
}
