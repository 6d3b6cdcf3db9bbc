package main

import (
	"context"
	"log"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zekoder/zecore/internal/registry"
	"github.com/zekoder/zecore/internal/server"
	"github.com/zekoder/zecore/internal/session"
	"github.com/zekoder/zecore/modules/identity/infrastructure/zeauth"
	"github.com/zekoder/zecore/modules/record/infrastructure/persistence"
	"github.com/zekoder/zecore/pkg/authz"
)

func main() {
	addr := os.Getenv("HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	reg := registry.New()
	if err := registry.LoadManifest(reg); err != nil {
		log.Fatal(err)
	}

	pool, err := pgxpool.New(context.Background(), server.DSNFromEnv())
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	zeauthURL := getenv("ZEAUTH_BASE_URL", "https://zeauth.zekoder.net")
	verifier, err := zeauth.New(zeauthURL)
	if err != nil {
		log.Fatal(err)
	}

	wellKnown := map[string]string{
		"zeauth":   zeauthURL,
		"zenotify": getenv("ZENOTIFY_BASE_URL", "https://zenotify.zekoder.net"),
	}

	mode, err := authz.ModeFromEnv()
	if err != nil {
		log.Fatal(err)
	}
	var authorizer *authz.Authorizer
	if mode != authz.ModeDisabled {
		authorizer, err = authz.NewAuthorizer(
			os.Getenv("ZECORE_AUTHZ_MODEL"),
			os.Getenv("ZECORE_AUTHZ_POLICY"),
			mode,
		)
		if err != nil {
			log.Fatal(err)
		}
	}

	handler, err := server.NewHandler(server.Options{
		Registry:      reg,
		Store:         persistence.NewRecordPGStore(pool),
		Verifier:      verifier,
		Authorizer:    authorizer,
		Acquirer:      session.PoolAcquirer{Pool: pool},
		WellKnownURLs: wellKnown,
	})
	if err != nil {
		log.Fatal(err)
	}

	log.Printf("listening on %s", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Fatal(err)
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
