package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"spendtrack.org/internal/alert"
	"spendtrack.org/internal/audit"
	"spendtrack.org/internal/auth"
	"spendtrack.org/internal/authz"
	"spendtrack.org/internal/grant"
	"spendtrack.org/internal/group"
	"spendtrack.org/internal/httpapi"
	"spendtrack.org/internal/obs"
	"spendtrack.org/internal/record"
	"spendtrack.org/internal/store/memory"
	"spendtrack.org/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Postgres when a DSN is present, in-memory stores otherwise. The
	// in-memory mode exists for local development and loses state on restart.
	var (
		db          *sql.DB
		userStore   auth.Store
		groupStore  group.Store
		grantStore  grant.Store
		auditStore  audit.Store
		recordStore record.Store
	)
	if dsn := os.Getenv("SPENDTRACK_PG_DSN"); dsn != "" {
		st, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db = st.DB()
		userStore = st.Users()
		groupStore = st.Groups()
		grantStore = st.Grants()
		auditStore = st.Audit()
		recordStore = st.Records()
	} else {
		log.Printf("SPENDTRACK_PG_DSN not set, using in-memory stores")
		userStore = memory.NewUserStore()
		groupStore = memory.NewGroupStore()
		grantStore = memory.NewGrantStore()
		auditStore = memory.NewAuditStore()
		recordStore = memory.NewRecordStore()
	}

	groups := group.NewService(groupStore)
	authSvc, err := auth.NewService(userStore, groups)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	grants := grant.NewService(grantStore)
	engine := authz.NewEngine(grants)
	trail := audit.NewLogger(auditStore)
	records := record.NewService(recordStore, engine, trail)
	alerts := alert.NewService(recordStore, engine)

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, httpapi.Deps{
		Auth:    authSvc,
		Alerts:  alerts,
		Engine:  engine,
		Grants:  grants,
		Groups:  groups,
		Records: records,
		Trail:   trail,
		Lookup:  record.Lookup(recordStore),
	})

	addr := os.Getenv("SPENDTRACK_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting spendtrack-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
