package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"

	"github.com/rs/cors"

	"clarity-backend/internal/ai"
	"clarity-backend/internal/analytics"
	"clarity-backend/internal/auth"
	"clarity-backend/internal/config"
	"clarity-backend/internal/db"
	"clarity-backend/internal/entries"
	"clarity-backend/internal/httpapi"
	"clarity-backend/internal/reminder"
	"clarity-backend/internal/store"
)

// ----------------------
//        MAIN
// ----------------------

func main() {
	cfg := config.Load()
	ctx := context.Background()

	var (
		st  entries.Store
		dbx *sql.DB // nil in memory mode
	)

	switch cfg.DBDriver {
	case "sqlite":
		database, err := db.ConnectSQLite(cfg.SQLitePath)
		if err != nil {
			log.Fatal("❌ Failed to open SQLite:", err)
		}
		defer database.Close()

		sq := store.NewSQLite(database)
		if err := sq.EnsureSchema(ctx); err != nil {
			log.Fatal("❌ Schema migration failed:", err)
		}
		st, dbx = sq, database
		log.Println("✅ Connected to SQLite!")

	case "memory":
		st = store.NewMemory()
		log.Println("⚠️ Using in-memory store: auth and analytics endpoints are disabled")

	default:
		database, err := db.Connect(cfg.ConnString())
		if err != nil {
			log.Fatal("❌ Failed to connect DB:", err)
		}
		defer database.Close()

		pg := store.NewPostgres(database)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Fatal("❌ Schema migration failed:", err)
		}
		st, dbx = pg, database
		log.Println("✅ Connected to PostgreSQL!")
	}

	logger := analytics.New(dbx, cfg.DBDriver)
	mgr := entries.NewManager(st)

	if cfg.OpenAIKey == "" {
		log.Println("⚠️ OPENAI_API_KEY is not set; /mind-dump will fail")
	}
	classifier := ai.New(cfg.OpenAIKey, cfg.OpenAIModel)

	sched := reminder.NewScheduler(reminder.NewResolver())

	secret := []byte(cfg.JWTSecret)
	mw := auth.New(secret)

	mux := http.NewServeMux()

	// Health endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	// ----- AUTH API -----
	if dbx != nil {
		mux.HandleFunc("/auth/register", post(auth.RegisterHandler(dbx, secret)))
		mux.HandleFunc("/auth/login", post(auth.LoginHandler(dbx, secret)))
		mux.HandleFunc("/auth/me", get(mw.Wrap(auth.MeHandler(dbx))))
		mux.HandleFunc("/auth/logout", post(auth.LogoutHandler()))
		mux.HandleFunc("/auth/account", del(mw.Wrap(auth.DeleteAccountHandler(dbx, mgr.Drop))))

		mux.HandleFunc("/analytics/app-opened", post(mw.Wrap(analytics.AppOpenedHandler(logger))))
	}

	// ----- MIND DUMP -----
	mux.HandleFunc("/mind-dump", post(mw.Wrap(httpapi.MindDumpHandler(mgr, classifier, logger))))

	// ----- ENTRIES API -----
	mux.HandleFunc("/entries", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			mw.Wrap(httpapi.GetEntriesHandler(mgr))(w, r)
		case http.MethodPost:
			mw.Wrap(httpapi.AddTaskHandler(mgr, logger))(w, r)
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/entries/view", get(mw.Wrap(httpapi.GroupedViewHandler(mgr))))
	mux.HandleFunc("/entries/update", post(mw.Wrap(httpapi.UpdateEntryHandler(mgr, logger))))
	mux.HandleFunc("/entries/complete", post(mw.Wrap(httpapi.ToggleCompleteHandler(mgr, logger))))
	mux.HandleFunc("/entries/reorder", post(mw.Wrap(httpapi.ReorderHandler(mgr, logger))))
	mux.HandleFunc("/entries/delete", post(mw.Wrap(httpapi.DeleteEntryHandler(mgr, logger))))
	mux.HandleFunc("/entries/remind", post(mw.Wrap(httpapi.RemindHandler(mgr, sched, logger))))

	// CORS
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Idempotency-Key", "X-Platform", "X-App-Version", "X-Session-Id", "X-Device-Locale", "X-Source-Event-Key"},
		AllowCredentials: true,
	})

	handler := c.Handler(mux)

	log.Printf("🚀 API server is running on %s", cfg.Addr())
	log.Fatal(http.ListenAndServe(cfg.Addr(), handler))
}

// ----------------------
//    METHOD ROUTING
// ----------------------

func post(h http.HandlerFunc) http.HandlerFunc { return method(http.MethodPost, h) }
func get(h http.HandlerFunc) http.HandlerFunc  { return method(http.MethodGet, h) }
func del(h http.HandlerFunc) http.HandlerFunc  { return method(http.MethodDelete, h) }

func method(m string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case m:
			h(w, r)
		case http.MethodOptions:
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	}
}
