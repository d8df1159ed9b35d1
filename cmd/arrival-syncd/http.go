package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/wareline/arrivalbox/config"
	"github.com/wareline/arrivalbox/internal/models"
	"github.com/wareline/arrivalbox/internal/services/arrivals"
	"github.com/wareline/arrivalbox/internal/services/notifier"
)

type gatewayHTTPOpts struct {
	httpAddr    string
	swaggerPath string
	onListen    func(httpAddr string)

	svc   *arrivals.Service
	notif *notifier.Notifier
	store notificationStore
	cfg   *config.Config
}

func runGatewayHTTPServer(ctx context.Context, opts gatewayHTTPOpts) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8080"
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	srv := &http.Server{Handler: newGatewayRouter(opts)}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	return srv.Serve(lis)
}

func newGatewayRouter(opts gatewayHTTPOpts) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		// Готовы, когда рабочий набор загружен хотя бы раз.
		if opts.svc == nil || opts.svc.Stats().TotalLoads == 0 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "loading"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	r.Get("/stats", func(w http.ResponseWriter, r *http.Request) {
		out := map[string]any{}
		if opts.svc != nil {
			out["arrivals"] = opts.svc.Stats()
		}
		if opts.notif != nil {
			out["notifier"] = opts.notif.Stats()
		}
		writeJSON(w, http.StatusOK, out)
	})

	r.Get("/config", func(w http.ResponseWriter, r *http.Request) {
		if opts.cfg == nil {
			writeJSON(w, http.StatusOK, map[string]string{"error": "config not wired"})
			return
		}
		// Секреты наружу не отдаём, только операционные настройки.
		writeJSON(w, http.StatusOK, map[string]any{
			"scanIntervalSeconds":   opts.cfg.ArrivalBox.ScanIntervalSeconds,
			"reloadIntervalSeconds": opts.cfg.ArrivalBox.ReloadIntervalSeconds,
			"maxNotifications":      opts.cfg.ArrivalBox.MaxNotifications,
			"backfillConcurrency":   opts.cfg.ArrivalBox.BackfillConcurrency,
			"upstreamMode":          opts.cfg.Upstream.Mode,
			"knownLocations":        opts.cfg.ArrivalBox.KnownLocations,
			"knownResponsibles":     opts.cfg.ArrivalBox.KnownResponsibles,
		})
	})

	r.Post("/trigger", func(w http.ResponseWriter, r *http.Request) {
		if opts.notif == nil {
			writeJSON(w, http.StatusOK, map[string]string{"error": "notifier not wired"})
			return
		}
		opts.notif.Trigger()
		writeJSON(w, http.StatusOK, map[string]bool{"triggered": true})
	})

	r.Post("/reload", func(w http.ResponseWriter, r *http.Request) {
		if err := opts.svc.Load(r.Context()); err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		if opts.notif != nil {
			opts.notif.Trigger()
		}
		writeJSON(w, http.StatusOK, map[string]any{"reloaded": true, "records": opts.svc.Stats().Records})
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/arrivals", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, opts.svc.List())
		})

		r.Post("/arrivals", func(w http.ResponseWriter, r *http.Request) {
			var input models.ArrivalCreateInput
			if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			created, err := opts.svc.Create(r.Context(), input)
			if err != nil {
				writeError(w, http.StatusBadGateway, err)
				return
			}
			writeJSON(w, http.StatusCreated, created)
		})

		r.Get("/arrivals/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, err := parseID(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			a, ok := opts.svc.Get(id)
			if !ok {
				writeError(w, http.StatusNotFound, fmt.Errorf("arrival %d not found", id))
				return
			}
			writeJSON(w, http.StatusOK, a)
		})

		r.Patch("/arrivals/{id}/status", func(w http.ResponseWriter, r *http.Request) {
			id, err := parseID(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			var body struct {
				Status string `json:"status"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			if err := opts.svc.ChangeStatus(r.Context(), id, body.Status); err != nil {
				writeError(w, http.StatusBadGateway, err)
				return
			}
			a, _ := opts.svc.Get(id)
			writeJSON(w, http.StatusOK, a)
		})

		r.Post("/arrivals/status", func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				IDs    []int64 `json:"ids"`
				Status string  `json:"status"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			out := opts.svc.BulkChangeStatus(r.Context(), body.IDs, body.Status)
			// Частичный отказ — это всё ещё ответ 200 с перечнем неудач.
			writeJSON(w, http.StatusOK, out)
		})

		r.Delete("/arrivals/{id}", func(w http.ResponseWriter, r *http.Request) {
			id, err := parseID(r)
			if err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			if err := opts.svc.Delete(r.Context(), id); err != nil {
				writeError(w, http.StatusBadGateway, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})

		r.Get("/notifications", func(w http.ResponseWriter, r *http.Request) {
			limit := queryInt(r, "limit", 50)
			offset := queryInt(r, "offset", 0)
			items, err := opts.store.List(r.Context(), limit, offset)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			if items == nil {
				items = []*models.Notification{}
			}
			writeJSON(w, http.StatusOK, items)
		})

		r.Get("/notifications/unread-count", func(w http.ResponseWriter, r *http.Request) {
			n, err := opts.store.UnreadCount(r.Context())
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]int64{"unread": n})
		})

		r.Post("/notifications/read", func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				IDs []string `json:"ids"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			// Пустой список означает "прочитано всё".
			var err error
			if len(body.IDs) == 0 {
				err = opts.store.MarkAllRead(r.Context())
			} else {
				err = opts.store.MarkRead(r.Context(), body.IDs)
			}
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"read": true})
		})
	})

	if opts.swaggerPath != "" {
		r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "no-store")
			http.ServeFile(w, r, opts.swaggerPath)
		})
		swaggerURL := "/swagger.json"
		if fi, err := os.Stat(opts.swaggerPath); err == nil {
			swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
		}
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))
	}

	return r
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid arrival id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}

func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
