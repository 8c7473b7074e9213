package server

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// NewHandler 组装全部路由：WebSocket、管理接口、监控与健康检查
func NewHandler(cfg *Config, s *Session, auto *AutoEventer, m *Metrics) http.Handler {
	r := mux.NewRouter()
	r.Handle("/ws", NewWSHandler(s, m, cfg.AllowedOrigins))

	api := &adminAPI{session: s, auto: auto}
	api.register(r)

	r.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}
