package main

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"robotodyssey.web/internal/config"
	"robotodyssey.web/internal/engine"
	"robotodyssey.web/internal/savedata"
	"robotodyssey.web/internal/transport/ws"
)

type classifyResp struct {
	Kind     string `json:"kind"`
	Label    string `json:"label"`
	Filename string `json:"filename"`
	Size     int    `json:"size"`
}

type tokenResp struct {
	Token string `json:"token"`
}

func newRouter(cfg config.Config, wsSrv *ws.Server, logger *log.Logger) http.Handler {
	codec := cfg.TokenCodec()
	maxBody := int64(cfg.Engine.MaxUnpackedBytes)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(rw http.ResponseWriter, _ *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	r.Get("/v1/ws", wsSrv.Handler())

	r.Post("/v1/classify", func(rw http.ResponseWriter, r *http.Request) {
		b, ok := readSave(rw, r, maxBody)
		if !ok {
			return
		}
		c := savedata.Classify(b)
		writeJSON(rw, 200, classifyResp{
			Kind:     c.Kind.String(),
			Label:    c.Label(),
			Filename: c.Filename(time.Now()),
			Size:     len(b),
		})
	})

	// Packs a raw save into a location-hash token, for building share links.
	r.Post("/v1/token", func(rw http.ResponseWriter, r *http.Request) {
		b, ok := readSave(rw, r, maxBody)
		if !ok {
			return
		}
		packed, err := engine.Pack(b)
		if err != nil {
			writeJSON(rw, 500, map[string]string{"error": err.Error()})
			return
		}
		token := codec.Encode(packed)
		logger.Printf("token for %s: %s packed into %s", savedata.Classify(b).Label(),
			humanize.Bytes(uint64(len(b))), humanize.Bytes(uint64(len(token))))
		writeJSON(rw, 200, tokenResp{Token: token})
	})
	return r
}

func readSave(rw http.ResponseWriter, r *http.Request, limit int64) ([]byte, bool) {
	b, err := io.ReadAll(http.MaxBytesReader(rw, r.Body, limit))
	if err != nil {
		writeJSON(rw, http.StatusRequestEntityTooLarge, map[string]string{"error": err.Error()})
		return nil, false
	}
	if len(b) == 0 {
		writeJSON(rw, 400, map[string]string{"error": "empty body"})
		return nil, false
	}
	return b, true
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
