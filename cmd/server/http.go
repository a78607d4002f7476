package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"teleportals.ai/internal/sim/runtime"
	"teleportals.ai/internal/transport/ws"
)

func buildMux(rt *runtime.Runtime, wsSrv *ws.Server, idx runtimeIndex, reload func(context.Context) error) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		st, err := rt.Stats(ctx)
		if err != nil {
			http.Error(rw, err.Error(), http.StatusServiceUnavailable)
			return
		}
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		// Minimal Prometheus exposition format.
		gauge(rw, "teleportals_tick", "Current runtime tick.", st.Tick)
		gauge(rw, "teleportals_groups", "Link groups with at least one endpoint.", st.Groups)
		gauge(rw, "teleportals_endpoints", "Registered endpoints in loaded and unloaded worlds.", st.Endpoints)
		gauge(rw, "teleportals_parked_endpoints", "Endpoints held back until their world loads.", st.Parked)
		gauge(rw, "teleportals_loaded_worlds", "Loaded worlds.", len(st.Worlds))
		gauge(rw, "teleportals_actors", "Actors in the world.", st.Actors)
		gauge(rw, "teleportals_chunks", "Non-empty block chunks.", st.Chunks)
		gauge(rw, "teleportals_last_save_tick", "Tick of the last successful link save.", st.LastSaveTick)
		gauge(rw, "teleportals_ws_sessions", "Connected websocket sessions.", wsSrv.Sessions())
		if idx != nil {
			is := idx.Stats()
			gauge(rw, "teleportals_index_queue_depth", "Index writer backlog.", is.QueueDepth)
			gauge(rw, "teleportals_index_dropped_events_total", "Audit rows dropped by the index.", is.DropEventTotal)
			gauge(rw, "teleportals_index_dropped_saves_total", "Save rows dropped by the index.", is.DropSaveTotal)
		}
	})

	// Local-only admin endpoints.
	mux.HandleFunc("/admin/v1/state", loopbackOnly(func(rw http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		st, err := rt.Stats(ctx)
		writeJSONResponse(rw, st, err)
	}))
	mux.HandleFunc("/admin/v1/save", loopbackOnly(postOnly(func(rw http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()
		res, err := rt.Save(ctx)
		writeJSONResponse(rw, map[string]any{
			"tick": res.Tick, "groups": res.Groups, "endpoints": res.Endpoints,
			"parked": res.Parked, "bytes": res.Bytes, "backup": res.Backup,
		}, err)
	})))
	mux.HandleFunc("/admin/v1/reload", loopbackOnly(postOnly(func(rw http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		writeJSONResponse(rw, map[string]any{"reloaded": true}, reload(ctx))
	})))
	mux.HandleFunc("/admin/v1/worlds/", loopbackOnly(postOnly(func(rw http.ResponseWriter, r *http.Request) {
		// /admin/v1/worlds/<id>/load or /admin/v1/worlds/<id>/unload
		parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/admin/v1/worlds/"), "/")
		if len(parts) != 2 || parts[0] == "" {
			http.NotFound(rw, r)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		switch parts[1] {
		case "load":
			res, err := rt.LoadWorld(ctx, parts[0])
			writeJSONResponse(rw, map[string]any{
				"already_loaded": res.AlreadyLoaded, "adopted": res.Adopted,
				"dropped": len(res.Reconcile.Dropped), "pruned": res.Reconcile.Pruned,
			}, err)
		case "unload":
			ok, err := rt.UnloadWorld(ctx, parts[0])
			writeJSONResponse(rw, map[string]any{"unloaded": ok}, err)
		default:
			http.NotFound(rw, r)
		}
	})))

	mux.HandleFunc("/v1/ws", wsSrv.Handler())
	return mux
}

func gauge[T int | int64 | uint64](rw http.ResponseWriter, name, help string, v T) {
	fmt.Fprintf(rw, "# HELP %s %s\n", name, help)
	fmt.Fprintf(rw, "# TYPE %s gauge\n", name)
	fmt.Fprintf(rw, "%s %d\n", name, v)
}

func loopbackOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		h(rw, r)
	}
}

func postOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(rw, r)
	}
}

func writeJSONResponse(rw http.ResponseWriter, v any, err error) {
	rw.Header().Set("Content-Type", "application/json")
	if err != nil {
		rw.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
		return
	}
	_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "result": v})
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
