// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package httpserver

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/glidein/glidein-controller/internal/apierrors"
	"github.com/glidein/glidein-controller/internal/auth"
	"github.com/glidein/glidein-controller/internal/logging"
	"github.com/glidein/glidein-controller/internal/match"
	"github.com/glidein/glidein-controller/internal/registry"
)

// handleStatus reports the cached job snapshot and the full client
// registry, mirroring the upstream collector's combined status view.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.Cache.GetCached()
	writeJSON(w, http.StatusOK, map[string]any{
		"condor":  snap,
		"clients": s.Registry.SnapshotAll(),
	})
}

// handleHealthz is a liveness probe with no auth and no dependency on the
// batch-system adapter being reachable.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMetrics exposes the in-process metrics collector's stats as JSON.
// Not a Prometheus endpoint; the controller's metrics are for operator
// visibility, not scraping. Admin-only.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Metrics.GetStats())
}

type tokenRequest struct {
	Client string `json:"client"`
}

// handleTokens mints a client-role bearer token for the named site.
// Admin-only.
func (s *Server) handleTokens(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.requireRole(w, r, auth.RoleAdmin); !ok {
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Client == "" {
		s.writeError(w, r, apierrors.BadInput(`missing "client" in request body`))
		return
	}

	tok, err := s.Auth.Mint(req.Client, auth.RoleClient)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"client": req.Client, "token": tok})
}

type rawQueueWire struct {
	Resources     map[string]any `json:"resources"`
	NumQueued     int            `json:"num_queued"`
	NumProcessing int            `json:"num_processing"`
}

// decodeQueues parses a client's queues_map payload, validating that each
// entry carries exactly the three expected keys.
func decodeQueues(body []byte) ([]registry.RawQueue, error) {
	if len(body) == 0 {
		return nil, nil
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apierrors.BadInput("request body must be a JSON object")
	}

	out := make([]registry.RawQueue, 0, len(raw))
	for ref, msg := range raw {
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(msg, &fields); err != nil {
			return nil, apierrors.BadInput("queue %q must be a JSON object", ref)
		}
		if len(fields) != 3 {
			return nil, apierrors.BadInput("queue %q must have exactly {resources, num_queued, num_processing}", ref)
		}

		var wire rawQueueWire
		if err := json.Unmarshal(msg, &wire); err != nil {
			return nil, apierrors.BadInput("queue %q: %s", ref, err)
		}
		for _, key := range []string{"resources", "num_queued", "num_processing"} {
			if _, ok := fields[key]; !ok {
				return nil, apierrors.BadInput("queue %q is missing required key %q", ref, key)
			}
		}

		out = append(out, registry.RawQueue{
			Ref:           ref,
			Resources:     wire.Resources,
			NumQueued:     wire.NumQueued,
			NumProcessing: wire.NumProcessing,
		})
	}
	return out, nil
}

// handleClientUpsert fully replaces the named site's queue set.
// Admin, or the client itself.
func (s *Server) handleClientUpsert(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.requireRole(w, r, auth.RoleAdmin, auth.RoleClient)
	if !ok {
		return
	}

	client := mux.Vars(r)["client"]
	if err := claims.AuthorizeWrite(client); err != nil {
		s.writeError(w, r, err)
		return
	}

	body, err := readBody(r)
	if err != nil {
		s.writeError(w, r, apierrors.BadInput("failed to read request body"))
		return
	}

	queues, err := decodeQueues(body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.Registry.Upsert(client, queues); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

// handleClientQueue optionally upserts the site's queue status, then
// requires the site to already be registered, matches its demand against
// the current snapshot, and returns the additional-pilots request plus a
// fresh startd token.
func (s *Server) handleClientQueue(w http.ResponseWriter, r *http.Request) {
	claims, ok := s.requireRole(w, r, auth.RoleAdmin, auth.RoleClient)
	if !ok {
		return
	}

	client := mux.Vars(r)["client"]
	if err := claims.AuthorizeWrite(client); err != nil {
		s.writeError(w, r, err)
		return
	}

	body, err := readBody(r)
	if err != nil {
		s.writeError(w, r, apierrors.BadInput("failed to read request body"))
		return
	}
	if len(body) > 0 {
		queues, err := decodeQueues(body)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := s.Registry.Upsert(client, queues); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	if _, ok := s.Registry.Get(client); !ok {
		s.writeError(w, r, apierrors.BadInput("need to provide client queue status"))
		return
	}

	snap, err := s.Cache.Get(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	opLogger := logging.LogOperation(s.Logger, "match", "client", client)
	result := match.Match(client, s.Registry, snap)
	if len(result) == 0 {
		opLogger.Debug("match produced no additional pilots requested")
		writeJSON(w, http.StatusOK, map[string]any{})
		return
	}
	opLogger.Debug("match produced pilots requested", "queues", len(result))

	tokenBytes, err := s.Adapter.FetchStartdToken(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"queues": result,
		"token":  base64.StdEncoding.EncodeToString(tokenBytes),
	})
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()
	return io.ReadAll(r.Body)
}
