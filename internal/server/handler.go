// Package server exposes the registered record types over HTTP: CRUD per
// resource plus the declarative query endpoint. Every request is verified,
// then runs under the caller's identity.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/zekoder/zecore/internal/registry"
	"github.com/zekoder/zecore/internal/session"
	querytypes "github.com/zekoder/zecore/modules/query/domain/types"
	queryservices "github.com/zekoder/zecore/modules/query/services"
	"github.com/zekoder/zecore/modules/record/domain/ports"
	"github.com/zekoder/zecore/modules/record/domain/types"
	recordservices "github.com/zekoder/zecore/modules/record/services"
	"github.com/zekoder/zecore/pkg/apperr"
	"github.com/zekoder/zecore/pkg/authz"
	"github.com/zekoder/zecore/pkg/httperr"
)

const (
	defaultPage = 1
	defaultSize = 20
)

type Options struct {
	Registry   *registry.Registry
	Store      ports.RecordStore
	Verifier   ports.IdentityVerifier
	Authorizer *authz.Authorizer
	Acquirer   session.Acquirer
	// WellKnownURLs is handed to hooks on every signal payload, so rule and
	// notification hooks can reach sibling services.
	WellKnownURLs map[string]string
}

type handler struct {
	registry   *registry.Registry
	store      ports.RecordStore
	verifier   ports.IdentityVerifier
	authorizer *authz.Authorizer
	acquirer   session.Acquirer
	hooks      map[string]ports.Hooks
	wellKnown  map[string]string
}

// NewHandler builds the HTTP surface. Rule hooks compile here, so a bad
// expression fails startup instead of the first request.
func NewHandler(opts Options) (http.Handler, error) {
	if opts.Registry == nil {
		return nil, errors.New("server: missing registry")
	}
	if opts.Store == nil {
		return nil, errors.New("server: missing record store")
	}
	if opts.Verifier == nil {
		return nil, errors.New("server: missing identity verifier")
	}

	hooks := make(map[string]ports.Hooks)
	for _, name := range opts.Registry.Names() {
		reg, _ := opts.Registry.Registration(name)
		h, err := recordservices.NewRuleHooks(reg.Rules)
		if err != nil {
			return nil, err
		}
		hooks[name] = h
	}

	h := &handler{
		registry:   opts.Registry,
		store:      opts.Store,
		verifier:   opts.Verifier,
		authorizer: opts.Authorizer,
		acquirer:   opts.Acquirer,
		hooks:      hooks,
		wellKnown:  opts.WellKnownURLs,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /{resource}/query", h.protect(h.query))
	mux.HandleFunc("GET /{resource}", h.protect(h.list))
	mux.HandleFunc("POST /{resource}", h.protect(h.create))
	mux.HandleFunc("POST /{resource}/delete", h.protect(h.deleteMany))
	mux.HandleFunc("GET /{resource}/{id}", h.protect(h.get))
	mux.HandleFunc("PUT /{resource}/{id}", h.protect(h.update))
	mux.HandleFunc("DELETE /{resource}/{id}", h.protect(h.delete))
	return mux, nil
}

type scopedHandler func(w http.ResponseWriter, r *http.Request, identity types.Identity, credential string)

// protect verifies the bearer token and resolves the resource before the
// wrapped handler runs.
func (h *handler) protect(next scopedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			httperr.Write(w, apperr.NewForbidden("missing bearer token"))
			return
		}
		identity, err := h.verifier.Verify(r.Context(), token)
		if err != nil {
			httperr.Write(w, err)
			return
		}
		next(w, r, identity, token)
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}

func (h *handler) registration(r *http.Request) (registry.Registration, error) {
	name := r.PathValue("resource")
	reg, ok := h.registry.Registration(name)
	if !ok {
		return registry.Registration{}, apperr.NewNotFound(name, "")
	}
	return reg, nil
}

func (h *handler) manager(reg registry.Registration, identity types.Identity) *recordservices.Manager {
	return recordservices.NewManager(h.store, reg.Descriptor, identity, h.hooks[reg.Descriptor.Name])
}

func (h *handler) signal(identity types.Identity, credential string) *types.SignalPayload {
	return &types.SignalPayload{
		Identity:      identity,
		Credential:    credential,
		WellKnownURLs: h.wellKnown,
	}
}

// priorRecord loads the current row so hooks see the pre-mutation state.
func (h *handler) priorRecord(r *http.Request, reg registry.Registration, identity types.Identity, id string) (types.Record, error) {
	prior, found, err := h.manager(reg, identity).Get(r.Context(), types.Record{reg.Descriptor.PrimaryKey: id})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return prior, nil
}

func (h *handler) query(w http.ResponseWriter, r *http.Request, identity types.Identity, credential string) {
	reg, err := h.registration(r)
	if err != nil {
		httperr.Write(w, err)
		return
	}

	var doc querytypes.Document
	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		httperr.Write(w, httperr.NewBadRequest("invalid query document"))
		return
	}

	sess, err := session.Open(r.Context(), h.acquirer, identity)
	if err != nil {
		httperr.Write(w, apperr.NewInternal(err))
		return
	}
	defer sess.Close(r.Context())

	engine := queryservices.NewEngine(sess, h.registry, h.authorizer)
	resp, err := engine.Run(r.Context(), identity, reg.Descriptor, &doc, reg.AllowedAggregates)
	if err != nil {
		httperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) list(w http.ResponseWriter, r *http.Request, identity types.Identity, credential string) {
	reg, err := h.registration(r)
	if err != nil {
		httperr.Write(w, err)
		return
	}

	page, size, err := pagination(r)
	if err != nil {
		httperr.Write(w, err)
		return
	}

	data, err := h.manager(reg, identity).All(r.Context(), page-1, size, nil)
	if err != nil {
		httperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":      data,
		"page_size": size,
		"next_page": page + 1,
	})
}

func (h *handler) get(w http.ResponseWriter, r *http.Request, identity types.Identity, credential string) {
	reg, err := h.registration(r)
	if err != nil {
		httperr.Write(w, err)
		return
	}
	id := r.PathValue("id")

	rec, found, err := h.manager(reg, identity).Get(r.Context(), types.Record{reg.Descriptor.PrimaryKey: id})
	if err != nil {
		httperr.Write(w, err)
		return
	}
	if !found {
		httperr.Write(w, apperr.NewNotFound(reg.Descriptor.Name, id))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) create(w http.ResponseWriter, r *http.Request, identity types.Identity, credential string) {
	reg, err := h.registration(r)
	if err != nil {
		httperr.Write(w, err)
		return
	}

	var data types.Record
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		httperr.Write(w, httperr.NewBadRequest("invalid body"))
		return
	}

	signal := h.signal(identity, credential)
	signal.NewData = data.Clone()
	rec, err := h.manager(reg, identity).Create(r.Context(), data, signal)
	if err != nil {
		httperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *handler) update(w http.ResponseWriter, r *http.Request, identity types.Identity, credential string) {
	reg, err := h.registration(r)
	if err != nil {
		httperr.Write(w, err)
		return
	}
	id := r.PathValue("id")

	var data types.Record
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		httperr.Write(w, httperr.NewBadRequest("invalid body"))
		return
	}

	signal := h.signal(identity, credential)
	signal.NewData = data.Clone()
	signal.OldData, err = h.priorRecord(r, reg, identity, id)
	if err != nil {
		httperr.Write(w, err)
		return
	}
	rec, err := h.manager(reg, identity).Update(r.Context(), id, data, signal)
	if err != nil {
		httperr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request, identity types.Identity, credential string) {
	reg, err := h.registration(r)
	if err != nil {
		httperr.Write(w, err)
		return
	}
	id := r.PathValue("id")

	signal := h.signal(identity, credential)
	signal.OldData, err = h.priorRecord(r, reg, identity, id)
	if err != nil {
		httperr.Write(w, err)
		return
	}
	if err := h.manager(reg, identity).Delete(r.Context(), id, signal); err != nil {
		httperr.Write(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) deleteMany(w http.ResponseWriter, r *http.Request, identity types.Identity, credential string) {
	reg, err := h.registration(r)
	if err != nil {
		httperr.Write(w, err)
		return
	}

	var body struct {
		IDs []string `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httperr.Write(w, httperr.NewBadRequest("invalid body"))
		return
	}

	signal := h.signal(identity, credential)
	if err := h.manager(reg, identity).DeleteMultiple(r.Context(), body.IDs, signal); err != nil {
		httperr.Write(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pagination reads the page/size list parameters: page starts at 1, size
// defaults to 20.
func pagination(r *http.Request) (page int, size int, err error) {
	page, size = defaultPage, defaultSize
	if v := r.URL.Query().Get("page"); v != "" {
		page, err = strconv.Atoi(v)
		if err != nil || page < 1 {
			return 0, 0, httperr.NewBadRequest("invalid page")
		}
	}
	if v := r.URL.Query().Get("size"); v != "" {
		size, err = strconv.Atoi(v)
		if err != nil || size < 1 {
			return 0, 0, httperr.NewBadRequest("invalid size")
		}
	}
	return page, size, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
