// Package httpapi implements the per-node HTTP query surface (spec §4.5,
// §6 "HTTP API (v3, one port per node)"), a thin mux-based adapter over
// application/store with no business logic of its own, grounded on
// R2Northstar-Atlas's pkg/api/api0 (net/http.ServeMux routing, a small
// respJSON helper that traces responses through hlog.FromRequest). No hlog
// middleware is installed, so that trace logger is zerolog's disabled one.
package httpapi

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/hlog"

	"tzrecorder/application/obslog"
	"tzrecorder/application/store"
	"tzrecorder/domain/logrecord"
	"tzrecorder/domain/message"
)

// Version is the build-time-overridable recorder version string served by
// `GET /v2/version` (spec §6): no VCS metadata is available in this
// workspace, so it is a plain ldflags-overridable var, the common Go
// substitute for a compiled-in commit hash.
var Version = "dev"

// Handler serves one node's HTTP query surface.
type Handler struct {
	nodeName string
	store    store.Store
	log      obslog.Logger
	mux      *http.ServeMux
}

// NewHandler builds the route table for one node.
func NewHandler(nodeName string, st store.Store, log obslog.Logger) *Handler {
	h := &Handler{nodeName: nodeName, store: st, log: log}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v2/version", h.handleVersion)
	mux.HandleFunc("GET /v2/log", h.handleLogQuery)
	mux.HandleFunc("GET /v2/p2p", h.handleP2PQuery)
	mux.HandleFunc("GET /v2/p2p/{id}", h.handleP2PGet)
	h.mux = mux
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	respJSON(w, r, http.StatusOK, Version)
}

// nodeNameMismatch reports whether a request's optional node_name query
// parameter was given and doesn't match this handler's node — a malformed
// request on a per-node port (spec §6 "malformed values -> 400").
func (h *Handler) nodeNameMismatch(r *http.Request) bool {
	name := r.URL.Query().Get("node_name")
	return name != "" && name != h.nodeName
}

type logBrief struct {
	ID        uint64 `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Level     string `json:"level"`
	Section   string `json:"section"`
	Message   string `json:"message"`
	NodeName  string `json:"node_name"`
}

func (h *Handler) handleLogQuery(w http.ResponseWriter, r *http.Request) {
	if h.nodeNameMismatch(r) {
		httpError(w, r, http.StatusBadRequest, "node_name does not match this port")
		return
	}

	q := r.URL.Query()
	filter := store.LogFilter{Query: q.Get("query")}

	var err error
	if filter.Cursor, err = parseUint(q.Get("cursor")); err != nil {
		httpError(w, r, http.StatusBadRequest, "invalid cursor")
		return
	}
	if filter.Limit, err = parseInt(q.Get("limit")); err != nil {
		httpError(w, r, http.StatusBadRequest, "invalid limit")
		return
	}
	if lvl := q.Get("log_level"); lvl != "" {
		parsed, ok := logrecord.ParseLevel(lvl)
		if !ok {
			httpError(w, r, http.StatusBadRequest, "invalid log_level")
			return
		}
		filter.Level = &parsed
	}
	if filter.From, err = parseTimestamp(q, "from"); err != nil {
		httpError(w, r, http.StatusBadRequest, "invalid from")
		return
	}
	if filter.To, err = parseTimestamp(q, "to"); err != nil {
		httpError(w, r, http.StatusBadRequest, "invalid to")
		return
	}

	records, err := h.store.QueryLogs(filter)
	if err != nil {
		h.log.Error().Err(err).Msg("log query failed")
		httpError(w, r, http.StatusInternalServerError, "query failed")
		return
	}

	out := make([]logBrief, len(records))
	for i, rec := range records {
		out[i] = logBrief{
			ID:        rec.ID,
			Timestamp: rec.Timestamp,
			Level:     rec.Level.String(),
			Section:   rec.Section,
			Message:   rec.Message,
			NodeName:  rec.NodeName,
		}
	}
	respJSON(w, r, http.StatusOK, out)
}

type p2pBrief struct {
	ID             uint64 `json:"id"`
	Timestamp      int64  `json:"timestamp"`
	RemoteAddr     string `json:"remote_addr"`
	SourceType     string `json:"source_type"`
	Incoming       bool   `json:"incoming"`
	Category       string `json:"category"`
	Kind           string `json:"kind"`
	MessagePreview string `json:"message_preview"`
}

func (h *Handler) handleP2PQuery(w http.ResponseWriter, r *http.Request) {
	if h.nodeNameMismatch(r) {
		httpError(w, r, http.StatusBadRequest, "node_name does not match this port")
		return
	}

	q := r.URL.Query()
	filter := store.MessageFilter{RemoteAddr: q.Get("remote_addr")}

	var err error
	if filter.Cursor, err = parseUint(q.Get("cursor")); err != nil {
		httpError(w, r, http.StatusBadRequest, "invalid cursor")
		return
	}
	if filter.Limit, err = parseInt(q.Get("limit")); err != nil {
		httpError(w, r, http.StatusBadRequest, "invalid limit")
		return
	}
	if st := q.Get("source_type"); st != "" {
		switch message.Source(st) {
		case message.SourceLocal, message.SourceRemote:
			filter.Source = message.Source(st)
		default:
			httpError(w, r, http.StatusBadRequest, "invalid source_type")
			return
		}
	}
	if inc := q.Get("incoming"); inc != "" {
		b, err := strconv.ParseBool(inc)
		if err != nil {
			httpError(w, r, http.StatusBadRequest, "invalid incoming")
			return
		}
		filter.Incoming = &b
	}
	if types := q.Get("types"); types != "" {
		for _, name := range strings.Split(types, ",") {
			kind, ok := message.ParseKind(strings.TrimSpace(name))
			if !ok {
				httpError(w, r, http.StatusBadRequest, "invalid types")
				return
			}
			filter.Kinds = append(filter.Kinds, kind)
		}
	}
	if filter.From, err = parseTimestamp(q, "from"); err != nil {
		httpError(w, r, http.StatusBadRequest, "invalid from")
		return
	}
	if filter.To, err = parseTimestamp(q, "to"); err != nil {
		httpError(w, r, http.StatusBadRequest, "invalid to")
		return
	}

	msgs, err := h.store.QueryMessages(filter)
	if err != nil {
		h.log.Error().Err(err).Msg("p2p query failed")
		httpError(w, r, http.StatusInternalServerError, "query failed")
		return
	}

	out := make([]p2pBrief, len(msgs))
	for i, m := range msgs {
		out[i] = p2pBrief{
			ID:             m.ID,
			Timestamp:      m.Timestamp,
			RemoteAddr:     m.PeerAddr,
			SourceType:     string(m.Source),
			Incoming:       m.Incoming,
			Category:       category(m.Kind),
			Kind:           m.Kind.String(),
			MessagePreview: m.Preview,
		}
	}
	respJSON(w, r, http.StatusOK, out)
}

type p2pFull struct {
	ID             uint64 `json:"id"`
	Timestamp      int64  `json:"timestamp"`
	RemoteAddr     string `json:"remote_addr"`
	Incoming       bool   `json:"incoming"`
	Kind           string `json:"kind"`
	OriginalBytes  string `json:"original_bytes"`
	DecryptedBytes string `json:"decrypted_bytes"`
	Error          string `json:"error,omitempty"`
}

func (h *Handler) handleP2PGet(w http.ResponseWriter, r *http.Request) {
	if h.nodeNameMismatch(r) {
		httpError(w, r, http.StatusBadRequest, "node_name does not match this port")
		return
	}

	id, err := parseUint(r.PathValue("id"))
	if err != nil || id == 0 {
		httpError(w, r, http.StatusBadRequest, "invalid id")
		return
	}

	m, ok, err := h.store.GetMessage(id)
	if err != nil {
		h.log.Error().Err(err).Msg("p2p get failed")
		httpError(w, r, http.StatusInternalServerError, "lookup failed")
		return
	}
	if !ok {
		httpError(w, r, http.StatusNotFound, "not found")
		return
	}

	respJSON(w, r, http.StatusOK, p2pFull{
		ID:             m.ID,
		Timestamp:      m.Timestamp,
		RemoteAddr:     m.PeerAddr,
		Incoming:       m.Incoming,
		Kind:           m.Kind.String(),
		OriginalBytes:  encodeBytes(m.Ciphertext),
		DecryptedBytes: encodeBytes(m.Plaintext),
		Error:          m.DecodeErr,
	})
}

// category groups a Kind into the coarse handshake/data/error buckets the
// brief record's `category` field names.
func category(k message.Kind) string {
	switch k {
	case message.KindConnectionMessage, message.KindMetadata:
		return "handshake"
	case message.KindUnknown, message.KindMalformed, message.KindDecryptFailed:
		return "error"
	default:
		return "data"
	}
}

func parseUint(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseUint(s, 10, 64)
}

func parseInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	return v, nil
}

// parseTimestamp reads either `from`/`to` (unix nanos) directly, falling
// back to a combined `timestamp` range param is left to future extension;
// spec §6 lists `timestamp` alongside `from`/`to` without defining a
// distinct shape, so only the unambiguous from/to bounds are implemented.
func parseTimestamp(q url.Values, key string) (int64, error) {
	v := q.Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func encodeBytes(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return hex.EncodeToString(b)
}

func httpError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	respJSON(w, r, status, map[string]string{"error": msg})
}

// respJSON mirrors R2Northstar-Atlas's pkg/api/api0 respJSON helper:
// marshal, log at trace level, write with a correct Content-Length.
func respJSON(w http.ResponseWriter, r *http.Request, status int, obj any) {
	if r.Method == http.MethodHead {
		w.WriteHeader(status)
		return
	}
	buf, err := json.Marshal(obj)
	if err != nil {
		panic(err)
	}
	hlog.FromRequest(r).Trace().Msgf("json api response %.2048s", string(buf))
	buf = append(buf, '\n')
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(buf)))
	w.WriteHeader(status)
	w.Write(buf)
}
