package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sells-group/commute-rent/internal/model"
	"github.com/sells-group/commute-rent/internal/pipeline"
	"github.com/sells-group/commute-rent/internal/store"
)

const maxBodyBytes = 1 << 20

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleForm(w http.ResponseWriter, _ *http.Request) {
	s.renderForm(w, http.StatusOK, s.opts.Defaults.formValues(), "", nil)
}

func (s *Server) handleEstimateForm(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		s.renderForm(w, http.StatusBadRequest, s.opts.Defaults.formValues(), "Could not read the form.", nil)
		return
	}

	echo := s.opts.Defaults.echo(r.PostForm)
	req, fieldErrs := s.opts.Defaults.parseForm(r.PostForm)
	if len(fieldErrs) > 0 {
		s.renderForm(w, http.StatusBadRequest, echo, "Please fix the highlighted fields.", fieldErrs)
		return
	}

	est, err := s.est.Estimate(r.Context(), req)
	if err != nil {
		status, msg, fields := classify(err)
		if status >= http.StatusInternalServerError {
			zap.L().Error("web: estimate failed", zap.Error(err))
		}
		s.renderForm(w, status, echo, msg, fields)
		return
	}

	s.render(w, http.StatusOK, "result.html", resultPage{
		Estimate: est,
		Bands:    summarizeBands(est.Results),
		Map:      buildMapData(est),
		Token:    s.opts.MapboxToken,
	})
}

func (s *Server) handleEstimateAPI(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var req model.Request
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body"})
		return
	}
	mode, err := model.ParseTravelMode(string(req.Mode))
	if err != nil {
		s.writeError(w, err)
		return
	}
	policy, err := model.ParsePolicy(string(req.Policy))
	if err != nil {
		s.writeError(w, err)
		return
	}
	req.Mode, req.Policy = mode, policy

	est, err := s.est.Estimate(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, est)
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	set, err := s.store.LatestListings(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if set == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no listings generated yet"})
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.SubmissionFilter{}
	if p := q.Get("policy"); p != "" {
		policy, err := model.ParsePolicy(p)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "unknown policy"})
			return
		}
		filter.Policy = policy
	}
	var err error
	if filter.Limit, err = queryInt(q.Get("limit")); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "limit must be a whole number"})
		return
	}
	if filter.Offset, err = queryInt(q.Get("offset")); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "offset must be a whole number"})
		return
	}

	subs, err := s.store.ListSubmissions(r.Context(), filter)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if subs == nil {
		subs = []model.Submission{}
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	sub, err := s.store.GetSubmission(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func queryInt(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}

type errorBody struct {
	Error  string              `json:"error"`
	Fields map[string][]string `json:"fields,omitempty"`
}

// classify maps an estimator or store error to a status code and the
// message shown to the user.
func classify(err error) (int, string, map[string][]string) {
	var verr *pipeline.ValidationError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, "Please fix the highlighted fields.", verr.Fields
	case errors.Is(err, model.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error(), nil
	case errors.Is(err, pipeline.ErrAddressNotFound):
		return http.StatusUnprocessableEntity, pipeline.ErrAddressNotFound.Error(), nil
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not found", nil
	case pipeline.IsUpstream(err):
		return http.StatusBadGateway, "The mapping service is unavailable. Please try again shortly.", nil
	}
	return http.StatusInternalServerError, "Something went wrong.", nil
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, msg, fields := classify(err)
	if status >= http.StatusInternalServerError {
		zap.L().Error("web: request failed", zap.Error(err))
	}
	writeJSON(w, status, errorBody{Error: msg, Fields: fields})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("web: write response", zap.Error(err))
	}
}

func (s *Server) renderForm(w http.ResponseWriter, status int, fv formValues, msg string, fields map[string][]string) {
	s.render(w, status, "form.html", formPage{
		Form:   fv,
		Error:  msg,
		Fields: fields,
		Modes:  modeOptions,
		Units:  model.AllUnitTypes,
	})
}

// render buffers the page before any header is written.
func (s *Server) render(w http.ResponseWriter, status int, name string, data any) {
	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, name, data); err != nil {
		zap.L().Error("web: render template", zap.String("template", name), zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		zap.L().Debug("web: write page", zap.Error(err))
	}
}
