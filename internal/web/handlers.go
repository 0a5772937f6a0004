package web

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/fpang/creative-review/internal/creative"
	"github.com/fpang/creative-review/internal/ingest"
	"github.com/fpang/creative-review/internal/jobs"
	"github.com/fpang/creative-review/internal/report"
	"github.com/fpang/creative-review/internal/review"
	"github.com/fpang/creative-review/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type optionsResponse struct {
	Channels        []string `json:"channels"`
	Objectives      []string `json:"objectives"`
	Devices         []string `json:"devices"`
	AcceptedTypes   []string `json:"acceptedTypes"`
	MaxAssets       int      `json:"maxAssets"`
	RequireCampaign bool     `json:"requireCampaign"`
	MaxUploadBytes  int64    `json:"maxUploadBytes"`
}

func (s *Server) handleOptions(w http.ResponseWriter, r *http.Request) {
	types := make([]string, 0, len(creative.AcceptedMIMETypes))
	for t := range creative.AcceptedMIMETypes {
		types = append(types, t)
	}
	slices.Sort(types)

	maxAssets := ingest.DefaultMaxAssets
	requireCampaign := false
	if s.Service != nil {
		if s.Service.MaxAssets > 0 {
			maxAssets = s.Service.MaxAssets
		}
		requireCampaign = s.Service.RequireCampaign
	}
	respondJSON(w, http.StatusOK, optionsResponse{
		Channels:        creative.Channels,
		Objectives:      creative.Objectives,
		Devices:         creative.Devices,
		AcceptedTypes:   types,
		MaxAssets:       maxAssets,
		RequireCampaign: requireCampaign,
		MaxUploadBytes:  s.maxUploadBytes(),
	})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > s.maxUploadBytes() {
		httpError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", s.maxUploadBytes()))
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes())
	if err := r.ParseMultipartForm(s.multipartMemory()); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			httpError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		httpError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	assets, err := readAssets(r.MultipartForm.File["assets"])
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read uploaded assets")
		httpError(w, http.StatusBadRequest, "could not read uploaded files")
		return
	}

	req := review.Request{
		Assets: assets,
		Campaign: creative.Campaign{
			Channel:   r.FormValue("channel"),
			Objective: r.FormValue("objective"),
			Device:    r.FormValue("device"),
		},
		Combined: formBool(r.FormValue("combined")),
	}
	if err := s.Service.Validate(&req); err != nil {
		httpError(w, http.StatusBadRequest, validationMessage(err))
		return
	}

	now := time.Now().Unix()
	job := &store.Job{
		ID:        jobs.NewReviewID(),
		Status:    store.StatusPending,
		Campaign:  req.Campaign,
		Combined:  req.Combined,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, a := range req.Assets {
		job.Assets = append(job.Assets, store.AssetRef{Filename: a.Filename, MIMEType: a.MIMEType, Size: a.Size})
	}

	if err := s.Dispatcher.Submit(r.Context(), job, req); err != nil {
		log.Error().Err(err).Str("jobId", job.ID).Msg("Failed to dispatch review")
		httpError(w, http.StatusInternalServerError, "failed to start review")
		return
	}

	log.Info().
		Str("jobId", job.ID).
		Int("assets", len(req.Assets)).
		Bool("combined", req.Combined).
		Msg("Review accepted")
	respondJSON(w, http.StatusAccepted, map[string]string{"id": job.ID})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	err := s.Dispatcher.Cancel(r.Context(), job.ID)
	switch {
	case errors.Is(err, ErrNotCancelable):
		httpError(w, http.StatusConflict, "reviews cannot be canceled in this deployment")
	case errors.Is(err, ErrNotRunning):
		httpError(w, http.StatusConflict, "review is not running")
	case err != nil:
		log.Error().Err(err).Str("jobId", job.ID).Msg("Failed to cancel review")
		httpError(w, http.StatusInternalServerError, "failed to cancel review")
	default:
		respondJSON(w, http.StatusAccepted, map[string]string{"id": job.ID, "status": "canceling"})
	}
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	if !store.Terminal(job.Status) {
		httpError(w, http.StatusConflict, "review is still running")
		return
	}

	if job.ReportKey != "" && s.Bucket != nil {
		url, err := s.Bucket.PresignGet(r.Context(), job.ReportKey, reportURLExpiry)
		if err != nil {
			log.Error().Err(err).Str("jobId", job.ID).Msg("Failed to presign report")
			httpError(w, http.StatusInternalServerError, "failed to load report")
			return
		}
		http.Redirect(w, r, url, http.StatusFound)
		return
	}

	data, err := report.RenderPDF(report.FromJob(job))
	if err != nil {
		log.Error().Err(err).Str("jobId", job.ID).Msg("Failed to render report")
		httpError(w, http.StatusInternalServerError, "failed to render report")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": job.ID + ".pdf"}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// loadJob resolves {id}, writing 400 or 404 when it cannot.
func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (*store.Job, bool) {
	id := jobs.Normalize(chi.URLParam(r, "id"))
	if id == "" {
		httpError(w, http.StatusBadRequest, "invalid review id")
		return nil, false
	}
	job, err := s.Store.GetJob(r.Context(), id)
	if err != nil {
		log.Error().Err(err).Str("jobId", id).Msg("Failed to load review")
		httpError(w, http.StatusInternalServerError, "failed to load review")
		return nil, false
	}
	if job == nil {
		httpError(w, http.StatusNotFound, "review not found")
		return nil, false
	}
	return job, true
}

// readAssets buffers every uploaded file in memory; the multipart temp files
// are removed when the request ends but runs continue afterwards.
func readAssets(headers []*multipart.FileHeader) ([]creative.Asset, error) {
	assets := make([]creative.Asset, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		assets = append(assets, creative.FromBytes(fh.Filename, declaredType(fh), data))
	}
	return assets, nil
}

// declaredType returns the part's Content-Type, falling back to the
// extension when the browser sent none or a generic one.
func declaredType(fh *multipart.FileHeader) string {
	ct := fh.Header.Get("Content-Type")
	if mt, _, err := mime.ParseMediaType(ct); err == nil && mt != "application/octet-stream" {
		return mt
	}
	if mt, err := creative.MIMETypeForPath(fh.Filename); err == nil {
		return mt
	}
	return ct
}

func formBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}

func validationMessage(err error) string {
	var ve *creative.ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	return err.Error()
}
