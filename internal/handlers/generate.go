package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/PortNumber53/techpost-ai/internal/apperr"
	"github.com/PortNumber53/techpost-ai/internal/media"
	"github.com/PortNumber53/techpost-ai/internal/models"
	"github.com/PortNumber53/techpost-ai/internal/session"
)

// Generate accepts a multipart (or url-encoded) form with channel, audience, goal, tone,
// context and an optional "file" part.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes+1<<20)

	req, err := h.readGenerationForm(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
		case errors.Is(err, media.ErrImageTooLarge):
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		case errors.Is(err, media.ErrUnsupportedType), errors.Is(err, media.ErrEmpty):
			writeError(w, http.StatusUnsupportedMediaType, err.Error())
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	out, err := h.pipeline.Generate(r.Context(), s, req)
	if errors.Is(err, apperr.ErrPaywall) {
		writeJSON(w, http.StatusPaymentRequired, h.paywallBody(out.Credits))
		return
	}
	if err != nil {
		h.writeAppError(w, r, err)
		return
	}

	if out.Saved {
		h.emitEvent(s.UserEmail, realtimeEvent{Type: eventPostCreated, PostID: out.Post.ID, Title: out.Post.Title})
	}
	credits := out.Credits
	h.emitEvent(s.UserEmail, realtimeEvent{Type: eventCreditsUpdated, Credits: &credits, VIP: out.VIP})
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) readGenerationForm(r *http.Request) (models.GenerationRequest, error) {
	err := r.ParseMultipartForm(h.opts.MaxUploadBytes)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		return models.GenerationRequest{}, err
	}
	req := models.GenerationRequest{
		Channel:  strings.TrimSpace(r.FormValue("channel")),
		Audience: strings.TrimSpace(r.FormValue("audience")),
		Goal:     strings.TrimSpace(r.FormValue("goal")),
		Tone:     strings.TrimSpace(r.FormValue("tone")),
		Context:  r.FormValue("context"),
	}
	if r.MultipartForm == nil {
		return req, nil
	}

	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return req, nil
	}
	if err != nil {
		return models.GenerationRequest{}, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.opts.MaxUploadBytes+1))
	if err != nil {
		return models.GenerationRequest{}, err
	}
	if int64(len(data)) > h.opts.MaxUploadBytes {
		return models.GenerationRequest{}, &http.MaxBytesError{Limit: h.opts.MaxUploadBytes}
	}
	att, err := media.Normalize(header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		h.logger.Info("attachment rejected", zap.String("filename", header.Filename), zap.Error(err))
		return models.GenerationRequest{}, err
	}
	req.Attachment = att
	return req, nil
}
