package consultation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ReportGenerator renders and distributes the consultation PDF.
type ReportGenerator interface {
	Generate(c *Consultation, summary *Summary) ([]byte, error)
	SendDoctorReport(ctx context.Context, c *Consultation, summary *Summary) error
}

type Handler struct {
	svc    Service
	report ReportGenerator
}

func NewHandler(svc Service, report ReportGenerator) *Handler {
	return &Handler{svc: svc, report: report}
}

type startConsultationRequest struct {
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Age       int     `json:"age"`
	Gender    string  `json:"gender"`
	Height    float64 `json:"height"`
	Weight    float64 `json:"weight"`
	Email     string  `json:"email"`
	Mobile    string  `json:"mobile"`
}

func (r startConsultationRequest) validate() error {
	if r.FirstName == "" || r.LastName == "" {
		return errors.New("first and last name are required")
	}
	if r.Age <= 0 || r.Age >= 150 {
		return errors.New("age must be between 1 and 149")
	}
	switch r.Gender {
	case "male", "female", "other":
	default:
		return errors.New("gender must be male, female or other")
	}
	return nil
}

func (h *Handler) StartConsultation(w http.ResponseWriter, r *http.Request) {
	var req startConsultationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	c, err := h.svc.StartConsultation(r.Context(), PatientDetails{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Age:       req.Age,
		Gender:    req.Gender,
		Height:    req.Height,
		Weight:    req.Weight,
		Email:     req.Email,
		Mobile:    req.Mobile,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create consultation")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "success",
		"consultationId": c.ID.String(),
		"userDetails":    c.Patient,
		"message":        "Consultation started successfully",
	})
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	c, err := h.svc.GetConsultation(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         c.Status,
		"consultationId": c.ID.String(),
		"userDetails":    c.Patient,
		"created_at":     c.CreatedAt,
	})
}

type messageRequest struct {
	Content string `json:"content"`
}

// HandleMessage is the HTTP fallback for clients without a websocket; it
// runs the same pipeline as the real-time channel.
func (h *Handler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	var req messageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		writeError(w, http.StatusBadRequest, "Invalid message format")
		return
	}

	payload, err := h.svc.ProcessMessage(r.Context(), id.String(), req.Content)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	summary, err := h.svc.BuildSummary(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}
	c, err := h.svc.GetConsultation(r.Context(), id)
	if err != nil {
		h.writeLookupError(w, err)
		return
	}
	summary := c.Summary
	if summary == nil {
		summary, err = h.svc.BuildSummary(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to build summary")
			return
		}
	}

	data, err := h.report.Generate(c, summary)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to generate report")
		return
	}
	// doctor notification is fire-and-forget
	go h.report.SendDoctorReport(context.Background(), c, summary)

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=consultation-report-%s.pdf", id))
	w.Write(data)
}

func (h *Handler) SpeechToText(w http.ResponseWriter, r *http.Request) {
	r.ParseMultipartForm(10 << 20)
	file, _, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Error retrieving audio file")
		return
	}
	defer file.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read audio file")
		return
	}
	if buf.Len() == 0 {
		writeError(w, http.StatusBadRequest, "Empty audio file received")
		return
	}

	text, err := h.svc.TranscribeAudio(r.Context(), buf.Bytes())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "Transcription failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"text":   text,
	})
}

type ttsRequest struct {
	Text string `json:"text"`
}

func (h *Handler) TextToSpeech(w http.ResponseWriter, r *http.Request) {
	var req ttsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}

	audioData, err := h.svc.SynthesizeSpeech(r.Context(), req.Text)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "TTS failed")
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Write(audioData)
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "consultationID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid consultation ID")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeLookupError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "Consultation not found")
		return
	}
	writeError(w, http.StatusInternalServerError, "Internal error")
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"status":  "error",
		"message": message,
	})
}

func RegisterRoutes(r chi.Router, h *Handler) {
	r.Post("/consultation/start", h.StartConsultation)
	r.Get("/consultation/status/{consultationID}", h.GetStatus)
	r.Post("/consultation/message/{consultationID}", h.HandleMessage)
	r.Get("/consultation/summary/{consultationID}", h.GetSummary)
	r.Get("/consultation/report/{consultationID}", h.GetReport)
	r.Post("/consultation/speech-to-text", h.SpeechToText)
	r.Post("/tts", h.TextToSpeech)
}
