// Package report renders consultation summaries as PDF and forwards them
// to the supervising doctor. Both are best-effort collaborators: their
// failures never block the chat pipeline.
package report

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/signintech/gopdf"

	"telemed-engine/internal/consultation"
)

// TelegramClient sends doctor notifications.
type TelegramClient interface {
	SendMessage(chatID int64, text string) error
	SendDocument(chatID int64, fileData []byte, fileName string) error
}

type Service struct {
	tgClient     TelegramClient
	doctorChatID int64
	fontPath     string
	log          zerolog.Logger
}

func NewService(tg TelegramClient, doctorChatID int64, fontPath string, log zerolog.Logger) *Service {
	if fontPath == "" {
		fontPath = "/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf"
	}
	return &Service{
		tgClient:     tg,
		doctorChatID: doctorChatID,
		fontPath:     fontPath,
		log:          log,
	}
}

// Generate renders the consultation summary as a PDF document.
func (s *Service) Generate(c *consultation.Consultation, summary *consultation.Summary) ([]byte, error) {
	pdf := gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	pdf.AddPage()

	if err := pdf.AddTTFFont("Body", s.fontPath); err != nil {
		return nil, fmt.Errorf("failed to load report font: %w", err)
	}

	if err := pdf.SetFont("Body", "", 20); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "Consultation Report")
	pdf.Br(30)

	if err := pdf.SetFont("Body", "", 12); err != nil {
		return nil, err
	}
	pdf.Cell(nil, fmt.Sprintf("Date: %s", time.Now().Format("02.01.2006 15:04")))
	pdf.Br(15)
	pdf.Cell(nil, fmt.Sprintf("Patient: %s %s (age %d, %s)",
		c.Patient.FirstName, c.Patient.LastName, c.Patient.Age, c.Patient.Gender))
	pdf.Br(15)
	pdf.Cell(nil, fmt.Sprintf("Consultation ID: %s", c.ID))
	pdf.Br(25)

	if err := pdf.SetFont("Body", "", 14); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "Symptoms:")
	pdf.Br(15)

	if err := pdf.SetFont("Body", "", 11); err != nil {
		return nil, err
	}
	if len(summary.Diagnosis.Symptoms) == 0 {
		pdf.Cell(nil, "- No symptoms identified.")
		pdf.Br(15)
	}
	for _, sym := range summary.Diagnosis.Symptoms {
		line := fmt.Sprintf("- %s (severity %.1f/10, confidence %.0f%%, pattern: %s, duration: %s)",
			sym.Name, sym.Severity, sym.Confidence, sym.Pattern, sym.Duration)
		s.writeWrapped(&pdf, line)
	}
	pdf.Br(10)

	if err := pdf.SetFont("Body", "", 14); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "Assessment:")
	pdf.Br(15)
	if err := pdf.SetFont("Body", "", 11); err != nil {
		return nil, err
	}
	s.writeWrapped(&pdf, fmt.Sprintf("Severity score: %d/10, risk level: %s, care timeframe: %s",
		summary.Diagnosis.SeverityScore, summary.Diagnosis.RiskLevel, summary.Diagnosis.Timeframe))
	s.writeWrapped(&pdf, fmt.Sprintf("Recommended specialist: %s", summary.Diagnosis.RecommendedDoctor))
	pdf.Br(5)
	s.writeWrapped(&pdf, summary.Diagnosis.Description)
	pdf.Br(10)

	if err := pdf.SetFont("Body", "", 14); err != nil {
		return nil, err
	}
	pdf.Cell(nil, "Recommendations:")
	pdf.Br(15)
	if err := pdf.SetFont("Body", "", 11); err != nil {
		return nil, err
	}
	for _, med := range summary.Recommendations.Medications {
		s.writeWrapped(&pdf, "- Medication: "+med)
	}
	for _, remedy := range summary.Recommendations.HomeRemedies {
		s.writeWrapped(&pdf, "- Home care: "+remedy)
	}
	for _, precaution := range summary.Recommendations.SafetyConcerns {
		s.writeWrapped(&pdf, "- Precaution: "+precaution)
	}

	var buf bytes.Buffer
	if _, err := pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Service) writeWrapped(pdf *gopdf.GoPdf, text string) {
	lines, err := pdf.SplitText(text, 500)
	if err != nil {
		lines = []string{text}
	}
	for _, l := range lines {
		pdf.Cell(nil, l)
		pdf.Br(12)
	}
}

// SendDoctorReport delivers the PDF to the supervising doctor over
// telegram. Callers treat any failure here as recoverable.
func (s *Service) SendDoctorReport(ctx context.Context, c *consultation.Consultation, summary *consultation.Summary) error {
	if s.tgClient == nil || s.doctorChatID == 0 {
		return nil
	}
	data, err := s.Generate(c, summary)
	if err != nil {
		return err
	}
	fileName := fmt.Sprintf("report_%s.pdf", c.ID)
	if err := s.tgClient.SendDocument(s.doctorChatID, data, fileName); err != nil {
		s.log.Warn().Err(err).Str("consultation_id", c.ID.String()).Msg("doctor report delivery failed")
		return err
	}
	return nil
}
