// Package httpapi exposes the permit ledger over HTTP. Handlers stay thin:
// decode, call the service or engine, map the domain error to a status
// code. Mutating routes require a bearer token.
package httpapi

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ahjlabs/fireline/internal/closeout"
	"github.com/ahjlabs/fireline/internal/documents"
	"github.com/ahjlabs/fireline/internal/permit"
	"github.com/ahjlabs/fireline/pkg/fault"
	"github.com/ahjlabs/fireline/pkg/ledger"
)

// Server routes HTTP requests to the permit service and closeout engine.
type Server struct {
	permits  *permit.Service
	engine   *closeout.Engine
	router   chi.Router
	registry *prometheus.Registry
}

// NewServer builds the HTTP API. registry may be nil to skip the /metrics
// endpoint.
func NewServer(permits *permit.Service, engine *closeout.Engine, signingKey []byte, registry *prometheus.Registry) *Server {
	s := &Server{
		permits:  permits,
		engine:   engine,
		registry: registry,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)
	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/permits", func(r chi.Router) {
		r.Get("/", s.handleQueryPermits)
		r.Get("/{permitID}", s.handleGetPermit)
		r.Get("/{permitID}/history", s.handleGetHistory)
		r.Get("/{permitID}/closeout", s.handleGetCloseout)
		r.Get("/{permitID}/closeout/status", s.handleCloseoutStatus)

		r.Group(func(r chi.Router) {
			r.Use(bearerAuth(signingKey))
			r.Post("/", s.handleCreatePermit)
			r.Post("/{permitID}/status", s.handleUpdateStatus)
			r.Post("/{permitID}/nfpa", s.handleUpdateNFPA)
			r.Post("/{permitID}/payment", s.handlePayment)
			r.Post("/{permitID}/ai-review", s.handleAIReview)
			r.Post("/{permitID}/documents", s.handleAttachDocument)
			r.Post("/{permitID}/closeout", s.handleInitiateCloseout)
			r.Post("/{permitID}/closeout/documents", s.handleUploadDocument)
			r.Post("/{permitID}/closeout/close", s.handleClose)
			r.Post("/{permitID}/closeout/reject", s.handleReject)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(bearerAuth(signingKey))
		r.Post("/closeout/signatures/{signatureID}", s.handleSignature)
	})

	s.router = r
	return s
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createPermitRequest struct {
	PermitID      string             `json:"permit_id"`
	ApplicationID string             `json:"application_id"`
	PermitType    ledger.PermitType  `json:"permit_type"`
	Applicant     ledger.Applicant   `json:"applicant"`
	Property      ledger.Property    `json:"property"`
	NFPAData      ledger.NFPAData    `json:"nfpa_data"`
	Documents     ledger.DocumentSet `json:"documents"`
}

func (s *Server) handleCreatePermit(w http.ResponseWriter, r *http.Request) {
	var req createPermitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, err := s.permits.CreatePermit(r.Context(), permit.CreatePermitInput{
		PermitID:      req.PermitID,
		ApplicationID: req.ApplicationID,
		PermitType:    req.PermitType,
		Applicant:     req.Applicant,
		Property:      req.Property,
		NFPAData:      req.NFPAData,
		Documents:     req.Documents,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleGetPermit(w http.ResponseWriter, r *http.Request) {
	p, err := s.permits.ReadPermit(r.Context(), chi.URLParam(r, "permitID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	revisions, err := s.permits.GetPermitHistory(r.Context(), chi.URLParam(r, "permitID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, revisions)
}

func (s *Server) handleQueryPermits(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	permitType := r.URL.Query().Get("type")

	switch {
	case status != "":
		permits, err := s.permits.QueryPermitsByStatus(r.Context(), ledger.PermitStatus(status))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, permits)
	case permitType != "":
		permits, err := s.permits.QueryPermitsByType(r.Context(), ledger.PermitType(permitType))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, permits)
	default:
		writeError(w, fault.New(fault.InvalidInput, "either status or type query parameter is required"))
	}
}

type updateStatusRequest struct {
	Status   ledger.PermitStatus   `json:"status"`
	Lane     ledger.ReviewLane     `json:"lane,omitempty"`
	Name     string                `json:"name"`
	Decision ledger.ReviewDecision `json:"decision,omitempty"`
	Comments string                `json:"comments,omitempty"`
	Priority ledger.Priority       `json:"priority,omitempty"`
	Reason   string                `json:"reason,omitempty"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, err := s.permits.UpdateStatus(r.Context(), chi.URLParam(r, "permitID"), req.Status, permit.ReviewerInfo{
		Lane:     req.Lane,
		Name:     req.Name,
		Decision: req.Decision,
		Comments: req.Comments,
		Priority: req.Priority,
		Reason:   req.Reason,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type updateNFPARequest struct {
	NFPAData   ledger.NFPAData `json:"nfpa_data"`
	Name       string          `json:"name"`
	Role       string          `json:"role,omitempty"`
	Department string          `json:"department,omitempty"`
	Reason     string          `json:"reason,omitempty"`
}

func (s *Server) handleUpdateNFPA(w http.ResponseWriter, r *http.Request) {
	var req updateNFPARequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, err := s.permits.UpdateNFPAData(r.Context(), chi.URLParam(r, "permitID"), req.NFPAData, permit.UpdaterInfo{
		Name:       req.Name,
		Role:       req.Role,
		Department: req.Department,
		Reason:     req.Reason,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type paymentRequest struct {
	Method        string  `json:"method"`
	TransactionID string  `json:"transaction_id"`
	Amount        float64 `json:"amount"`
	PaidBy        string  `json:"paid_by,omitempty"`
	ReceiptNumber string  `json:"receipt_number,omitempty"`
}

func (s *Server) handlePayment(w http.ResponseWriter, r *http.Request) {
	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, err := s.permits.ProcessPayment(r.Context(), chi.URLParam(r, "permitID"), permit.PaymentInfo{
		Method:        req.Method,
		TransactionID: req.TransactionID,
		Amount:        req.Amount,
		PaidBy:        req.PaidBy,
		ReceiptNumber: req.ReceiptNumber,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAIReview(w http.ResponseWriter, r *http.Request) {
	p, err := s.permits.PerformAIReview(r.Context(), chi.URLParam(r, "permitID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type attachDocumentRequest struct {
	Category string `json:"category"`
	Ref      string `json:"ref"`
	AddedBy  string `json:"added_by,omitempty"`
}

func (s *Server) handleAttachDocument(w http.ResponseWriter, r *http.Request) {
	var req attachDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	p, err := s.permits.AttachDocument(r.Context(), chi.URLParam(r, "permitID"), req.Category, req.Ref, req.AddedBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type initiateCloseoutRequest struct {
	InitiatedBy string                   `json:"initiated_by"`
	Inspection  ledger.InspectionResults `json:"inspection"`
}

func (s *Server) handleInitiateCloseout(w http.ResponseWriter, r *http.Request) {
	var req initiateCloseoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	record, err := s.engine.InitiateCloseout(r.Context(), chi.URLParam(r, "permitID"), req.InitiatedBy, req.Inspection)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleGetCloseout(w http.ResponseWriter, r *http.Request) {
	record, err := s.engine.GetCloseout(r.Context(), chi.URLParam(r, "permitID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleCloseoutStatus(w http.ResponseWriter, r *http.Request) {
	progress, err := s.engine.Status(r.Context(), chi.URLParam(r, "permitID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progress)
}

type uploadDocumentRequest struct {
	DocumentType ledger.DocumentType `json:"document_type"`
	FileName     string              `json:"file_name"`
	Content      string              `json:"content"` // base64
	MimeType     string              `json:"mime_type,omitempty"`
	UploadedBy   string              `json:"uploaded_by,omitempty"`
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	var req uploadDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	content, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		writeError(w, fault.Wrap(fault.InvalidInput, err, "content must be base64 encoded"))
		return
	}

	record, err := s.engine.UploadDocument(r.Context(), chi.URLParam(r, "permitID"), req.DocumentType, documents.File{
		Name:     req.FileName,
		Content:  content,
		MimeType: req.MimeType,
	}, req.UploadedBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type signatureRequest struct {
	SignatureData string                   `json:"signature_data"` // base64
	Credentials   ledger.SignerCredentials `json:"credentials"`
}

func (s *Server) handleSignature(w http.ResponseWriter, r *http.Request) {
	var req signatureRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.SignatureData)
	if err != nil {
		writeError(w, fault.Wrap(fault.InvalidInput, err, "signature_data must be base64 encoded"))
		return
	}

	record, err := s.engine.ProcessSignature(r.Context(), chi.URLParam(r, "signatureID"), data, req.Credentials)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type closeRequest struct {
	ClosedBy string `json:"closed_by"`
	Notes    string `json:"notes,omitempty"`
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	record, err := s.engine.ClosePermit(r.Context(), chi.URLParam(r, "permitID"), req.ClosedBy, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

type rejectRequest struct {
	RejectedBy string `json:"rejected_by"`
	Reason     string `json:"reason,omitempty"`
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	record, err := s.engine.RejectCloseout(r.Context(), chi.URLParam(r, "permitID"), req.RejectedBy, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}
