package analysis

// StatusKind is the overall analysis status reported in the `status` field.
type StatusKind string

// Values observed from the backend. Only StatusOCRCompleted ends a polling
// session; the rest are treated as still pending.
const (
	StatusOCRPending    StatusKind = "ocr_pending"
	StatusOCRProcessing StatusKind = "ocr_processing"
	StatusOCRCompleted  StatusKind = "ocr_completed"
	StatusOCRFailed     StatusKind = "ocr_failed"
	StatusLLMPending    StatusKind = "llm_pending"
	StatusLLMProcessing StatusKind = "llm_processing"
	StatusCompleted     StatusKind = "completed"
	StatusFailed        StatusKind = "failed"
)

// Phase is the per-stage status reported in `ocr_status` and `llm_status`.
type Phase string

const (
	PhasePending    Phase = "pending"
	PhaseProcessing Phase = "processing"
	PhaseCompleted  Phase = "completed"
	PhaseFailed     Phase = "failed"
)

// IsTerminal reports whether a status round ends polling. The backend may
// signal completion through either field, with different tokens, so both are
// checked independently.
func IsTerminal(status, ocrStatus string) bool {
	return status == string(StatusOCRCompleted) || ocrStatus == string(PhaseCompleted)
}

// Job identifies a submitted analysis. The ID is assigned by the backend.
type Job struct {
	ID string
}

// Status is one snapshot produced while polling a job.
type Status struct {
	AnalysisID string
	Kind       StatusKind
	// OCRText is the most recent non-empty text seen in this session. Empty
	// means no text has been delivered yet.
	OCRText  string
	Round    int
	Terminal bool
}

// HasText reports whether OCR text has been delivered.
func (s Status) HasText() bool {
	return s.OCRText != ""
}

// UploadResponse is the body returned by the upload endpoint.
type UploadResponse struct {
	ID       string `json:"id"`
	Status   string `json:"status,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// StatusResponse is the body returned by the status, confirm and retry endpoints.
type StatusResponse struct {
	ID            string `json:"id,omitempty"`
	Status        string `json:"status,omitempty"`
	OCRStatus     string `json:"ocr_status,omitempty"`
	LLMStatus     string `json:"llm_status,omitempty"`
	OCRText       string `json:"ocr_text,omitempty"`
	ConfirmedText string `json:"confirmed_text,omitempty"`
	Preference    string `json:"preference,omitempty"`
	ErrorMessage  string `json:"error_message,omitempty"`
	CreatedAt     string `json:"created_at,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

// Kind prefers `status`, then `ocr_status`, then ocr_pending.
func (r StatusResponse) Kind() StatusKind {
	if r.Status != "" {
		return StatusKind(r.Status)
	}
	if r.OCRStatus != "" {
		return StatusKind(r.OCRStatus)
	}
	return StatusOCRPending
}

// Terminal reports whether this response ends a polling session.
func (r StatusResponse) Terminal() bool {
	return IsTerminal(r.Status, r.OCRStatus)
}

// ConfirmRequest carries user-confirmed OCR text to the backend.
type ConfirmRequest struct {
	ConfirmedText string `json:"confirmed_text"`
	Preference    string `json:"preference,omitempty"`
}

// HistoryItem is one row of the analysis history listing.
type HistoryItem struct {
	ID          string `json:"id"`
	ImageURL    string `json:"image_url"`
	HealthScore *int   `json:"health_score"`
	CreatedAt   string `json:"created_at"`
	IsFavorite  bool   `json:"is_favorite"`
}

// HistoryPage is a page of history items.
type HistoryPage struct {
	Total int64         `json:"total"`
	Page  int64         `json:"page"`
	Limit int64         `json:"limit"`
	Items []HistoryItem `json:"items"`
}

// ErrorBody is the error envelope returned by the backend for non-2xx responses.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Error codes used in ErrorBody.Code.
const (
	CodeBadRequest           = "BAD_REQUEST"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeNotFound             = "NOT_FOUND"
	CodeConflict             = "CONFLICT"
	CodePayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	CodeInternal             = "INTERNAL_ERROR"
)
