package model

// ExtractedField is a single field pulled out of a document by the analysis
// provider. Confidence is clamped to [0, 100] by the normalizer.
type ExtractedField struct {
	Field      string  `json:"field"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// FormattingChange describes one adjustment the provider made to the raw
// document data. Type is one of "formatting", "correction", "structure".
type FormattingChange struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NormalizedResult is the structured form of a raw provider response. The
// normalizer guarantees every input, however malformed, produces one of
// these; there is no error case.
type NormalizedResult struct {
	Fields         []ExtractedField   `json:"fields"`
	Explanation    string             `json:"explanation"`
	Changes        []FormattingChange `json:"changes"`
	Confidence     float64            `json:"confidence"`
	ElapsedSeconds float64            `json:"elapsed_seconds"`
}

// ProcessResponse is the success payload for POST /process-document.
type ProcessResponse struct {
	OriginalImageURL  string             `json:"original_image_url"`
	RefinedData       []ExtractedField   `json:"refined_data"`
	AIExplanation     string             `json:"ai_explanation"`
	FormattingChanges []FormattingChange `json:"formatting_changes"`
	ConfidenceScore   float64            `json:"confidence_score"`
	ProcessingTime    float64            `json:"processing_time"`
}

// ErrorResponse is the failure payload for all error statuses.
type ErrorResponse struct {
	Error     string         `json:"error"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}
