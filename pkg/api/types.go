package api

// APIResponse represents a generic API response structure
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// StatusResponse represents the response for the status endpoint
type StatusResponse struct {
	Status           string `json:"status"`
	ManticoreHealthy bool   `json:"manticore_healthy"`
	IndexExists      bool   `json:"index_exists"`
	DocumentCount    int64  `json:"document_count"`
	PageSize         int    `json:"page_size"`
	Uptime           string `json:"uptime"`

	Backend *BackendStats `json:"backend,omitempty"`
}

// BackendStats summarizes the search client's request counters and circuit breaker
type BackendStats struct {
	CircuitState         string  `json:"circuit_state"`
	CircuitFailureRate   float64 `json:"circuit_failure_rate"`
	CircuitRejections    int64   `json:"circuit_rejections"`
	RequestCount         int64   `json:"request_count"`
	ErrorCount           int64   `json:"error_count"`
	SuccessRate          float64 `json:"success_rate"`
	AverageResponseTime  string  `json:"average_response_time"`
	BulkDocumentsIndexed int64   `json:"bulk_documents_indexed"`
}

// ReindexResponse represents the response for the reload endpoint
type ReindexResponse struct {
	Message        string `json:"message"`
	DocumentsCount int    `json:"documents_count"`
	IndexingTime   string `json:"indexing_time"`
}

// UploadResponse represents the response for document uploads
type UploadResponse struct {
	DocumentsCount int `json:"documents_count"`
}

// MessageResponse carries a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}
