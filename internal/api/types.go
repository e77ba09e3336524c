package api

// GenerateRequest is the body of POST /v1/generate. Unset fields fall back
// to the engine defaults.
type GenerateRequest struct {
	Prompt    string `json:"prompt"`
	MaxTokens *int   `json:"max_tokens,omitempty"`
	InitialK  *int   `json:"initial_k,omitempty"`
	Stream    *bool  `json:"stream,omitempty"`
}

const (
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusCancelled  = "cancelled"
)

type Generation struct {
	ID          string           `json:"id"`
	Object      string           `json:"object"`
	CreatedAt   int64            `json:"created_at"`
	CompletedAt *int64           `json:"completed_at,omitempty"`
	Status      string           `json:"status"`
	Prompt      string           `json:"prompt"`
	Text        string           `json:"text"`
	Tokens      []uint32         `json:"tokens"`
	Stats       *GenerationStats `json:"stats,omitempty"`
	Error       *ErrorBody       `json:"error,omitempty"`
}

type GenerationStats struct {
	TokensGenerated    int     `json:"tokens_generated"`
	Iterations         int     `json:"iterations"`
	Drafted            int     `json:"drafted"`
	Accepted           int     `json:"accepted"`
	AcceptanceRate     float64 `json:"acceptance_rate"`
	BonusTokens        int     `json:"bonus_tokens"`
	Rejections         int     `json:"rejections"`
	FinalK             int     `json:"final_k"`
	TokensPerIteration float64 `json:"tokens_per_iteration"`
	Barriers           int     `json:"barriers"`
	DurationMS         float64 `json:"duration_ms"`
	TPS                float64 `json:"tps"`
}

type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

type DeleteGenerationResp struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Verifier string `json:"verifier,omitempty"`
	Draft    string `json:"draft,omitempty"`
	Busy     bool   `json:"busy"`
}

type streamEvent struct {
	Type           string      `json:"type"`
	Generation     *Generation `json:"generation,omitempty"`
	Delta          string      `json:"delta,omitempty"`
	SequenceNumber int         `json:"sequence_number"`
}
