package ingest

import "context"

// State is the processing state of an uploaded file on the remote service.
type State string

const (
	StateProcessing State = "PROCESSING"
	StateActive     State = "ACTIVE"
	StateFailed     State = "FAILED"
)

// Terminal reports whether no further transition is expected. Any state
// other than PROCESSING is terminal.
func (s State) Terminal() bool {
	return s != StateProcessing
}

// RemoteHandle references a file held by the remote service.
type RemoteHandle struct {
	ID          string
	URI         string
	DisplayName string
	MIMEType    string
	State       State
}

// FileService is the remote file store: upload, readiness query and delete.
type FileService interface {
	Upload(ctx context.Context, path, mimeType, displayName string) (*RemoteHandle, error)
	State(ctx context.Context, id string) (State, error)
	Delete(ctx context.Context, id string) error
}

// Generator issues one generation request against ready handles. An error
// matching ErrContentBlocked means the output was withheld.
type Generator interface {
	Generate(ctx context.Context, req AnalysisRequest) (string, error)
}

// Safety thresholds accepted for each harm category.
const (
	BlockNone           = "BLOCK_NONE"
	BlockOnlyHigh       = "BLOCK_ONLY_HIGH"
	BlockMediumAndAbove = "BLOCK_MEDIUM_AND_ABOVE"
	BlockLowAndAbove    = "BLOCK_LOW_AND_ABOVE"
	BlockOff            = "OFF"
)

// SafetyThresholds holds one threshold per harm category.
type SafetyThresholds struct {
	HateSpeech       string
	Harassment       string
	SexuallyExplicit string
	DangerousContent string
}

// GenerationOptions is fixed per invocation.
type GenerationOptions struct {
	Model            string
	Temperature      float32
	TopP             float32
	TopK             float32
	MaxOutputTokens  int32
	ResponseMIMEType string
	Safety           SafetyThresholds
}

// AnalysisRequest is a prompt plus the ordered, ACTIVE handles it refers to.
type AnalysisRequest struct {
	Prompt            string
	SystemInstruction string
	Handles           []*RemoteHandle
	Options           GenerationOptions
}
