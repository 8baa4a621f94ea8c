package model

type ExtractJob struct {
	RunID        int64  `json:"run_id"`
	SourceSystem string `json:"source_system"`
}

type LoadJob struct {
	RunID    int64  `json:"run_id"`
	InputDir string `json:"input_dir,omitempty"`
}

type ExtractRequest struct {
	SourceSystem string `json:"source_system"`
}

type LoadRequest struct {
	InputDir string `json:"input_dir,omitempty"`
}
