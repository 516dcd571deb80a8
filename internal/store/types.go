package store

import "time"

// RunRecord captures one matrix run.
type RunRecord struct {
	ID          string          `json:"id"`
	Timestamp   time.Time       `json:"timestamp"`
	Document    string          `json:"document"`
	Duration    string          `json:"duration"`
	Planned     int             `json:"planned"`
	Passed      int             `json:"passed"`
	Failed      int             `json:"failed"`
	Interrupted bool            `json:"interrupted,omitempty"`
	LogDir      string          `json:"log_dir,omitempty"`
	Variants    []VariantRecord `json:"variants"`
}

// Success reports whether every planned variant passed.
func (r RunRecord) Success() bool {
	return !r.Interrupted && r.Failed == 0 && r.Passed == r.Planned
}

// VariantRecord is the per-variant part of a RunRecord.
type VariantRecord struct {
	Index        int      `json:"index"`
	Device       string   `json:"device"`
	Peripheral   string   `json:"peripheral"`
	Family       string   `json:"family"`
	Pin          string   `json:"pin,omitempty"`
	Success      bool     `json:"success"`
	FailedStages []string `json:"failed_stages,omitempty"`
	Endpoint     string   `json:"endpoint,omitempty"`
	Duration     string   `json:"duration"`
}

// ProbeRecord captures a one-off probe of a serial endpoint.
type ProbeRecord struct {
	Endpoint  string    `json:"endpoint"`
	BaudRate  int       `json:"baud_rate"`
	Timestamp time.Time `json:"timestamp"`
	Request   string    `json:"request"`
	Response  string    `json:"response,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}
