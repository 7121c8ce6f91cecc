package harvest

import (
	"time"

	"github.com/hazyhaar/ichramap/harvest/internal/verify"
	"github.com/hazyhaar/ichramap/harvest/premium"
)

// PassReport summarises one extraction pass over one filter selection.
// A pass with only per-target failures (NoData, ParseFailures) and
// conflicts still succeeds overall; Incomplete marks passes terminated
// early by a fatal condition or cancellation, with everything captured
// before the cut preserved in the store.
type PassReport struct {
	Filter  premium.FilterSelection `json:"filter"`
	Surface string                  `json:"surface"`

	Targets       int `json:"targets"`        // interaction targets visited
	Records       int `json:"records"`        // distinct new regions captured
	NoData        int `json:"no_data"`        // targets with no readable tooltip
	ParseFailures int `json:"parse_failures"` // tooltips that did not parse
	Duplicates    int `json:"duplicates"`     // agreeing repeat observations
	Conflicts     int `json:"conflicts"`      // disagreeing repeat observations

	Incomplete bool          `json:"incomplete"`
	Elapsed    time.Duration `json:"elapsed"`
}

// VerificationReport re-exports the verifier's report type.
type VerificationReport = verify.Report

// VerificationCheck re-exports the per-region verdict.
type VerificationCheck = verify.Check
