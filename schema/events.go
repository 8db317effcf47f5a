package schema

import "time"

// LifecycleStage is a transaction phase. Forward order is Queued,
// Preparing, Reflowing, Presenting, Completed. Cancelled is reachable
// from any non-terminal stage via supersession; Failed only from a
// commit attempt that fails its consistency check.
type LifecycleStage string

const (
	// StageQueued means the intent is recorded but no transaction started.
	StageQueued LifecycleStage = "queued"
	// StagePreparing means the transaction was admitted this tick.
	StagePreparing LifecycleStage = "preparing"
	// StageReflowing means cell buffers are being reflowed.
	StageReflowing LifecycleStage = "reflowing"
	// StagePresenting means the reflowed frame is being presented.
	StagePresenting LifecycleStage = "presenting"
	// StageCompleted means the latest geometry committed.
	StageCompleted LifecycleStage = "completed"
	// StageCancelled means a newer intent superseded the transaction.
	StageCancelled LifecycleStage = "cancelled"
	// StageFailed means a commit attempt was rejected as stale.
	StageFailed LifecycleStage = "failed"
)

var stageSuccessor = map[LifecycleStage]LifecycleStage{
	StageQueued:     StagePreparing,
	StagePreparing:  StageReflowing,
	StageReflowing:  StagePresenting,
	StagePresenting: StageCompleted,
}

// Next returns the forward successor stage, or "" for terminal stages.
func (s LifecycleStage) Next() LifecycleStage { return stageSuccessor[s] }

// Terminal reports whether the stage ends a transaction.
func (s LifecycleStage) Terminal() bool {
	return s == StageCompleted || s == StageCancelled || s == StageFailed
}

// DetailKind discriminates LifecycleDetail variants.
type DetailKind string

const (
	// DetailIntentQueued records an accepted submission.
	DetailIntentQueued DetailKind = "intent_queued"
	// DetailPrepareStarted records admission into a new transaction.
	DetailPrepareStarted DetailKind = "prepare_started"
	// DetailReflowStarted records entry into the reflow phase.
	DetailReflowStarted DetailKind = "reflow_started"
	// DetailPresentStarted records entry into the present phase.
	DetailPresentStarted DetailKind = "present_started"
	// DetailActiveCompleted records a successful commit.
	DetailActiveCompleted DetailKind = "active_completed"
	// DetailActiveCancelledBySupersession records a boundary cancellation.
	DetailActiveCancelledBySupersession DetailKind = "active_cancelled_by_supersession"
	// DetailStaleCommitRejected records a refused stale commit.
	DetailStaleCommitRejected DetailKind = "stale_commit_rejected"
)

var detailStage = map[DetailKind]LifecycleStage{
	DetailIntentQueued:                  StageQueued,
	DetailPrepareStarted:                StagePreparing,
	DetailReflowStarted:                 StageReflowing,
	DetailPresentStarted:                StagePresenting,
	DetailActiveCompleted:               StageCompleted,
	DetailActiveCancelledBySupersession: StageCancelled,
	DetailStaleCommitRejected:           StageFailed,
}

// Stage returns the lifecycle stage a detail kind implies.
func (k DetailKind) Stage() LifecycleStage { return detailStage[k] }

// LifecycleDetail carries stage-specific event payload. Seq is the
// transaction (or attempted) sequence. SupersededBy is set only for
// supersession cancellations. Forced is set when the admission was a
// starvation escalation.
type LifecycleDetail struct {
	Kind         DetailKind `json:"kind"`
	Seq          IntentSeq  `json:"seq"`
	SupersededBy IntentSeq  `json:"superseded_by,omitempty"`
	Forced       bool       `json:"forced,omitempty"`
}

// LifecycleEvent is one entry in the bounded lifecycle log. Stage
// always matches Detail.Kind.Stage().
type LifecycleEvent struct {
	Seq    EventSeq        `json:"seq"`
	PaneID PaneID          `json:"pane_id"`
	Stage  LifecycleStage  `json:"stage"`
	Detail LifecycleDetail `json:"detail"`
	At     time.Time       `json:"at"`
}
