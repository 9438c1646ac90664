package domain

import "fmt"

type ChangeAction string

const (
	ActionCreate ChangeAction = "CREATE"
	ActionUpsert ChangeAction = "UPSERT"
	ActionDelete ChangeAction = "DELETE"
)

func (a ChangeAction) IsValid() bool {
	switch a {
	case ActionCreate, ActionUpsert, ActionDelete:
		return true
	}
	return false
}

// ChangeRequest is one logical change to a single record. For Delete only
// Record.ID and Record.Owner are consulted; the snapshot sent to the
// provider is read back from the store. An Upsert carrying a Patch merges it
// onto the stored record while the record is locked and ignores the content
// fields of Record.
type ChangeRequest struct {
	Action ChangeAction
	Record Record
	Patch  *RecordPatch
}

func (cr ChangeRequest) Render() string {
	return fmt.Sprintf("%s %s (id=%s, owner=%s)", cr.Action, cr.Record.Render(), cr.Record.ID, cr.Record.Owner)
}

// SyncStatus names which side(s) a change reached. LocalOnly means the store
// holds the change but the provider has not confirmed it; RemoteOnly means the
// provider confirmed the change but the store does not reflect it.
type SyncStatus string

const (
	StatusLocalOnly   SyncStatus = "local_only"
	// StatusRemoteOnly on a Delete means the provider removed the record but
	// the local delete failed; the record is left in StateRemotePendingDelete.
	StatusRemoteOnly  SyncStatus = "remote_only"
	StatusBothApplied SyncStatus = "both_applied"
	// StatusBothFailed on a Delete with FailedStage StageRemote means the
	// provider rejected the delete and the record is still held locally.
	StatusBothFailed  SyncStatus = "both_failed"
)

// RecordState is the per-record lifecycle position implied by an outcome.
type RecordState string

const (
	StateAbsent              RecordState = "absent"
	StateLocalPending        RecordState = "local_pending"
	StateSynced              RecordState = "synced"
	StateRemotePendingDelete RecordState = "remote_pending_delete"
)

// Stage identifies where a change stopped.
type Stage string

const (
	StageNone   Stage = ""
	StageLocal  Stage = "local"
	StageRemote Stage = "remote"
)

// SyncOutcome is the explicit result of applying one ChangeRequest.
type SyncOutcome struct {
	Action      ChangeAction
	Status      SyncStatus
	State       RecordState
	FailedStage Stage
	Record      Record
	Err         error
}

func (o SyncOutcome) Synced() bool {
	return o.Status == StatusBothApplied
}

// Retryable reports whether replaying the same ChangeRequest may converge the record.
func (o SyncOutcome) Retryable() bool {
	if o.Err == nil {
		return false
	}
	return IsRemoteProvider(o.Err) || IsLocalStore(o.Err) || IsDivergence(o.Err)
}

func (o SyncOutcome) Render() string {
	if o.Err != nil {
		return fmt.Sprintf("%s %s: %s/%s failed at %s: %v", o.Action, o.Record.Render(), o.Status, o.State, o.FailedStage, o.Err)
	}
	return fmt.Sprintf("%s %s: %s/%s", o.Action, o.Record.Render(), o.Status, o.State)
}
