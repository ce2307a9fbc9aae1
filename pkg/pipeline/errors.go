package pipeline

import "errors"

var (
	// ErrNoAnalyzableContent reports a log entry with neither a message
	// nor structured payload fields. Nothing can be extracted from it.
	ErrNoAnalyzableContent = errors.New("log entry has no message and no structured payload")

	// ErrNoActionablePlan reports a remediation plan that names no files
	// to change and no intent to create new ones.
	ErrNoActionablePlan = errors.New("plan names no files to change and no new-file creation")

	// ErrStagingFailed wraps git staging errors from the GitManager stage.
	ErrStagingFailed = errors.New("git staging failed")
)
