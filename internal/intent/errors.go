package intent

import "errors"

var (
	// ErrEmptyQuery is returned when a classification or fallback call
	// receives a blank query.
	ErrEmptyQuery = errors.New("query is required")

	// ErrEmptyConversationID is returned by context-aware calls that
	// receive a blank conversation id.
	ErrEmptyConversationID = errors.New("conversation id is required")

	// ErrEmptyTenantID is returned by tenant-scoped operations that
	// cannot determine the tenant.
	ErrEmptyTenantID = errors.New("tenant id is required")

	// ErrNilResult is returned when ApplyFallback receives no initial
	// classification result.
	ErrNilResult = errors.New("initial classification result is required")

	// ErrIntentNotFound is returned when an intent name or alias does
	// not resolve to a registered intent.
	ErrIntentNotFound = errors.New("intent not found")

	// ErrIntentExists is returned when adding an intent whose name is
	// already registered.
	ErrIntentExists = errors.New("intent already exists")

	// ErrInvalidIntentName is returned when an intent or alias name is
	// blank.
	ErrInvalidIntentName = errors.New("intent name is required")

	// ErrNoExamples is returned when an intent is added or updated with
	// no example phrases.
	ErrNoExamples = errors.New("at least one example phrase is required")

	// ErrJobNotFound is returned when a classification job id is
	// unknown.
	ErrJobNotFound = errors.New("classification job not found")

	// ErrRecordNotFound is returned when a misclassification record id
	// does not exist for the tenant.
	ErrRecordNotFound = errors.New("misclassification record not found")
)
