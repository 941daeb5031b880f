// Package protocol defines the messages exchanged between a scan host and
// a scanner worker.
//
// Both directions are closed sets: Command and Event are sealed interfaces
// implemented only by the types in this package, so a type switch over them
// can be exhaustive. On the wire every message is a JSON object whose "type"
// field names the variant.
package protocol

// Command types (host -> worker)
const (
	TypeInit   = "init"
	TypeStart  = "start"
	TypeCancel = "cancel"
)

// Event types (worker -> host)
const (
	TypeInitDone       = "init_done"
	TypeInitError      = "init_error"
	TypeProgress       = "progress"
	TypeProgressDetail = "progress_detail"
	TypeBatchResults   = "scanner_batch_results"
	TypeError          = "error"
	TypeComplete       = "complete"
	TypeCancelled      = "cancelled"
	TypeCriticalError  = "critical_error"
)

// SetupRuleName is the ruleName carried by error events raised before any rule runs
const SetupRuleName = "Setup"

// Rule is one named query. Names are for display only and need not be unique.
type Rule struct {
	Name  string `json:"name" yaml:"name"`
	Query string `json:"query" yaml:"query"`
}

// Command is a message from the host to the worker
type Command interface {
	CommandType() string
	isCommand()
}

// Init asks the worker to load its query engine
type Init struct {
	EnginePath string `json:"enginePath,omitempty"`
}

// DataLocation points at a dataset held in the blob store
type DataLocation struct {
	Key string `json:"key"`
}

// Start begins a scan. Exactly one of Data and DataLocation should be set;
// DataLocation wins when both are.
type Start struct {
	Rules        []Rule        `json:"rules"`
	InputFormat  string        `json:"inputFormat"`
	Data         *string       `json:"data,omitempty"`
	DataLocation *DataLocation `json:"dataLocation,omitempty"`
	EnginePath   string        `json:"enginePath,omitempty"`
}

// Cancel requests a cooperative stop at the next batch boundary
type Cancel struct{}

func (Init) CommandType() string   { return TypeInit }
func (Start) CommandType() string  { return TypeStart }
func (Cancel) CommandType() string { return TypeCancel }

func (Init) isCommand()   {}
func (Start) isCommand()  {}
func (Cancel) isCommand() {}

// StartInMemory builds a Start scanning data passed inline
func StartInMemory(rules []Rule, inputFormat, data string) Start {
	return Start{Rules: rules, InputFormat: inputFormat, Data: &data}
}

// StartStored builds a Start scanning the stored dataset under key
func StartStored(rules []Rule, inputFormat, key string) Start {
	return Start{Rules: rules, InputFormat: inputFormat, DataLocation: &DataLocation{Key: key}}
}

// Event is a message from the worker to the host
type Event interface {
	EventType() string
	isEvent()
}

// Hit is a rule whose query produced meaningful output
type Hit struct {
	RuleName      string `json:"ruleName"`
	Query         string `json:"query"`
	ResultPreview string `json:"resultPreview"`
}

// RuleError is a rule whose query failed
type RuleError struct {
	RuleName string `json:"ruleName"`
	Message  string `json:"message"`
}

type InitDone struct{}

type InitError struct {
	Message string `json:"message"`
}

// Progress reports that processed of total rules have completed
type Progress struct {
	Processed int `json:"processed"`
	Total     int `json:"total"`
}

// ProgressDetail is a free-text phase description
type ProgressDetail struct {
	Message string `json:"message"`
}

// BatchResults carries one batch's classified results in rule order
type BatchResults struct {
	Hits   []Hit       `json:"hits"`
	Errors []RuleError `json:"errors"`
}

// Error reports a failure that prevented the scan from running.
// RuleName is SetupRuleName for setup failures.
type Error struct {
	RuleName string `json:"ruleName"`
	Message  string `json:"message"`
}

// Complete is the terminal event of a scan that ran every batch
type Complete struct {
	HitsFound      int  `json:"hitsFound"`
	ErrorsOccurred bool `json:"errorsOccurred"`
}

// Cancelled is the terminal event of a scan stopped on request
type Cancelled struct{}

// CriticalError reports an unrecoverable fault; nothing follows it
type CriticalError struct {
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
}

func (InitDone) EventType() string       { return TypeInitDone }
func (InitError) EventType() string      { return TypeInitError }
func (Progress) EventType() string       { return TypeProgress }
func (ProgressDetail) EventType() string { return TypeProgressDetail }
func (BatchResults) EventType() string   { return TypeBatchResults }
func (Error) EventType() string          { return TypeError }
func (Complete) EventType() string       { return TypeComplete }
func (Cancelled) EventType() string      { return TypeCancelled }
func (CriticalError) EventType() string  { return TypeCriticalError }

func (InitDone) isEvent()       {}
func (InitError) isEvent()      {}
func (Progress) isEvent()       {}
func (ProgressDetail) isEvent() {}
func (BatchResults) isEvent()   {}
func (Error) isEvent()          {}
func (Complete) isEvent()       {}
func (Cancelled) isEvent()      {}
func (CriticalError) isEvent()  {}

// IsTerminal reports whether ev ends a scan session
func IsTerminal(ev Event) bool {
	switch ev.(type) {
	case Complete, Cancelled, CriticalError:
		return true
	default:
		return false
	}
}
