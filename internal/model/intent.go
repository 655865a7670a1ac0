package model

// IntentKind classifies whether a user message requires a real-time
// external fact lookup before the model replies.
type IntentKind string

const (
	IntentChat    IntentKind = "chat"
	IntentMarket  IntentKind = "market"
	IntentWeather IntentKind = "weather"
	IntentForex   IntentKind = "forex"
)

// Intent is the classification result for one inbound message.
type Intent struct {
	Kind IntentKind

	// Fact is the pre-fetched payload, formatted for prompt injection.
	// Empty when no lookup ran or the lookup failed.
	Fact string

	// Pending is set when the intent was recognized but the lookup needs
	// a model-extracted argument (or the provider failed). The
	// orchestrator must then force the matching tool instead of telling
	// the model information is unavailable.
	Pending bool

	// ToolName is the built-in tool matching this intent, used for
	// tool-choice forcing when Pending is set.
	ToolName string
}

// NeedsLookup reports whether this intent requires external data.
func (i Intent) NeedsLookup() bool {
	return i.Kind != IntentChat
}
