// Package wire names the inbound and outbound event identifiers of the
// client <-> server channel, shared by the reasoning loop (which emits
// rendering events) and the event bridge (which emits and receives them
// over the wire) so the two sides can't drift apart.
package wire

// Inbound event names (client -> server).
const (
	EventStartTask               = "start_task"
	EventUserConfirmation        = "user_confirmation"
	EventRequestSessionList      = "request_session_list"
	EventRequestSessionName      = "request_session_name"
	EventLogAuditEvent           = "log_audit_event"
	EventRequestDBCollections    = "request_db_collections"
	EventRequestDBCollectionData = "request_db_collection_data"
	EventRequestTraceLog         = "request_trace_log"
	EventRequestHavenTraceLog    = "request_haven_trace_log"
)

// Outbound event names (server -> client).
const (
	EventLogMessage              = "log_message"
	EventToolLog                 = "tool_log"
	EventDisplayUserPrompt       = "display_user_prompt"
	EventRequestUserConfirmation = "request_user_confirmation"
	EventSessionListUpdate       = "session_list_update"
	EventSessionNameUpdate       = "session_name_update"
	EventClearChatHistory        = "clear_chat_history"
)

// log_message payload "type" values.
const (
	LogTypeUser                  = "user"
	LogTypeFinalAnswer           = "final_answer"
	LogTypeInfo                  = "info"
	LogTypeSystemConfirm         = "system_confirm"
	LogTypeSystemConfirmReplayed = "system_confirm_replayed"
)

// Envelope is the JSON shape of every message on the wire: an event
// name plus an opaque payload.
type Envelope struct {
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload"`
}
