package mcp

import "encoding/json"

// Method names a request or notification.
type Method string

const (
	InitializeMethod              Method = "initialize"
	InitializedNotificationMethod Method = "notifications/initialized"
	PingMethod                    Method = "ping"

	ToolsListMethod                    Method = "tools/list"
	ToolsCallMethod                    Method = "tools/call"
	ToolsListChangedNotificationMethod Method = "notifications/tools/list_changed"

	LoggingSetLevelMethod            Method = "logging/setLevel"
	LoggingMessageNotificationMethod Method = "notifications/message"

	CancelledNotificationMethod Method = "notifications/cancelled"
	ProgressNotificationMethod  Method = "notifications/progress"
)

// BaseMetadata is the optional _meta member of results.
type BaseMetadata struct {
	Meta map[string]any `json:"_meta,omitempty"`
}

// RequestMeta is the optional _meta member of request params.
type RequestMeta struct {
	ProgressToken ProgressToken `json:"progressToken,omitempty"`
}

// ProgressToken is a string or a number chosen by the client.
type ProgressToken any

type ProgressNotificationParams struct {
	ProgressToken ProgressToken `json:"progressToken"`
	Progress      float64       `json:"progress"`
	Total         float64       `json:"total,omitzero"`
	Message       string        `json:"message,omitzero"`
}

// CancelledNotification asks the server to abandon an in-flight request.
// RequestID stays raw so string and numeric ids both survive decoding.
type CancelledNotification struct {
	RequestID json.RawMessage `json:"requestId"`
	Reason    string          `json:"reason,omitzero"`
}

type PaginatedRequest struct {
	Cursor string `json:"cursor,omitzero"`
}

type PaginatedResult struct {
	NextCursor string `json:"nextCursor,omitzero"`
}

// EmptyResult answers ping and logging/setLevel.
type EmptyResult struct {
	BaseMetadata
}
