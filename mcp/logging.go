package mcp

// LoggingLevel is a syslog severity name.
type LoggingLevel string

const (
	LoggingLevelDebug     LoggingLevel = "debug"
	LoggingLevelInfo      LoggingLevel = "info"
	LoggingLevelNotice    LoggingLevel = "notice"
	LoggingLevelWarning   LoggingLevel = "warning"
	LoggingLevelError     LoggingLevel = "error"
	LoggingLevelCritical  LoggingLevel = "critical"
	LoggingLevelAlert     LoggingLevel = "alert"
	LoggingLevelEmergency LoggingLevel = "emergency"
)

// loggingLevels is ordered from least to most severe.
var loggingLevels = []LoggingLevel{
	LoggingLevelDebug,
	LoggingLevelInfo,
	LoggingLevelNotice,
	LoggingLevelWarning,
	LoggingLevelError,
	LoggingLevelCritical,
	LoggingLevelAlert,
	LoggingLevelEmergency,
}

func (l LoggingLevel) severity() int {
	for i, v := range loggingLevels {
		if v == l {
			return i
		}
	}
	return -1
}

func IsValidLoggingLevel(level LoggingLevel) bool {
	return level.severity() >= 0
}

// Enabled reports whether a message at level passes the threshold l.
func (l LoggingLevel) Enabled(level LoggingLevel) bool {
	return level.severity() >= l.severity()
}

type SetLevelRequest struct {
	Level LoggingLevel `json:"level"`
}

// LoggingMessageNotification is the params of notifications/message.
type LoggingMessageNotification struct {
	Level  LoggingLevel `json:"level"`
	Logger string       `json:"logger,omitzero"`
	Data   any          `json:"data"`
}
