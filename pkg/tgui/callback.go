package tgui

import "strings"

// MaxCallbackDataLen is Telegram's callback_data limit in bytes. Data does not
// enforce it; keep payloads short.
const MaxCallbackDataLen = 64

// Data formats callback data as "scope:action:payload". The payload is not escaped.
func Data(scope, action, payload string) string {
	scope = strings.TrimSpace(scope)
	action = strings.TrimSpace(action)
	if payload == "" {
		return scope + ":" + action
	}
	return scope + ":" + action + ":" + payload
}

// ParseData splits "scope:action[:payload]". The payload may contain ':'.
func ParseData(data string) (scope, action, payload string, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(data), ":", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", false
	}
	if len(parts) == 3 {
		payload = parts[2]
	}
	return parts[0], parts[1], payload, true
}
