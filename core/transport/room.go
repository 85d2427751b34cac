package transport

import "regexp"

var conversationIDPattern = regexp.MustCompile(`conv_[A-Za-z0-9]+`)

// ConversationIDFromRoom extracts the conversation id embedded in a room or
// session name. Names without a recognisable id are returned unchanged.
func ConversationIDFromRoom(room string) string {
	if match := conversationIDPattern.FindString(room); match != "" {
		return match
	}
	return room
}
