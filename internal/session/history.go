package session

// History item types, mirroring the agent engine's input item encoding.
const (
	ItemMessage    = "message"
	ItemToolCall   = "function_call"
	ItemToolResult = "function_call_result"
)

// Item is one entry of a session's conversation history. It is a tagged
// variant: Type selects which fields are meaningful.
type Item struct {
	Type      string      `json:"type"`
	Role      string      `json:"role,omitempty"`
	Content   string      `json:"content,omitempty"`
	ID        string      `json:"id,omitempty"`
	Name      string      `json:"name,omitempty"`
	Arguments string      `json:"arguments,omitempty"`
	CallID    string      `json:"call_id,omitempty"`
	Output    *ItemOutput `json:"output,omitempty"`
}

// ItemOutput carries a tool result payload.
type ItemOutput struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func UserMessage(text string) Item {
	return Item{Type: ItemMessage, Role: "user", Content: text}
}

func AssistantMessage(text string) Item {
	return Item{Type: ItemMessage, Role: "assistant", Content: text}
}

func ToolCall(id, name, arguments string) Item {
	return Item{Type: ItemToolCall, ID: id, Name: name, Arguments: arguments}
}

func ToolResult(callID, text string) Item {
	return Item{Type: ItemToolResult, CallID: callID, Output: &ItemOutput{Type: "text", Text: text}}
}
