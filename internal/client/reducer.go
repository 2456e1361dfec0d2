// Package client is the peer side of the wire protocol: a session client
// that speaks the websocket transport and a reducer that folds server
// messages into a renderable transcript.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/flitsinc/chatwire/internal/tools"
	"github.com/flitsinc/chatwire/internal/wire"
)

// ErrNoOpenTurn is returned when a text delta arrives with no turn left
// to receive it. That indicates a protocol ordering bug on the sender
// side, so it is surfaced rather than dropped.
var ErrNoOpenTurn = errors.New("no open turn to append delta to")

// Chart is the parsed payload of a chart generator result. Rows hold the
// data points in column order, following the axis keys.
type Chart struct {
	Config      ChartConfig `json:"config"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Rows        [][]any     `json:"chartData"`
	Error       string      `json:"error"`
}

type ChartConfig struct {
	Type  string      `json:"type"`
	XAxis []ChartAxis `json:"xAxis"`
	YAxis []ChartAxis `json:"yAxis"`
}

// ChartAxis names one plotted metric.
type ChartAxis struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Response is the rendered half of a turn. A response carrying a chart
// or image is structural: deltas never append to it.
type Response struct {
	Text      string
	ID        string
	Started   bool
	Finished  bool
	Name      string
	Arguments string
	Timestamp int64
	Runtime   string

	Image *wire.OutputItem
	Chart *Chart
	HTML  string
}

// Turn pairs a user prompt with its response. Tool calls, charts and
// images appear as prompt-less turns.
type Turn struct {
	Prompt   string
	Response Response
}

// ToolRecord is the retained result of one tool invocation, keyed by the
// call id so a consumer can inspect raw arguments and output on demand.
type ToolRecord struct {
	Tool  string
	Args  string
	Items []wire.OutputItem
}

type ServerInfo struct {
	ID    string
	Title string
}

// Reducer maintains the ordered transcript plus connectivity state. All
// methods are safe for concurrent use; the read loop and the sender both
// touch it.
type Reducer struct {
	mu          sync.Mutex
	turns       []Turn
	tokensKB    float64
	sending     bool
	connected   bool
	servers     []ServerInfo
	toolResults map[string]*ToolRecord
}

func NewReducer() *Reducer {
	return &Reducer{toolResults: make(map[string]*ToolRecord)}
}

// Apply folds one server message into the transcript. A single message
// may carry several facets (config, delta, tool, output); each is
// applied in wire order.
func (r *Reducer) Apply(msg *wire.ServerMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if msg.Config != nil {
		r.applyConfig(msg.Config)
	}
	if msg.Delta != "" && msg.Tool == nil {
		if err := r.appendDelta(msg.Delta); err != nil {
			return err
		}
	}
	if msg.Tool != nil {
		r.applyTool(msg.Tool)
	}
	if msg.ToolOutput != "" && msg.ID != "" {
		r.applyToolOutput(msg)
	}
	if msg.Error != "" {
		r.applyError(msg.Error)
	}
	if msg.State {
		r.tokensKB = roundTo(float64(msg.ContextSizeTokens)/1024, 2)
	}
	if msg.Done {
		r.sending = false
	}
	return nil
}

func (r *Reducer) applyConfig(cfg *wire.Config) {
	servers := make([]ServerInfo, 0, len(cfg.MCPServers))
	for id, title := range cfg.MCPServers {
		servers = append(servers, ServerInfo{ID: id, Title: title})
	}
	sort.Slice(servers, func(i, j int) bool { return servers[i].ID < servers[j].ID })
	r.servers = servers
}

// appendDelta writes text onto the most recent turn that is still plain
// text. Chart and image turns are closed to appends.
func (r *Reducer) appendDelta(text string) error {
	for i := len(r.turns) - 1; i >= 0; i-- {
		resp := &r.turns[i].Response
		if resp.Chart == nil && resp.Image == nil {
			resp.Text += text
			return nil
		}
	}
	return ErrNoOpenTurn
}

func (r *Reducer) applyTool(t *wire.Tool) {
	if rec, ok := r.toolResults[t.ID]; !ok || rec == nil {
		r.toolResults[t.ID] = &ToolRecord{Tool: t.Name, Args: t.Arguments}
	}
	for i := range r.turns {
		resp := &r.turns[i].Response
		if resp.ID != "" && resp.ID == t.ID {
			resp.Text = "[tool_call]"
			resp.Finished = true
			resp.Started = false
			resp.Runtime = fmt.Sprintf("%.1f", float64(t.Timestamp-resp.Timestamp)/1000)
			return
		}
	}
	// First sighting: the invocation turn plus an empty placeholder so
	// following deltas have somewhere to land.
	r.turns = append(r.turns,
		Turn{Response: Response{
			Text:      "[tool_call]",
			ID:        t.ID,
			Name:      t.Name,
			Arguments: t.Arguments,
			Timestamp: t.Timestamp,
			Started:   true,
		}},
		Turn{},
	)
}

func (r *Reducer) applyToolOutput(msg *wire.ServerMessage) {
	items := coerceItems(msg.Output)
	rec := r.toolResults[msg.ID]
	if rec == nil {
		rec = &ToolRecord{}
		r.toolResults[msg.ID] = rec
	}
	rec.Tool = msg.ToolOutput
	rec.Items = items

	switch {
	case msg.ToolOutput == tools.ChartGeneratorName:
		if chart := parseChart(items); chart != nil {
			r.turns = append(r.turns, Turn{Response: Response{Text: "[chart]", Chart: chart}})
		}
	case msg.ToolOutput == tools.CodePreviewName:
		for i := range r.turns {
			if r.turns[i].Response.ID == msg.ID {
				r.turns[i].Response.HTML = parsePagePreview(firstText(items))
				break
			}
		}
	}
	for i := range items {
		if strings.HasPrefix(items[i].MimeType, "image/") && items[i].Data != "" {
			item := items[i]
			r.turns = append(r.turns, Turn{Response: Response{Text: "[image]", Image: &item}})
		}
	}
}

func (r *Reducer) applyError(text string) {
	r.sending = false
	if err := r.appendDelta("\n\n**Error:** " + text); err != nil {
		r.turns = append(r.turns, Turn{Response: Response{Text: "**Error:** " + text}})
	}
}

// AddPrompt opens a new turn for an outgoing prompt and flags the
// transcript as sending.
func (r *Reducer) AddPrompt(prompt string) {
	r.mu.Lock()
	r.turns = append(r.turns, Turn{Prompt: prompt})
	r.sending = true
	r.mu.Unlock()
}

// NoteClosed records a transport close on the transcript.
func (r *Reducer) NoteClosed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected = false
	r.sending = false
	if err := r.appendDelta("\n\n**Connection closed. History cleared.** \n"); err != nil {
		log.Printf("client: %v", err)
	}
}

func (r *Reducer) SetConnected(connected bool) {
	r.mu.Lock()
	r.connected = connected
	if connected {
		r.sending = false
		r.tokensKB = 0
	}
	r.mu.Unlock()
}

// Turns returns a copy of the transcript.
func (r *Reducer) Turns() []Turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Turn, len(r.turns))
	copy(out, r.turns)
	return out
}

func (r *Reducer) Sending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sending
}

func (r *Reducer) Connected() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.connected
}

// TokensKB is the last reported context size in kilotokens.
func (r *Reducer) TokensKB() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokensKB
}

func (r *Reducer) Servers() []ServerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ServerInfo, len(r.servers))
	copy(out, r.servers)
	return out
}

// ToolResult returns the retained record for a tool-call id, if any.
func (r *Reducer) ToolResult(id string) (ToolRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.toolResults[id]
	if !ok || rec == nil {
		return ToolRecord{}, false
	}
	return *rec, true
}

// coerceItems normalizes the polymorphic output field: a list of items,
// a single item object, or a bare string.
func coerceItems(output any) []wire.OutputItem {
	switch v := output.(type) {
	case nil:
		return nil
	case []wire.OutputItem:
		return normalizeItems(v)
	case wire.OutputItem:
		return normalizeItems([]wire.OutputItem{v})
	case string:
		return []wire.OutputItem{{Type: "text", Text: v, MimeType: "text/plain"}}
	}
	data, err := json.Marshal(output)
	if err != nil {
		return nil
	}
	var list []wire.OutputItem
	if err := json.Unmarshal(data, &list); err == nil {
		return normalizeItems(list)
	}
	var one wire.OutputItem
	if err := json.Unmarshal(data, &one); err == nil {
		return normalizeItems([]wire.OutputItem{one})
	}
	return nil
}

func normalizeItems(items []wire.OutputItem) []wire.OutputItem {
	out := make([]wire.OutputItem, len(items))
	for i, item := range items {
		if item.Type == "" {
			item.Type = "text"
		}
		if item.MimeType == "" {
			item.MimeType = "text/plain"
		}
		out[i] = item
	}
	return out
}

func parseChart(items []wire.OutputItem) *Chart {
	text := firstText(items)
	if text == "" {
		return nil
	}
	var chart Chart
	if err := json.Unmarshal([]byte(text), &chart); err != nil {
		log.Printf("client: parse chart payload: %v", err)
		return nil
	}
	return &chart
}

// parsePagePreview extracts the page source from the generator's
// {html, title} payload, falling back to the raw text for outputs that
// are already bare HTML.
func parsePagePreview(text string) string {
	var preview struct {
		HTML string `json:"html"`
	}
	if err := json.Unmarshal([]byte(text), &preview); err == nil && preview.HTML != "" {
		return preview.HTML
	}
	return text
}

func firstText(items []wire.OutputItem) string {
	for _, item := range items {
		if item.Text != "" {
			return item.Text
		}
	}
	return ""
}

func roundTo(v float64, places int) float64 {
	scale := math.Pow10(places)
	return math.Round(v*scale) / scale
}
