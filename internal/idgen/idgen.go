package idgen

import (
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// New returns a UUIDv7 identifier string.
// If UUIDv7 generation fails, it falls back to a random UUIDv4.
func New() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// RunID returns a lexicographically sortable id for a single engine run.
func RunID() string {
	return ulid.Make().String()
}

const toolCallRandLen = 13

// ToolCallID returns a tool call identifier of the form
// tc-<random base36>-<unix millis>. The millisecond suffix keeps ids
// roughly ordered by call time.
func ToolCallID() string {
	return strings.Join([]string{
		"tc",
		randBase36(toolCallRandLen),
		strconv.FormatInt(time.Now().UTC().UnixMilli(), 10),
	}, "-")
}

const base36 = "0123456789abcdefghijklmnopqrstuvwxyz"

func randBase36(n int) string {
	var sb strings.Builder
	sb.Grow(n)
	for range n {
		sb.WriteByte(base36[rand.Intn(len(base36))])
	}
	return sb.String()
}
