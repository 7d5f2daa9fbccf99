package session

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// maxIDBumps bounds how far messageID moves past the clock to stay ahead of
// a previous id that was not produced here.
const maxIDBumps = 1000

// idGenerator hands out session ids and message ids. Message ids are
// monotonic ULIDs, so sorting them gives creation order even within the
// same millisecond.
type idGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func newIDGenerator() *idGenerator {
	return &idGenerator{entropy: ulid.Monotonic(rand.Reader, 0)}
}

func (g *idGenerator) sessionID() string {
	return "chat_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// messageID returns an id that sorts after previous, the id of the last
// message already stored on the session (empty for the first message).
func (g *idGenerator) messageID(at time.Time, previous string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	for bump := 0; ; bump++ {
		id, err := ulid.New(ulid.Timestamp(at), g.entropy)
		if err != nil {
			// Entropy overflow within one millisecond; fall back to fresh entropy.
			id = ulid.MustNew(ulid.Timestamp(at), rand.Reader)
		}
		out := "msg_" + strings.ToLower(id.String())
		if out > previous || bump == maxIDBumps {
			return out
		}
		// Another writer used a later random part in the same millisecond.
		at = at.Add(time.Millisecond)
	}
}
