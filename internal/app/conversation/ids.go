package conversation

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/PabloGalante/engigen-agent/internal/domain"
)

func newSessionID() domain.SessionID {
	return domain.SessionID(uuid.NewString())
}

// Message ids are ULIDs so they sort in creation order.
func newMessageID() domain.MessageID {
	return domain.MessageID(ulid.Make().String())
}
