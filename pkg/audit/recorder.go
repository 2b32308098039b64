package audit

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/grendel/clipseal/pkg/crypto"
	"github.com/grendel/clipseal/pkg/protocol"
)

// Recorder writes every sink event to the audit log, tagged with the
// session that produced it
type Recorder struct {
	log     *Log
	session uuid.UUID
	logger  *slog.Logger
}

// NewRecorder creates a Recorder. A nil logger uses slog.Default.
func NewRecorder(log *Log, session uuid.UUID, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{log: log, session: session, logger: logger}
}

func (r *Recorder) Locked(short string, chain crypto.ChainTag) {
	r.append("locked", fmt.Sprintf("chain=%s fp=%s", chain, short))
}

func (r *Recorder) Blocked(reason protocol.Reason, message string) {
	r.append("blocked", fmt.Sprintf("reason=%s msg=%q", reason, message))
}

func (r *Recorder) Invalidated(targetID, message string) {
	r.append("invalidated", fmt.Sprintf("target=%s msg=%q", targetID, message))
}

func (r *Recorder) append(op, detail string) {
	detail = fmt.Sprintf("sid=%s %s", r.session, detail)
	if _, err := r.log.Append(op, detail); err != nil {
		r.logger.Error("audit: append failed", "op", op, "error", err)
	}
}
