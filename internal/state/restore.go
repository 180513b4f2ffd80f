package state

import "time"

// Restored holds the data a session engine needs to rebuild a Session
// from a verified snapshot: the conversation memory to seed the agent
// with, and the sequence number replay should resume after.
type Restored struct {
	SessionID      string
	Memory         []Message
	PendingConfirm string
	ResumeAfterSeq uint64
	PreviousExportedAt time.Time
}

// Restore verifies blob and converts its payload into a Restored value
// ready to seed a freshly created Session.
func Restore(signer *Signer, blob string, now time.Time) (Restored, error) {
	payload, err := signer.Verify(blob, now)
	if err != nil {
		return Restored{}, err
	}
	return Restored{
		SessionID:          payload.SessionID,
		Memory:             payload.Memory,
		PendingConfirm:     payload.PendingConfirm,
		ResumeAfterSeq:     payload.LastSeq,
		PreviousExportedAt: payload.ExportedAt,
	}, nil
}
