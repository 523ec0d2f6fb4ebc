package usecase

import syncdomain "dmarcview-backend/internal/sync/domain"

// Tracker aggregates per-message processing outcomes within one run. A
// message is deletion-eligible only when every one of its attachments
// resolved to processed or skipped; one failure is sticky for the run.
type Tracker struct {
	records map[string]*syncdomain.ProcessingRecord
	order   []string
}

func NewTracker() *Tracker {
	return &Tracker{records: make(map[string]*syncdomain.ProcessingRecord)}
}

// RecordOutcome registers one attachment outcome under its owning message.
// The record is created on the first attachment seen for that message.
func (t *Tracker) RecordOutcome(msg *syncdomain.CanonicalMessage, filename string, outcome syncdomain.AttachmentOutcome) {
	rec, ok := t.records[msg.ID]
	if !ok {
		rec = &syncdomain.ProcessingRecord{
			MessageID: msg.ID,
			Subject:   msg.Subject,
			From:      msg.From,
		}
		t.records[msg.ID] = rec
		t.order = append(t.order, msg.ID)
	}

	rec.AttachmentCount++
	rec.Filenames = append(rec.Filenames, filename)
	if outcome == syncdomain.OutcomeProcessed || outcome == syncdomain.OutcomeSkipped {
		rec.SuccessCount++
	}
	rec.Processed = rec.SuccessCount == rec.AttachmentCount
}

// Record returns the record for a message id, or nil.
func (t *Tracker) Record(messageID string) *syncdomain.ProcessingRecord {
	return t.records[messageID]
}

// All returns records in first-seen order.
func (t *Tracker) All() []*syncdomain.ProcessingRecord {
	out := make([]*syncdomain.ProcessingRecord, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.records[id])
	}
	return out
}

// FullyProcessed returns the records eligible for deletion.
func (t *Tracker) FullyProcessed() []*syncdomain.ProcessingRecord {
	var out []*syncdomain.ProcessingRecord
	for _, id := range t.order {
		if rec := t.records[id]; rec.Processed {
			out = append(out, rec)
		}
	}
	return out
}
