package usecase

import (
	"testing"

	syncdomain "dmarcview-backend/internal/sync/domain"
)

func msg(id, subject string) *syncdomain.CanonicalMessage {
	return &syncdomain.CanonicalMessage{ID: id, Subject: subject, From: "noreply@example.org"}
}

func TestTrackerAllAttachmentsSucceed(t *testing.T) {
	tr := NewTracker()
	m := msg("m1", "Report")

	tr.RecordOutcome(m, "a.xml", syncdomain.OutcomeProcessed)
	tr.RecordOutcome(m, "b.zip", syncdomain.OutcomeSkipped)

	rec := tr.Record("m1")
	if rec == nil {
		t.Fatal("no record for m1")
	}
	if !rec.Processed {
		t.Fatal("message with only processed/skipped attachments must be eligible")
	}
	if rec.AttachmentCount != 2 || rec.SuccessCount != 2 {
		t.Fatalf("counts: %d/%d, want 2/2", rec.SuccessCount, rec.AttachmentCount)
	}

	eligible := tr.FullyProcessed()
	if len(eligible) != 1 || eligible[0].MessageID != "m1" {
		t.Fatalf("FullyProcessed returned %d records", len(eligible))
	}
}

func TestTrackerOneFailureExcludesMessage(t *testing.T) {
	tr := NewTracker()
	m := msg("m1", "Report")

	tr.RecordOutcome(m, "a.xml", syncdomain.OutcomeProcessed)
	tr.RecordOutcome(m, "b.xml", syncdomain.OutcomeFailed)

	if tr.Record("m1").Processed {
		t.Fatal("message with a failed attachment must not be eligible")
	}
	if len(tr.FullyProcessed()) != 0 {
		t.Fatal("FullyProcessed must exclude messages with failures")
	}
}

func TestTrackerFailureIsSticky(t *testing.T) {
	tr := NewTracker()
	m := msg("m1", "Report")

	tr.RecordOutcome(m, "a.xml", syncdomain.OutcomeFailed)
	tr.RecordOutcome(m, "b.xml", syncdomain.OutcomeProcessed)
	tr.RecordOutcome(m, "c.xml", syncdomain.OutcomeProcessed)

	if tr.Record("m1").Processed {
		t.Fatal("later successes must not clear an earlier failure")
	}
}

func TestTrackerPreservesFirstSeenOrder(t *testing.T) {
	tr := NewTracker()
	tr.RecordOutcome(msg("m2", "second"), "a.xml", syncdomain.OutcomeProcessed)
	tr.RecordOutcome(msg("m1", "first"), "b.xml", syncdomain.OutcomeProcessed)
	tr.RecordOutcome(msg("m2", "second"), "c.xml", syncdomain.OutcomeProcessed)

	all := tr.All()
	if len(all) != 2 {
		t.Fatalf("got %d records, want 2", len(all))
	}
	if all[0].MessageID != "m2" || all[1].MessageID != "m1" {
		t.Fatalf("order was %s, %s; want m2, m1", all[0].MessageID, all[1].MessageID)
	}
}
