package models

import (
	"testing"
	"time"
)

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		from     EscrowStatus
		to       EscrowStatus
		expected bool
	}{
		// Happy path
		{StatusDraft, StatusWaitingSchedule, true},
		{StatusWaitingSchedule, StatusSchedulingPending, true},
		{StatusSchedulingPending, StatusWaitingCreative, true},
		{StatusWaitingCreative, StatusCreativeSubmitted, true},
		{StatusCreativeSubmitted, StatusAdminReview, true},
		{StatusCreativeSubmitted, StatusCreativeChangesNotesPending, true},
		{StatusCreativeChangesNotesPending, StatusCreativeChangesRequested, true},
		{StatusCreativeChangesRequested, StatusCreativeSubmitted, true},
		{StatusAdminReview, StatusAwaitingPayment, true},
		{StatusAwaitingPayment, StatusFundsConfirmed, true},
		{StatusFundsConfirmed, StatusScheduled, true},
		{StatusScheduled, StatusPosting, true},
		{StatusPosting, StatusPostedVerifying, true},
		{StatusPostedVerifying, StatusReleased, true},

		// Cancellation and refund paths
		{StatusDraft, StatusCanceled, true},
		{StatusWaitingCreative, StatusCanceled, true},
		{StatusAwaitingPayment, StatusCanceled, true},
		{StatusCanceled, StatusRefunded, true},
		{StatusFundsConfirmed, StatusRefunded, true},
		{StatusPostedVerifying, StatusRefunded, true},

		// Dispute resolution
		{StatusPostedVerifying, StatusDisputed, true},
		{StatusDisputed, StatusReleased, true},
		{StatusDisputed, StatusRefunded, true},

		// Invalid transitions
		{StatusDraft, StatusFundsConfirmed, false},
		{StatusDraft, StatusReleased, false},
		{StatusAwaitingPayment, StatusReleased, false},
		{StatusReleased, StatusRefunded, false},
		{StatusRefunded, StatusReleased, false},
		{StatusReleased, StatusCanceled, false},
		{StatusFundsConfirmed, StatusAwaitingPayment, false},
		{StatusPostedVerifying, StatusPosting, false},
		{"nonexistent", StatusDraft, false},
		{StatusDraft, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			result := IsValidTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestAllStatusesHaveTransitionEntry(t *testing.T) {
	all := []EscrowStatus{
		StatusDraft, StatusWaitingSchedule, StatusSchedulingPending,
		StatusWaitingCreative, StatusCreativeSubmitted,
		StatusCreativeChangesNotesPending, StatusCreativeChangesRequested,
		StatusAdminReview, StatusAwaitingPayment, StatusFundsConfirmed,
		StatusScheduled, StatusPosting, StatusPostedVerifying,
		StatusReleased, StatusCanceled, StatusRefunded, StatusDisputed,
	}
	for _, s := range all {
		if _, ok := ValidEscrowTransitions[s]; !ok {
			t.Errorf("status %q has no entry in the transition table", s)
		}
	}
	// Every target in the table must itself be a known status.
	for from, targets := range ValidEscrowTransitions {
		for _, to := range targets {
			if _, ok := ValidEscrowTransitions[to]; !ok {
				t.Errorf("transition %s -> %s points to unknown status", from, to)
			}
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	for _, s := range []EscrowStatus{StatusReleased, StatusRefunded} {
		if !s.IsTerminal() {
			t.Errorf("%q should be terminal", s)
		}
	}
	for _, s := range []EscrowStatus{StatusDraft, StatusAwaitingPayment, StatusCanceled, StatusDisputed} {
		if s.IsTerminal() {
			t.Errorf("%q should not be terminal", s)
		}
	}
}

func TestMapLegacyNegotiatingStatus(t *testing.T) {
	now := time.Now()
	ready := "Ready"
	blank := "  "

	tests := []struct {
		name        string
		scheduledAt *time.Time
		brief       *string
		expected    EscrowStatus
	}{
		{"no schedule, no brief", nil, nil, StatusWaitingSchedule},
		{"no schedule, brief set", nil, &ready, StatusWaitingSchedule},
		{"scheduled, no brief", &now, nil, StatusWaitingCreative},
		{"scheduled, blank brief", &now, &blank, StatusWaitingCreative},
		{"scheduled and briefed", &now, &ready, StatusAdminReview},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapLegacyNegotiatingStatus(tt.scheduledAt, tt.brief)
			if got != tt.expected {
				t.Errorf("MapLegacyNegotiatingStatus() = %q, want %q", got, tt.expected)
			}
		})
	}
}
