package donation

import (
	"fmt"
	"strings"
	"time"

	"yipfoundation/notify"
)

// BacklogAge is how long a completed donation may go without a receipt
// number before it is reported.
const BacklogAge = time.Hour

const backlogListed = 10

// CheckBacklog raises one admin notification listing completed donations
// that never got a receipt number. It does not re-issue them.
func (s *Service) CheckBacklog() (int, error) {
	pending, err := s.Donations.CompletedWithoutReceipt(s.now().Add(-BacklogAge))
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	refs := make([]string, 0, backlogListed)
	for i, d := range pending {
		if i == backlogListed {
			refs = append(refs, fmt.Sprintf("and %d more", len(pending)-backlogListed))
			break
		}
		refs = append(refs, d.PaymentReference)
	}
	s.notify(notify.Notification{
		Title:   "Receipts pending",
		Message: fmt.Sprintf("%d completed donation(s) have no receipt: %s", len(pending), strings.Join(refs, ", ")),
		Color:   notify.ColorOrange,
	})
	s.logger().Warn("receipt backlog", "count", len(pending))
	return len(pending), nil
}
