package domain

import "time"

// RetirementPolicy is the single source for how long a delivered order stays
// active before the archival sweep retires it.
type RetirementPolicy struct {
	Retention     time.Duration
	DisplayWindow time.Duration
}

func (p RetirementPolicy) RetireAt(deliveredAt time.Time) time.Time {
	return deliveredAt.Add(p.Retention)
}

// Due reports whether o is delivered, still active and past retention at now.
func (p RetirementPolicy) Due(o Order, now time.Time) bool {
	return !o.Archived && o.DeliveredBefore(now.Add(-p.Retention))
}

// Visible reports whether o still shows in the owner's active order list.
func (p RetirementPolicy) Visible(o Order, now time.Time) bool {
	if o.Archived {
		return false
	}
	if o.Status != OrderStatusDelivered {
		return true
	}
	return now.Sub(o.UpdatedAt) < p.DisplayWindow
}

type RetirementTask struct {
	OrderID   string    `db:"order_id"`
	DueAt     time.Time `db:"due_at"`
	CreatedAt time.Time `db:"created_at"`
}
