package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dedicated/internal/domain"
)

func TestOverlaps_HalfOpen(t *testing.T) {
	t.Parallel()

	h := func(n int) time.Time { return testNow.Add(time.Duration(n) * time.Hour) }

	assert.True(t, Overlaps(h(10), h(13), h(12), h(14)))
	assert.True(t, Overlaps(h(10), h(13), h(11), h(12)), "contained")
	assert.False(t, Overlaps(h(10), h(13), h(13), h(15)), "adjacent after")
	assert.False(t, Overlaps(h(13), h(15), h(10), h(13)), "adjacent before")
	assert.False(t, Overlaps(h(10), h(11), h(12), h(13)))
}

// Bookings A [10:00,13:00), B [12:00,14:00) and C [13:00,15:00) on the same day.
func TestAssignDriver_OverlapExamples(t *testing.T) {
	t.Parallel()
	h := newHarness()
	ctx := context.Background()

	tenAM := at(26 * time.Hour)
	h.addBooking("A", domain.BookingStatusPending, "", tenAM, 3)
	h.addBooking("B", domain.BookingStatusPending, "", tenAM.Add(2*time.Hour), 2)
	h.addBooking("C", domain.BookingStatusApproved, "", tenAM.Add(3*time.Hour), 2)

	_, err := h.booking.AssignDriver(ctx, "A", "driver-1")
	require.NoError(t, err)

	_, err = h.booking.AssignDriver(ctx, "B", "driver-1")
	assert.ErrorIs(t, err, ErrDriverUnavailable)
	assert.Equal(t, domain.BookingStatusPending, h.bookings.GetBooking("B").Status)

	_, err = h.booking.AssignDriver(ctx, "C", "driver-1")
	require.NoError(t, err)

	// Another driver is free for B.
	_, err = h.booking.AssignDriver(ctx, "B", "driver-2")
	require.NoError(t, err)
}

func TestFindConflicts_UsesActualStartOnceUnderway(t *testing.T) {
	t.Parallel()
	h := newHarness()
	ctx := context.Background()

	// Scheduled for [5h,8h) but started early, so it occupies [-1h,2h).
	early := h.addBooking("early", domain.BookingStatusActive, "driver-1", at(5*time.Hour), 3)
	early.StartedAt = at(-time.Hour)
	h.bookings.AddBooking(early)

	alloc := NewDriverAllocator(h.tx)

	conflicts, err := alloc.FindConflicts(ctx, h.bookings, "driver-1", at(time.Hour), at(2*time.Hour), "")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "early", conflicts[0].ID)

	conflicts, err = alloc.FindConflicts(ctx, h.bookings, "driver-1", at(5*time.Hour), at(6*time.Hour), "")
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	conflicts, err = alloc.FindConflicts(ctx, h.bookings, "driver-1", at(2*time.Hour), at(3*time.Hour), "")
	require.NoError(t, err)
	assert.Empty(t, conflicts, "adjacent to the actual window")
}

func TestFindConflicts_IgnoresReleasedBookings(t *testing.T) {
	t.Parallel()
	h := newHarness()
	ctx := context.Background()
	start := at(26 * time.Hour)

	h.addBooking("done", domain.BookingStatusCompleted, "driver-1", start, 3)
	h.addBooking("cancelled", domain.BookingStatusCancelled, "driver-1", start, 3)
	h.addBooking("other", domain.BookingStatusDriverAssigned, "driver-2", start, 3)
	h.addBooking("self", domain.BookingStatusDriverAssigned, "driver-1", start, 3)

	alloc := NewDriverAllocator(h.tx)

	conflicts, err := alloc.FindConflicts(ctx, h.bookings, "driver-1", start, start.Add(time.Hour), "self")
	require.NoError(t, err)
	assert.Empty(t, conflicts)

	conflicts, err = alloc.FindConflicts(ctx, h.bookings, "driver-1", start, start.Add(time.Hour), "")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, "self", conflicts[0].ID)
}

func TestAssignDriver_Preconditions(t *testing.T) {
	t.Parallel()
	h := newHarness()
	ctx := context.Background()
	h.addBooking("b1", domain.BookingStatusPending, "", at(26*time.Hour), 3)

	_, err := h.booking.AssignDriver(ctx, "b1", "user-1")
	assert.ErrorIs(t, err, ErrNotADriver)

	_, err = h.booking.AssignDriver(ctx, "b1", "ghost")
	assert.ErrorIs(t, err, ErrDriverNotFound)

	_, err = h.booking.AssignDriver(ctx, "missing", "driver-1")
	assert.ErrorIs(t, err, ErrBookingNotFound)

	_, err = h.booking.AssignDriver(ctx, "b1", "")
	assert.ErrorIs(t, err, ErrDriverNotFound)
}

func TestAcceptByDriver(t *testing.T) {
	t.Parallel()
	h := newHarness()
	h.addBooking("b1", domain.BookingStatusApproved, "", at(26*time.Hour), 3)

	b, err := h.booking.AcceptByDriver(context.Background(), "b1", "driver-2")
	require.NoError(t, err)
	assert.Equal(t, "driver-2", b.DriverID)
	assert.Equal(t, domain.BookingStatusDriverAssigned, b.Status)
}

func TestAssignDriver_ConcurrentOverlappingOnlyOneWins(t *testing.T) {
	t.Parallel()
	h := newHarness()

	const contenders = 8
	start := at(26 * time.Hour)
	for i := 0; i < contenders; i++ {
		// Every window shares 11:00-12:00 with every other.
		h.addBooking(fmt.Sprintf("b%d", i), domain.BookingStatusPending, "", start.Add(time.Duration(i)*time.Minute), 2)
	}

	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		won         []string
		unavailable int
	)
	for i := 0; i < contenders; i++ {
		id := fmt.Sprintf("b%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.booking.AssignDriver(context.Background(), id, "driver-1")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				won = append(won, id)
			case errors.Is(err, ErrDriverUnavailable):
				unavailable++
			}
		}()
	}
	wg.Wait()

	require.Len(t, won, 1)
	assert.Equal(t, contenders-1, unavailable)

	reserved, err := h.bookings.ListDriverReservations(context.Background(), "driver-1", "")
	require.NoError(t, err)
	require.Len(t, reserved, 1)
	assert.Equal(t, won[0], reserved[0].ID)
}
