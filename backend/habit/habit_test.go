package habit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/lifetrack-app/lifetrack/backend/models"
)

// day returns a timestamp on the given calendar day at the given hour,
// local time. Tests only care about calendar dates, not wall-clock gaps.
func day(d, hour int) time.Time {
	return time.Date(2023, time.March, d, hour, 0, 0, 0, time.Local)
}

func testHabit(qtt, goal int) *models.Habit {
	return &models.Habit{
		ID:     primitive.NewObjectID(),
		UserID: primitive.NewObjectID(),
		Name:   "read",
		Qtt:    qtt,
		Goal:   goal,
		Mode:   models.ModeNormal,
	}
}

func TestSameCalendarDay(t *testing.T) {
	assert.True(t, SameCalendarDay(day(1, 0), day(1, 23)))
	assert.False(t, SameCalendarDay(day(1, 23), day(2, 0)))
	assert.False(t, SameCalendarDay(day(1, 12), day(2, 12)))
}

// A 23:59 increment followed by a 00:01 increment the next day is two
// distinct days; two increments minutes apart on one date are not.
func TestDayBoundaryIsCalendarDateNotElapsedTime(t *testing.T) {
	h := testHabit(0, 0)

	lateNight := time.Date(2023, time.March, 1, 23, 59, 0, 0, time.Local)
	plan, err := PlanIncrement(h, lateNight)
	assert.NoError(t, err)
	h.Qtt = plan.NewQtt
	h.LastIncrementedAt = &plan.LastIncrementedAt

	justAfterMidnight := time.Date(2023, time.March, 2, 0, 1, 0, 0, time.Local)
	plan, err = PlanIncrement(h, justAfterMidnight)
	assert.NoError(t, err)
	assert.Equal(t, 2, plan.NewQtt)

	h.Qtt = plan.NewQtt
	h.LastIncrementedAt = &plan.LastIncrementedAt

	hoursLater := time.Date(2023, time.March, 2, 22, 0, 0, 0, time.Local)
	_, err = PlanIncrement(h, hoursLater)
	assert.ErrorIs(t, err, ErrAlreadyCompletedToday)
}

func TestIncrementWithoutGoalNeverCompletes(t *testing.T) {
	h := testHabit(0, 0)

	for d := 1; d <= 200; d++ {
		plan, err := PlanIncrement(h, day(d, 9))
		assert.NoError(t, err)
		assert.Equal(t, d, plan.NewQtt)
		assert.False(t, plan.CompletesGoal)

		h.Qtt = plan.NewQtt
		h.LastIncrementedAt = &plan.LastIncrementedAt
		assert.Equal(t, Active, StateOf(h))
	}
}

func TestIncrementSameDayRejected(t *testing.T) {
	h := testHabit(0, 100)
	h.Mode = models.ModeOn

	plan, err := PlanIncrement(h, day(1, 8))
	assert.NoError(t, err)
	assert.Equal(t, 1, plan.NewQtt)
	assert.False(t, plan.CompletesGoal)
	h.Qtt = plan.NewQtt
	h.LastIncrementedAt = &plan.LastIncrementedAt

	_, err = PlanIncrement(h, day(1, 20))
	assert.ErrorIs(t, err, ErrAlreadyCompletedToday)
	assert.Equal(t, 1, h.Qtt)

	plan, err = PlanIncrement(h, day(2, 8))
	assert.NoError(t, err)
	assert.Equal(t, 2, plan.NewQtt)
}

func TestChallengeCompletesAtGoal(t *testing.T) {
	h := testHabit(99, 100)
	last := day(9, 10)
	h.LastIncrementedAt = &last

	plan, err := PlanIncrement(h, day(10, 10))
	assert.NoError(t, err)
	assert.Equal(t, 100, plan.NewQtt)
	assert.True(t, plan.CompletesGoal)

	h.Qtt = plan.NewQtt
	h.LastIncrementedAt = &plan.LastIncrementedAt
	assert.Equal(t, Completed, StateOf(h))

	_, err = PlanIncrement(h, day(11, 10))
	assert.ErrorIs(t, err, ErrAlreadyComplete)
}

// Completed takes precedence over the day guard, so a completed challenge
// reports AlreadyComplete even on the day of its final increment.
func TestCompletedRejectionPrecedesDayGuard(t *testing.T) {
	h := testHabit(100, 100)
	last := day(10, 10)
	h.LastIncrementedAt = &last

	_, err := PlanIncrement(h, day(10, 12))
	assert.ErrorIs(t, err, ErrAlreadyComplete)
}

func TestCompletionRecordMatchesNewQtt(t *testing.T) {
	h := testHabit(41, 0)

	plan, err := PlanIncrement(h, day(3, 7))
	assert.NoError(t, err)
	assert.Equal(t, h.ID, plan.Completion.HabitID)
	assert.Equal(t, plan.NewQtt, plan.Completion.DayNumber)
	assert.Equal(t, day(3, 7), plan.Completion.CompletedAt)
	assert.False(t, plan.Completion.IsFailure)
}

func TestFailResetsRegardlessOfQtt(t *testing.T) {
	for _, qtt := range []int{0, 1, 50, 100} {
		h := testHabit(qtt, 100)
		h.ResetOnFailure = true

		plan := PlanFail(h, day(7, 15))
		assert.Equal(t, day(7, 15), plan.StartDate)
		assert.Equal(t, day(7, 15), plan.LastIncrementedAt)
		assert.True(t, plan.Completion.IsFailure)
		assert.Equal(t, 0, plan.Completion.DayNumber)
	}
}

// Fail has no day guard: repeated fails on one day all produce plans.
func TestFailHasNoDayGuard(t *testing.T) {
	h := testHabit(10, 0)

	first := PlanFail(h, day(4, 9))
	assert.NotNil(t, first)
	h.Qtt = 0
	h.StartDate = &first.StartDate
	h.LastIncrementedAt = &first.LastIncrementedAt

	second := PlanFail(h, day(4, 11))
	assert.NotNil(t, second)
	assert.Equal(t, day(4, 11), second.StartDate)
}

func TestValidateNew(t *testing.T) {
	h := &models.Habit{Name: "meditate"}
	assert.NoError(t, ValidateNew(h))
	assert.Equal(t, models.ModeNormal, h.Mode)

	assert.ErrorIs(t, ValidateNew(&models.Habit{}), ErrNameRequired)
	assert.ErrorIs(t, ValidateNew(&models.Habit{Name: "x", Goal: -1}), ErrInvalidGoal)
	assert.ErrorIs(t, ValidateNew(&models.Habit{Name: "x", Mode: "SOMETIMES"}), ErrInvalidMode)
	assert.NoError(t, ValidateNew(&models.Habit{Name: "x", Mode: models.ModeOff}))
}
