package attendance_test

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/attendance/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type deriverFixture struct {
	store    *store.Memory
	holidays store.HolidaySet
	settings store.MapSettings
	deriver  *attendance.Deriver
}

func newDeriverFixture(t *testing.T) *deriverFixture {
	mem := store.NewMemory()
	holidays := store.HolidaySet{}
	settings := store.MapSettings{}

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)

	require.NoError(t, mem.SaveMember(context.Background(), attendance.Member{
		ID:          "mem-1",
		Name:        "Asha",
		BiometricID: "bio-1",
		Active:      true,
	}))

	return &deriverFixture{
		store:    mem,
		holidays: holidays,
		settings: settings,
		deriver:  attendance.NewDeriver(mem, holidays, settings, log),
	}
}

func (f *deriverFixture) swipe(t *testing.T, subjectID string, typ attendance.EventType, at time.Time) {
	t.Helper()
	require.NoError(t, f.store.AppendEvent(context.Background(), attendance.BiometricEvent{
		DeviceID:        "dev-1",
		SubjectID:       subjectID,
		DeviceTimestamp: at,
		Type:            typ,
	}))
}

func mar(day, hour, min int) time.Time {
	return time.Date(2025, time.March, day, hour, min, 0, 0, time.UTC)
}

var mar10 = attendance.NewDate(2025, time.March, 10)

// =============================================================================
// CLASSIFICATION TESTS
// =============================================================================

func TestDerive_SinglePair_FullDay(t *testing.T) {
	// GIVEN: IN at 09:00, OUT at 17:30
	// WHEN: Deriving the day
	// THEN: 8.5 hours, FULL_DAY, first-in/last-out preserved

	f := newDeriverFixture(t)
	f.swipe(t, "bio-1", attendance.EventIn, mar(10, 9, 0))
	f.swipe(t, "bio-1", attendance.EventOut, mar(10, 17, 30))

	res, err := f.deriver.Derive(context.Background(), "mem-1", mar10)
	require.NoError(t, err)

	assert.Equal(t, attendance.StatusFullDay, res.Status)
	assert.Equal(t, attendance.SourceBiometric, res.Source)
	assert.Equal(t, 8.5, res.HoursWorked)
	require.NotNil(t, res.FirstIn)
	require.NotNil(t, res.LastOut)
	assert.Equal(t, mar(10, 9, 0), *res.FirstIn)
	assert.Equal(t, mar(10, 17, 30), *res.LastOut)
	assert.Nil(t, res.Exception)
}

func TestDerive_MultiplePairs_SumsClosedIntervals(t *testing.T) {
	// GIVEN: Two sessions with a lunch gap (09:00-13:00, 14:00-18:00)
	// WHEN: Deriving the day
	// THEN: Gap is unpaid; 8 hours total

	f := newDeriverFixture(t)
	f.swipe(t, "bio-1", attendance.EventIn, mar(10, 9, 0))
	f.swipe(t, "bio-1", attendance.EventOut, mar(10, 13, 0))
	f.swipe(t, "bio-1", attendance.EventIn, mar(10, 14, 0))
	f.swipe(t, "bio-1", attendance.EventOut, mar(10, 18, 0))

	res, err := f.deriver.Derive(context.Background(), "mem-1", mar10)
	require.NoError(t, err)

	assert.Equal(t, 8.0, res.HoursWorked)
	assert.Equal(t, attendance.StatusFullDay, res.Status)
}

func TestDerive_ShortDay_HalfDay(t *testing.T) {
	// GIVEN: 5 hours worked, default thresholds (8 full / 4 half)
	// WHEN: Deriving the day
	// THEN: HALF_DAY

	f := newDeriverFixture(t)
	f.swipe(t, "bio-1", attendance.EventIn, mar(10, 9, 0))
	f.swipe(t, "bio-1", attendance.EventOut, mar(10, 14, 0))

	res, err := f.deriver.Derive(context.Background(), "mem-1", mar10)
	require.NoError(t, err)

	assert.Equal(t, attendance.StatusHalfDay, res.Status)
	assert.Equal(t, 5.0, res.HoursWorked)
}

func TestDerive_VeryShortDay_LOP(t *testing.T) {
	// GIVEN: 2 hours worked
	// WHEN: Deriving the day
	// THEN: LOP, but still no exception - short days are valid data

	f := newDeriverFixture(t)
	f.swipe(t, "bio-1", attendance.EventIn, mar(10, 9, 0))
	f.swipe(t, "bio-1", attendance.EventOut, mar(10, 11, 0))

	res, err := f.deriver.Derive(context.Background(), "mem-1", mar10)
	require.NoError(t, err)

	assert.Equal(t, attendance.StatusLOP, res.Status)
	assert.Nil(t, res.Exception)
}

func TestDerive_ThresholdsFromSettings(t *testing.T) {
	// GIVEN: FULL_DAY_MIN_HOURS lowered to 6
	// WHEN: Deriving a 6.5 hour day
	// THEN: FULL_DAY under the configured threshold

	f := newDeriverFixture(t)
	f.settings[attendance.SettingFullDayMinHours] = "6"
	f.swipe(t, "bio-1", attendance.EventIn, mar(10, 9, 0))
	f.swipe(t, "bio-1", attendance.EventOut, mar(10, 15, 30))

	res, err := f.deriver.Derive(context.Background(), "mem-1", mar10)
	require.NoError(t, err)

	assert.Equal(t, attendance.StatusFullDay, res.Status)
}

func TestDerive_ExactThreshold_CountsAsFullDay(t *testing.T) {
	// GIVEN: Exactly 8.00 hours
	// WHEN: Deriving
	// THEN: The boundary is inclusive

	f := newDeriverFixture(t)
	f.swipe(t, "bio-1", attendance.EventIn, mar(10, 9, 0))
	f.swipe(t, "bio-1", attendance.EventOut, mar(10, 17, 0))

	res, err := f.deriver.Derive(context.Background(), "mem-1", mar10)
	require.NoError(t, err)

	assert.Equal(t, attendance.StatusFullDay, res.Status)
	assert.Equal(t, 8.0, res.HoursWorked)
}

// =============================================================================
// HOLIDAY OVERRIDE
// =============================================================================

func TestDerive_Holiday_OverridesEvents(t *testing.T) {
	// GIVEN: A full day of swipes on a declared holiday
	// WHEN: Deriving
	// THEN: HOLIDAY wins; the swipes are ignored

	f := newDeriverFixture(t)
	f.holidays.Add(mar10)
	f.swipe(t, "bio-1", attendance.EventIn, mar(10, 9, 0))
	f.swipe(t, "bio-1", attendance.EventOut, mar(10, 17, 30))

	res, err := f.deriver.Derive(context.Background(), "mem-1", mar10)
	require.NoError(t, err)

	assert.Equal(t, attendance.StatusHoliday, res.Status)
	assert.Equal(t, attendance.SourceHoliday, res.Source)
	assert.Equal(t, 0.0, res.HoursWorked)
	assert.Nil(t, res.Exception)
}

// =============================================================================
// DATA QUALITY - exceptions, never errors
// =============================================================================

func TestDerive_NoEvents_MissingData(t *testing.T) {
	// GIVEN: No swipes at all
	// WHEN: Deriving
	// THEN: PENDING_EXCEPTION with MISSING_DATA, and no error

	f := newDeriverFixture(t)

	res, err := f.deriver.Derive(context.Background(), "mem-1", mar10)
	require.NoError(t, err)

	assert.Equal(t, attendance.StatusPendingException, res.Status)
	require.NotNil(t, res.Exception)
	assert.Equal(t, attendance.ExceptionMissingData, res.Exception.Type)
}

func TestDerive_ConsecutiveINs_Inconsistent(t *testing.T) {
	// GIVEN: IN at 09:00 then IN again at 10:00
	// WHEN: Deriving
	// THEN: INCONSISTENT_LOGS, zero hours, first-in preserved for review

	f := newDeriverFixture(t)
	f.swipe(t, "bio-1", attendance.EventIn, mar(10, 9, 0))
	f.swipe(t, "bio-1", attendance.EventIn, mar(10, 10, 0))

	res, err := f.deriver.Derive(context.Background(), "mem-1", mar10)
	require.NoError(t, err)

	assert.Equal(t, attendance.StatusPendingException, res.Status)
	require.NotNil(t, res.Exception)
	assert.Equal(t, attendance.ExceptionInconsistentLogs, res.Exception.Type)
	assert.Equal(t, "Consecutive IN events detected without OUT", res.Exception.Description)
	assert.Equal(t, 0.0, res.HoursWorked)
	require.NotNil(t, res.FirstIn)
	assert.Equal(t, mar(10, 9, 0), *res.FirstIn)
}

func TestDerive_OutBeforeIn_Inconsistent(t *testing.T) {
	// GIVEN: The day starts with an OUT
	// WHEN: Deriving
	// THEN: INCONSISTENT_LOGS

	f := newDeriverFixture(t)
	f.swipe(t, "bio-1", attendance.EventOut, mar(10, 9, 0))

	res, err := f.deriver.Derive(context.Background(), "mem-1", mar10)
	require.NoError(t, err)

	require.NotNil(t, res.Exception)
	assert.Equal(t, attendance.ExceptionInconsistentLogs, res.Exception.Type)
	assert.Equal(t, "OUT event before IN event", res.Exception.Description)
}

func TestDerive_UnknownEvents_Ignored(t *testing.T) {
	// GIVEN: An UNKNOWN swipe between a clean IN/OUT pair
	// WHEN: Deriving
	// THEN: UNKNOWN contributes nothing and breaks nothing

	f := newDeriverFixture(t)
	f.swipe(t, "bio-1", attendance.EventIn, mar(10, 9, 0))
	f.swipe(t, "bio-1", attendance.EventUnknown, mar(10, 12, 0))
	f.swipe(t, "bio-1", attendance.EventOut, mar(10, 17, 30))

	res, err := f.deriver.Derive(context.Background(), "mem-1", mar10)
	require.NoError(t, err)

	assert.Nil(t, res.Exception)
	assert.Equal(t, 8.5, res.HoursWorked)
}

func TestDerive_OpenInNearMidnight_Inconsistent(t *testing.T) {
	// GIVEN: An unmatched IN at 23:30 (under an hour to end of day)
	// WHEN: Deriving
	// THEN: Too little remains to credit; flagged instead

	f := newDeriverFixture(t)
	f.swipe(t, "bio-1", attendance.EventIn, mar(10, 23, 30))

	res, err := f.deriver.Derive(context.Background(), "mem-1", mar10)
	require.NoError(t, err)

	require.NotNil(t, res.Exception)
	assert.Equal(t, attendance.ExceptionInconsistentLogs, res.Exception.Type)
	assert.Equal(t, "IN event near end of day without matching OUT", res.Exception.Description)
}

func TestDerive_OpenInEarlier_CreditedToEndOfDay(t *testing.T) {
	// GIVEN: IN at 20:00 with no OUT
	// WHEN: Deriving
	// THEN: Credited until 23:59:59.999, roughly 4 hours

	f := newDeriverFixture(t)
	f.swipe(t, "bio-1", attendance.EventIn, mar(10, 20, 0))

	res, err := f.deriver.Derive(context.Background(), "mem-1", mar10)
	require.NoError(t, err)

	assert.Nil(t, res.Exception)
	assert.Equal(t, attendance.StatusHalfDay, res.Status)
	assert.Equal(t, 4.0, res.HoursWorked)
	require.NotNil(t, res.LastOut)
	assert.Equal(t, mar10.EndOfDay(), *res.LastOut)
}

func TestDerive_UnknownMember_Errors(t *testing.T) {
	// GIVEN: A member ID the roster has never seen
	// WHEN: Deriving
	// THEN: The one true error case

	f := newDeriverFixture(t)

	_, err := f.deriver.Derive(context.Background(), "ghost", mar10)
	assert.ErrorIs(t, err, attendance.ErrMemberNotFound)
}

// =============================================================================
// PERSISTED DERIVATION
// =============================================================================

func TestDeriveAndStore_WritesRecordAndException(t *testing.T) {
	// GIVEN: A day with no events
	// WHEN: DeriveAndStore
	// THEN: Record stored as PENDING_EXCEPTION with a linked pending exception

	f := newDeriverFixture(t)
	ctx := context.Background()

	stored, err := f.deriver.DeriveAndStore(ctx, "mem-1", mar10)
	require.NoError(t, err)
	assert.True(t, stored)

	rec, err := f.store.GetRecord(ctx, "mem-1", mar10)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusPendingException, rec.Status)

	pending, err := f.store.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, rec.ID, pending[0].RecordID)
	assert.Equal(t, attendance.ExceptionMissingData, pending[0].Type)
}

func TestDeriveAndStore_Idempotent(t *testing.T) {
	// GIVEN: A clean day derived twice
	// WHEN: Re-deriving
	// THEN: Same record ID, same classification, still exactly one record

	f := newDeriverFixture(t)
	ctx := context.Background()
	f.swipe(t, "bio-1", attendance.EventIn, mar(10, 9, 0))
	f.swipe(t, "bio-1", attendance.EventOut, mar(10, 17, 30))

	_, err := f.deriver.DeriveAndStore(ctx, "mem-1", mar10)
	require.NoError(t, err)
	first, err := f.store.GetRecord(ctx, "mem-1", mar10)
	require.NoError(t, err)

	_, err = f.deriver.DeriveAndStore(ctx, "mem-1", mar10)
	require.NoError(t, err)
	second, err := f.store.GetRecord(ctx, "mem-1", mar10)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Status, second.Status)
	assert.Equal(t, first.HoursWorked, second.HoursWorked)
}

func TestDeriveAndStore_CleanRederivation_ClearsPendingException(t *testing.T) {
	// GIVEN: A day first derived with no events (MISSING_DATA), then the
	//        missing swipes arrive
	// WHEN: Re-deriving
	// THEN: The pending exception disappears with the bad data

	f := newDeriverFixture(t)
	ctx := context.Background()

	_, err := f.deriver.DeriveAndStore(ctx, "mem-1", mar10)
	require.NoError(t, err)
	pending, _ := f.store.ListPending(ctx)
	require.Len(t, pending, 1)

	f.swipe(t, "bio-1", attendance.EventIn, mar(10, 9, 0))
	f.swipe(t, "bio-1", attendance.EventOut, mar(10, 17, 30))

	_, err = f.deriver.DeriveAndStore(ctx, "mem-1", mar10)
	require.NoError(t, err)

	pending, _ = f.store.ListPending(ctx)
	assert.Empty(t, pending)

	rec, err := f.store.GetRecord(ctx, "mem-1", mar10)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusFullDay, rec.Status)
}

func TestDeriveAndStore_FrozenRecord_SkippedWithoutError(t *testing.T) {
	// GIVEN: A derived day inside a frozen month
	// WHEN: Re-deriving after new events arrive
	// THEN: The frozen record is untouched, no error

	f := newDeriverFixture(t)
	ctx := context.Background()
	f.swipe(t, "bio-1", attendance.EventIn, mar(10, 9, 0))
	f.swipe(t, "bio-1", attendance.EventOut, mar(10, 17, 30))

	_, err := f.deriver.DeriveAndStore(ctx, "mem-1", mar10)
	require.NoError(t, err)

	from, to := attendance.MonthRange(2025, time.March)
	require.NoError(t, f.store.CreateFreeze(ctx, attendance.Freeze{
		MemberID: "mem-1", Year: 2025, Month: time.March, FrozenBy: "admin",
	}, from, to))

	f.swipe(t, "bio-1", attendance.EventIn, mar(10, 19, 0))
	f.swipe(t, "bio-1", attendance.EventOut, mar(10, 21, 0))

	stored, err := f.deriver.DeriveAndStore(ctx, "mem-1", mar10)
	require.NoError(t, err)
	assert.False(t, stored)

	rec, err := f.store.GetRecord(ctx, "mem-1", mar10)
	require.NoError(t, err)
	assert.Equal(t, 8.5, rec.HoursWorked)
}

// =============================================================================
// BATCH DERIVATION
// =============================================================================

func TestDeriveForDate_PerMemberFailureIsolation(t *testing.T) {
	// GIVEN: Two active members; one's holiday lookup can't fail, but a
	//        member with clean data and a member with no data coexist
	// WHEN: Deriving the whole date
	// THEN: Both are processed; bad data is a success (exception), not a failure

	f := newDeriverFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.SaveMember(ctx, attendance.Member{
		ID: "mem-2", Name: "Ravi", BiometricID: "bio-2", Active: true,
	}))

	f.swipe(t, "bio-1", attendance.EventIn, mar(10, 9, 0))
	f.swipe(t, "bio-1", attendance.EventOut, mar(10, 17, 30))
	// mem-2 has no swipes at all

	res, err := f.deriver.DeriveForDate(ctx, mar10)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 2, res.Succeeded)
	assert.Equal(t, 0, res.Failed)

	rec2, err := f.store.GetRecord(ctx, "mem-2", mar10)
	require.NoError(t, err)
	assert.Equal(t, attendance.StatusPendingException, rec2.Status)
}

func TestDeriveRange_RejectsInvertedRange(t *testing.T) {
	// GIVEN: from after to
	// WHEN: DeriveRange
	// THEN: Error before any work happens

	f := newDeriverFixture(t)

	_, err := f.deriver.DeriveRange(context.Background(), "mem-1", mar10, mar10.AddDays(-1))
	assert.Error(t, err)
}
