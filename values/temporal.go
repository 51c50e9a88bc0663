package values

import (
	"errors"
	"fmt"

	"github.com/wudi/monty/heap"
)

// Exact semantics below follow _examples/original_source's
// crates/monty/src/types/{timedelta,timezone}.rs bound-for-bound; Date and
// DateTime are derived the same way CPython derives them from the same
// proleptic-Gregorian civil calendar, since the original's date.rs/
// datetime.rs were not available to read in full but spec §4.3.1 is
// explicit about the representation.

const (
	minTimedeltaDays = -999999999
	maxTimedeltaDays = 999999999
)

var (
	ErrOverflow     = errors.New("values: timedelta overflow")
	ErrTZOffsetOOB  = errors.New("values: timezone offset out of bounds")
	ErrDateOverflow = errors.New("values: date overflow")
)

// TimeDelta stores the canonical (days, seconds, microseconds) form: the
// one representation every Python-level operation derives from (spec
// §4.3.1). seconds is always in [0, 86400), microseconds in [0, 1e6).
type TimeDelta struct {
	Days, Seconds, Microseconds int64
}

const microsPerSecond = 1_000_000
const microsPerDay = 86_400 * microsPerSecond

// NewTimeDelta builds and normalizes a TimeDelta from (possibly
// out-of-range-per-field) components, the way the constructor
// `timedelta(days=.., seconds=.., microseconds=..)` does internally after
// resolving weeks/minutes/hours/milliseconds to the three canonical units.
func NewTimeDelta(days, seconds, microseconds int64) (*TimeDelta, error) {
	total := days*microsPerDay + seconds*microsPerSecond + microseconds
	return fromTotalMicroseconds(total)
}

func fromTotalMicroseconds(total int64) (*TimeDelta, error) {
	days := floorDiv(total, microsPerDay)
	rem := total - days*microsPerDay
	seconds := floorDiv(rem, microsPerSecond)
	micros := rem - seconds*microsPerSecond
	if days < minTimedeltaDays || days > maxTimedeltaDays {
		return nil, ErrOverflow
	}
	return &TimeDelta{Days: days, Seconds: seconds, Microseconds: micros}, nil
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func (t *TimeDelta) totalMicroseconds() int64 {
	return t.Days*microsPerDay + t.Seconds*microsPerSecond + t.Microseconds
}

// TotalSeconds is timedelta.total_seconds(), a supplemented method
// original_source implements that spec.md's distillation text omits (see
// DESIGN.md).
func (t *TimeDelta) TotalSeconds() float64 {
	return float64(t.totalMicroseconds()) / float64(microsPerSecond)
}

// Add returns t+o, or ErrOverflow if the normalized day bound is exceeded
// (matches original's "Ok(None) on overflow" by letting the caller decide
// whether that's a TypeError-unsupported or a real OverflowError — Monty's
// VM layer treats TimeDelta+TimeDelta overflow as OverflowError, since
// unlike cross-type dispatch this is same-type and always "supported").
func (t *TimeDelta) Add(o *TimeDelta) (*TimeDelta, error) {
	return fromTotalMicroseconds(t.totalMicroseconds() + o.totalMicroseconds())
}

func (t *TimeDelta) Sub(o *TimeDelta) (*TimeDelta, error) {
	return fromTotalMicroseconds(t.totalMicroseconds() - o.totalMicroseconds())
}

func (t *TimeDelta) PyType() TypeTag                          { return TypeTimeDelta }
func (t *TimeDelta) Len() (int, bool)                         { return 0, false }
func (t *TimeDelta) Bool(h *heap.Heap) bool                   { return t.totalMicroseconds() != 0 }
func (t *TimeDelta) ChildIDs(dst []heap.HeapID) []heap.HeapID { return dst }
func (t *TimeDelta) EstimateSize() int                        { return 24 }

func (t *TimeDelta) Repr(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	if t.Days == 0 && t.Seconds == 0 && t.Microseconds == 0 {
		return append(dst, "datetime.timedelta(0)"...)
	}
	parts := []string{}
	if t.Days != 0 {
		parts = append(parts, fmt.Sprintf("days=%d", t.Days))
	}
	if t.Seconds != 0 {
		parts = append(parts, fmt.Sprintf("seconds=%d", t.Seconds))
	}
	if t.Microseconds != 0 {
		parts = append(parts, fmt.Sprintf("microseconds=%d", t.Microseconds))
	}
	out := "datetime.timedelta("
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	out += ")"
	return append(dst, out...)
}

func (t *TimeDelta) Str(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	hh := t.Seconds / 3600
	mm := (t.Seconds % 3600) / 60
	ss := t.Seconds % 60
	s := fmt.Sprintf("%d:%02d:%02d", hh, mm, ss)
	if t.Microseconds != 0 {
		s += fmt.Sprintf(".%06d", t.Microseconds)
	}
	if t.Days != 0 {
		unit := "day"
		if t.Days != 1 && t.Days != -1 {
			unit = "days"
		}
		s = fmt.Sprintf("%d %s, %s", t.Days, unit, s)
	}
	return append(dst, s...)
}

// TimeZone is a fixed UTC offset (spec §4.3.1); equality/hash compare
// offset only, matching CPython.
type TimeZone struct {
	OffsetSeconds int64
	Name          string // "" means "no display name" (format on demand)
	HasName       bool
}

const maxTZOffsetSeconds = 86399

// UTC is the canonical zero-offset timezone singleton content (a fresh
// *TimeZone equal to this one compares equal by offset, per CPython).
var UTC = TimeZone{OffsetSeconds: 0}

// NewTimeZone validates the strict CPython bound: |offset| < 24h.
func NewTimeZone(offsetSeconds int64, name string, hasName bool) (*TimeZone, error) {
	if offsetSeconds <= -86400 || offsetSeconds >= 86400 {
		return nil, ErrTZOffsetOOB
	}
	if offsetSeconds < -maxTZOffsetSeconds || offsetSeconds > maxTZOffsetSeconds {
		return nil, ErrTZOffsetOOB
	}
	return &TimeZone{OffsetSeconds: offsetSeconds, Name: name, HasName: hasName}, nil
}

func (z *TimeZone) PyType() TypeTag                          { return TypeTimeZone }
func (z *TimeZone) Len() (int, bool)                         { return 0, false }
func (z *TimeZone) Bool(h *heap.Heap) bool                   { return true }
func (z *TimeZone) ChildIDs(dst []heap.HeapID) []heap.HeapID { return dst }
func (z *TimeZone) EstimateSize() int                        { return 24 + len(z.Name) }

func (z *TimeZone) formatOffset() string {
	sign := byte('+')
	off := z.OffsetSeconds
	if off < 0 {
		sign = '-'
		off = -off
	}
	hh := off / 3600
	mm := (off % 3600) / 60
	return fmt.Sprintf("%c%02d:%02d", sign, hh, mm)
}

func (z *TimeZone) Repr(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	if z.OffsetSeconds == 0 && !z.HasName {
		return append(dst, "datetime.timezone.utc"...)
	}
	s := fmt.Sprintf("datetime.timezone(datetime.timedelta(seconds=%d)", z.OffsetSeconds)
	if z.HasName {
		s += ", " + pyStringRepr(z.Name)
	}
	s += ")"
	return append(dst, s...)
}

func (z *TimeZone) Str(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	if z.HasName {
		return append(dst, z.Name...)
	}
	if z.OffsetSeconds == 0 {
		return append(dst, "UTC"...)
	}
	return append(dst, ("UTC" + z.formatOffset())...)
}

// Date is a proleptic-Gregorian civil date; Ordinal maps it to a day
// number (spec §4.3.1: 1 == 0001-01-01).
type Date struct {
	Year, Month, Day int
}

var daysInMonthTable = [13]int{0, 31, 28, 31, 30, 31, 30, 31, 31, 30, 31, 30, 31}

func isLeap(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}

func daysInMonth(y, m int) int {
	if m == 2 && isLeap(y) {
		return 29
	}
	return daysInMonthTable[m]
}

// NewDate validates year/month/day against the civil calendar table.
func NewDate(year, month, day int) (*Date, error) {
	if year < 1 || year > 9999 {
		return nil, fmt.Errorf("values: year %d out of range [1, 9999]", year)
	}
	if month < 1 || month > 12 {
		return nil, fmt.Errorf("values: month must be in 1..12")
	}
	if day < 1 || day > daysInMonth(year, month) {
		return nil, fmt.Errorf("values: day is out of range for month")
	}
	return &Date{Year: year, Month: month, Day: day}, nil
}

// Ordinal returns the proleptic Gregorian ordinal (0001-01-01 == 1).
func (d *Date) Ordinal() int64 {
	y := d.Year - 1
	days := int64(y)*365 + int64(y/4) - int64(y/100) + int64(y/400)
	for m := 1; m < d.Month; m++ {
		days += int64(daysInMonth(d.Year, m))
	}
	return days + int64(d.Day)
}

// DateFromOrdinal is the inverse of Ordinal.
func DateFromOrdinal(ord int64) *Date {
	year := 1
	for {
		daysInYear := int64(365)
		if isLeap(year) {
			daysInYear = 366
		}
		if ord <= daysInYear {
			break
		}
		ord -= daysInYear
		year++
	}
	month := 1
	for {
		dim := int64(daysInMonth(year, month))
		if ord <= dim {
			break
		}
		ord -= dim
		month++
	}
	return &Date{Year: year, Month: month, Day: int(ord)}
}

// maxDateOrdinal is datetime.date.max's ordinal (spec §4.3.1: years 1..9999).
var maxDateOrdinal = (&Date{Year: 9999, Month: 12, Day: 31}).Ordinal()

// dateFromOrdinalChecked is DateFromOrdinal with the civil-calendar bound
// enforced; DateFromOrdinal itself trusts the caller and produces garbage
// for ord outside [1, maxDateOrdinal], which date/timedelta arithmetic must
// not let through as a silently-wrong Date.
func dateFromOrdinalChecked(ord int64) (*Date, error) {
	if ord < 1 || ord > maxDateOrdinal {
		return nil, ErrDateOverflow
	}
	return DateFromOrdinal(ord), nil
}

// AddDays returns date + n days (the `timedelta.days`-only part of
// `date + timedelta`, spec §4.3.1 scenario 5), or ErrDateOverflow past
// datetime.date's [0001-01-01, 9999-12-31] range.
func (d *Date) AddDays(days int64) (*Date, error) {
	return dateFromOrdinalChecked(d.Ordinal() + days)
}

// SubDays returns date - n days.
func (d *Date) SubDays(days int64) (*Date, error) {
	return dateFromOrdinalChecked(d.Ordinal() - days)
}

// SubDate implements `date - date`, always representable as a TimeDelta
// since the widest possible ordinal span is far inside TimeDelta's day
// bound.
func SubDate(a, b *Date) *TimeDelta {
	td, _ := fromTotalMicroseconds((a.Ordinal() - b.Ordinal()) * microsPerDay)
	return td
}

func (d *Date) PyType() TypeTag                          { return TypeDate }
func (d *Date) Len() (int, bool)                         { return 0, false }
func (d *Date) Bool(h *heap.Heap) bool                   { return true }
func (d *Date) ChildIDs(dst []heap.HeapID) []heap.HeapID { return dst }
func (d *Date) EstimateSize() int                        { return 16 }

func (d *Date) Repr(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return append(dst, fmt.Sprintf("datetime.date(%d, %d, %d)", d.Year, d.Month, d.Day)...)
}
func (d *Date) Str(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	return append(dst, fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)...)
}

// DateTime is a naive civil datetime, optionally paired with a fixed UTC
// offset (spec §4.3.1). Aware and naive datetimes are never comparable:
// Cmp reports such a pair as unordered.
type DateTime struct {
	Year, Month, Day, Hour, Minute, Second, Microsecond int
	OffsetSeconds                                       int64
	HasOffset                                           bool
	TZName                                              string
}

func (d *DateTime) Aware() bool { return d.HasOffset }

func dateTimeEq(a, b *DateTime) bool {
	if a.Aware() != b.Aware() {
		return false
	}
	au, bu := a.utcMicros(), b.utcMicros()
	return au == bu
}

// utcMicros converts to a UTC-normalized microsecond count for
// aware-to-aware comparison; naive datetimes compare their civil fields
// directly as if offset were zero (callers never mix the two — Eq already
// refuses cross-awareness comparisons above in dateTimeEq).
func (d *DateTime) utcMicros() int64 {
	dt := &Date{Year: d.Year, Month: d.Month, Day: d.Day}
	days := dt.Ordinal()
	micros := ((int64(d.Hour)*60+int64(d.Minute))*60+int64(d.Second))*microsPerSecond + int64(d.Microsecond)
	total := days*microsPerDay + micros
	if d.HasOffset {
		total -= d.OffsetSeconds * microsPerSecond
	}
	return total
}

// localMicros converts the civil fields to a microsecond count with no
// offset adjustment — the basis for datetime+timedelta arithmetic, which
// (per CPython) operates on the naive wall-clock fields and leaves
// tzinfo untouched, unlike utcMicros's instant-comparison normalization.
func (d *DateTime) localMicros() int64 {
	dt := &Date{Year: d.Year, Month: d.Month, Day: d.Day}
	days := dt.Ordinal()
	micros := ((int64(d.Hour)*60+int64(d.Minute))*60+int64(d.Second))*microsPerSecond + int64(d.Microsecond)
	return days*microsPerDay + micros
}

// dateTimeFromTotalMicros is the inverse of localMicros, reattaching the
// given awareness/offset/name unchanged.
func dateTimeFromTotalMicros(total int64, hasOffset bool, offsetSeconds int64, tzName string) (*DateTime, error) {
	days := floorDiv(total, microsPerDay)
	rem := total - days*microsPerDay
	date, err := dateFromOrdinalChecked(days)
	if err != nil {
		return nil, err
	}
	hour := rem / (3600 * microsPerSecond)
	rem -= hour * 3600 * microsPerSecond
	minute := rem / (60 * microsPerSecond)
	rem -= minute * 60 * microsPerSecond
	second := rem / microsPerSecond
	micro := rem - second*microsPerSecond
	return &DateTime{
		Year: date.Year, Month: date.Month, Day: date.Day,
		Hour: int(hour), Minute: int(minute), Second: int(second), Microsecond: int(micro),
		OffsetSeconds: offsetSeconds, HasOffset: hasOffset, TZName: tzName,
	}, nil
}

// AddTimeDelta implements `datetime + timedelta`: tzinfo is carried over
// unchanged, matching CPython's datetime.__add__.
func (d *DateTime) AddTimeDelta(td *TimeDelta) (*DateTime, error) {
	return dateTimeFromTotalMicros(d.localMicros()+td.totalMicroseconds(), d.HasOffset, d.OffsetSeconds, d.TZName)
}

// SubTimeDelta implements `datetime - timedelta`.
func (d *DateTime) SubTimeDelta(td *TimeDelta) (*DateTime, error) {
	return dateTimeFromTotalMicros(d.localMicros()-td.totalMicroseconds(), d.HasOffset, d.OffsetSeconds, d.TZName)
}

func (d *DateTime) PyType() TypeTag                          { return TypeDateTime }
func (d *DateTime) Len() (int, bool)                         { return 0, false }
func (d *DateTime) Bool(h *heap.Heap) bool                   { return true }
func (d *DateTime) ChildIDs(dst []heap.HeapID) []heap.HeapID { return dst }
func (d *DateTime) EstimateSize() int                        { return 48 + len(d.TZName) }

func (d *DateTime) Repr(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	s := fmt.Sprintf("datetime.datetime(%d, %d, %d, %d, %d", d.Year, d.Month, d.Day, d.Hour, d.Minute)
	if d.Second != 0 || d.Microsecond != 0 {
		s += fmt.Sprintf(", %d", d.Second)
		if d.Microsecond != 0 {
			s += fmt.Sprintf(", %d", d.Microsecond)
		}
	}
	if d.HasOffset {
		s += fmt.Sprintf(", tzinfo=datetime.timezone(datetime.timedelta(seconds=%d))", d.OffsetSeconds)
	}
	s += ")"
	return append(dst, s...)
}

func (d *DateTime) Str(h *heap.Heap, dst []byte, visited map[heap.HeapID]bool, depthGuard int) []byte {
	s := fmt.Sprintf("%04d-%02d-%02d %02d:%02d:%02d", d.Year, d.Month, d.Day, d.Hour, d.Minute, d.Second)
	if d.Microsecond != 0 {
		s += fmt.Sprintf(".%06d", d.Microsecond)
	}
	if d.HasOffset {
		tz := TimeZone{OffsetSeconds: d.OffsetSeconds}
		s += tz.formatOffset()
	}
	return append(dst, s...)
}

// SubDateTime implements `datetime - datetime`, requiring both operands
// share awareness (spec §4.3.1's load-bearing rule).
func SubDateTime(a, b *DateTime) (*TimeDelta, error) {
	if a.Aware() != b.Aware() {
		return nil, errors.New("can't subtract offset-naive and offset-aware datetimes")
	}
	return fromTotalMicroseconds(a.utcMicros() - b.utcMicros())
}
