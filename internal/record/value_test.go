package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewText_NormalizesNFC(t *testing.T) {
	// U+0065 U+0301 (e + combining acute) normalizes to U+00E9.
	decomposed := NewText("café")
	composed := NewText("café")

	assert.Equal(t, composed, decomposed)
	assert.True(t, Equal(decomposed, composed))
}

func TestNewDecimal_Canonicalizes(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"0", "0"},
		{"007", "7"},
		{"1.500", "1.5"},
		{"1.000", "1"},
		{"-0", "0"},
		{"-0.0", "0"},
		{"+3.25", "3.25"},
		{".5", "0.5"},
		{"-12.340", "-12.34"},
	}
	for _, tc := range cases {
		d, err := NewDecimal(tc.in)
		require.NoError(t, err, tc.in)
		assert.Equal(t, Decimal(tc.want), d, tc.in)
	}
}

func TestNewDecimal_RejectsMalformed(t *testing.T) {
	for _, in := range []string{"", "abc", "1.2.3", "1,5", "-", "."} {
		_, err := NewDecimal(in)
		assert.Error(t, err, in)
	}
}

func TestEqual_CrossTypeNeverEqual(t *testing.T) {
	assert.False(t, Equal(Int(1), Text("1")))
	assert.False(t, Equal(Bool(true), Int(1)))
	assert.False(t, Equal(Null{}, Text("")))
}

func TestEqual_TimeByInstant(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*3600)
	a := NewTime(time.Date(2024, 6, 1, 12, 0, 0, 0, loc))
	b := NewTime(time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC))

	assert.True(t, Equal(a, b))
}

func TestIsZero(t *testing.T) {
	assert.True(t, IsZero(Null{}))
	assert.True(t, IsZero(Text("")))
	assert.True(t, IsZero(Int(0)))
	assert.True(t, IsZero(Decimal("0")))
	assert.True(t, IsZero(Bool(false)))
	assert.True(t, IsZero(Time(time.Time{})))

	assert.False(t, IsZero(Text("x")))
	assert.False(t, IsZero(Int(-1)))
	assert.False(t, IsZero(Decimal("0.1")))
}

func TestToParam_FromScan_RoundTrip(t *testing.T) {
	ts := NewTime(time.Date(2024, 3, 9, 8, 15, 30, 123456789, time.UTC))

	cases := []struct {
		ft FieldType
		v  Value
	}{
		{TypeText, NewText("hello")},
		{TypeInt, Int(42)},
		{TypeDecimal, MustDecimal("19.99")},
		{TypeBool, Bool(true)},
		{TypeBytes, NewBytes([]byte{0x01, 0x02})},
		{TypeTime, ts},
	}
	for _, tc := range cases {
		param, err := ToParam(tc.v)
		require.NoError(t, err)

		// Bools come back from SQLite as integers.
		if tc.ft == TypeBool {
			param = int64(1)
		}

		got, err := FromScan(tc.ft, param)
		require.NoError(t, err)
		assert.True(t, Equal(tc.v, got), "%s: %v != %v", tc.ft, tc.v, got)
	}
}

func TestFromScan_DecimalFromFloatKeepsAllDigits(t *testing.T) {
	cases := []struct {
		raw  float64
		want Decimal
	}{
		{0.1, MustDecimal("0.1")},
		{19.99, MustDecimal("19.99")},
		{0.000000000123456, MustDecimal("0.000000000123456")},
		{-2.5000000000001, MustDecimal("-2.5000000000001")},
		{3, MustDecimal("3")},
	}
	for _, tc := range cases {
		got, err := FromScan(TypeDecimal, tc.raw)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%v", tc.raw)
	}
}

func TestFromScan_NullAlwaysAllowed(t *testing.T) {
	for ft := range ValidFieldTypes {
		v, err := FromScan(ft, nil)
		require.NoError(t, err)
		assert.Equal(t, Null{}, v)
	}
}

func TestFromScan_RejectsMismatch(t *testing.T) {
	_, err := FromScan(TypeInt, "not a number")
	assert.Error(t, err)

	_, err = FromScan(TypeTime, "not a timestamp")
	assert.Error(t, err)
}
