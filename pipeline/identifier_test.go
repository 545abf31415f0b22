package pipeline

import (
	"strings"
	"testing"
	"time"

	"go.viam.com/test"
)

func TestIdentifiersFormat(t *testing.T) {
	var ids identifiers
	now := time.Date(2024, 3, 9, 14, 5, 7, 123*int(time.Millisecond), time.UTC)

	test.That(t, ids.next(now), test.ShouldEqual, "20240309-140507.123-000001")
	test.That(t, ids.next(now), test.ShouldEqual, "20240309-140507.123-000002")
}

func TestIdentifiersNeverGoBackwards(t *testing.T) {
	var ids identifiers
	now := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)

	first := ids.next(now)
	second := ids.next(now.Add(-time.Hour))
	third := ids.next(now.Add(time.Second))

	test.That(t, strings.HasPrefix(second, "20240309-140507.000"), test.ShouldBeTrue)
	test.That(t, first < second, test.ShouldBeTrue)
	test.That(t, second < third, test.ShouldBeTrue)
}

func TestIdentifiersUseUTC(t *testing.T) {
	var ids identifiers
	zone := time.FixedZone("UTC+2", 2*60*60)
	now := time.Date(2024, 3, 9, 16, 0, 0, 0, zone)

	test.That(t, ids.next(now), test.ShouldStartWith, "20240309-140000.000")
}
