package blend

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"go.viam.com/test"

	"go.viam.com/projmap/structuredlight"
	"go.viam.com/projmap/utils"
)

// coverage maps the camera columns [from, to) for a w x h camera.
func coverage(w, h, from, to int) *structuredlight.CorrespondenceMap {
	m := structuredlight.NewCorrespondenceMap(w, h)
	for y := 0; y < h; y++ {
		for x := from; x < to; x++ {
			m.Set(x, y, x, y)
		}
	}
	return m
}

func flatWhite(w, h int, v uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

func TestContributionsSplitByBrightness(t *testing.T) {
	members := []Member{
		{Correspondence: coverage(10, 4, 0, 7), White: flatWhite(10, 4, 200)},
		{Correspondence: coverage(10, 4, 4, 10), White: flatWhite(10, 4, 100)},
	}
	maps, err := ComputeContributions(context.Background(), members, Config{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(maps), test.ShouldEqual, 2)

	for y := 0; y < 4; y++ {
		for x := 0; x < 10; x++ {
			a, b := float64(maps[0].At(x, y)), float64(maps[1].At(x, y))
			switch {
			case x < 4:
				test.That(t, a, test.ShouldEqual, 1.0)
				test.That(t, b, test.ShouldEqual, 0.0)
			case x < 7:
				test.That(t, a, test.ShouldAlmostEqual, 2.0/3, 1e-4)
				test.That(t, b, test.ShouldAlmostEqual, 1.0/3, 1e-4)
			default:
				test.That(t, a, test.ShouldEqual, 0.0)
				test.That(t, b, test.ShouldEqual, 1.0)
			}
			test.That(t, a+b, test.ShouldAlmostEqual, 1.0, 1e-4)
		}
	}
}

func TestContributionsSingleProjector(t *testing.T) {
	corr := coverage(5, 5, 0, 3)
	maps, err := ComputeContributions(context.Background(),
		[]Member{{Correspondence: corr, White: flatWhite(5, 5, 30)}}, Config{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, maps[0].At(2, 2), test.ShouldEqual, float32(1))
	test.That(t, maps[0].At(3, 2), test.ShouldEqual, float32(0))
	test.That(t, maps[0].At(-1, 2), test.ShouldEqual, float32(0))
}

func TestContributionsDarkPixels(t *testing.T) {
	white := flatWhite(3, 1, 50)
	white.SetGray(1, 0, color.Gray{0})
	maps, err := ComputeContributions(context.Background(), []Member{
		{Correspondence: coverage(3, 1, 0, 3), White: white},
		{Correspondence: coverage(3, 1, 0, 3), White: flatWhite(3, 1, 0)},
	}, Config{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, maps[0].At(1, 0), test.ShouldEqual, float32(0))
	test.That(t, maps[1].At(1, 0), test.ShouldEqual, float32(0))
	test.That(t, maps[0].At(0, 0), test.ShouldEqual, float32(1))
}

func TestContributionsLinearized(t *testing.T) {
	members := []Member{
		{Correspondence: coverage(2, 2, 0, 2), White: flatWhite(2, 2, 255)},
		{Correspondence: coverage(2, 2, 0, 2), White: flatWhite(2, 2, 128)},
	}
	raw, err := ComputeContributions(context.Background(), members, Config{})
	test.That(t, err, test.ShouldBeNil)
	linear, err := ComputeContributions(context.Background(), members, Config{Linearize: true})
	test.That(t, err, test.ShouldBeNil)

	// in linear light the dimmer projector carries far less than its 8-bit value suggests
	test.That(t, linear[0].At(0, 0), test.ShouldBeGreaterThan, raw[0].At(0, 0))
	test.That(t, float64(linear[0].At(0, 0)), test.ShouldAlmostEqual, 0.8225, 1e-3)
	test.That(t, float64(linear[0].At(1, 1)+linear[1].At(1, 1)), test.ShouldAlmostEqual, 1.0, 1e-4)
}

func TestContributionsErrors(t *testing.T) {
	_, err := ComputeContributions(context.Background(), nil, Config{})
	test.That(t, errors.Is(err, utils.ErrInsufficientData), test.ShouldBeTrue)

	_, err = ComputeContributions(context.Background(), []Member{
		{Correspondence: coverage(4, 4, 0, 4), White: flatWhite(4, 4, 9)},
		{Correspondence: coverage(5, 4, 0, 4), White: flatWhite(5, 4, 9)},
	}, Config{})
	test.That(t, errors.Is(err, utils.ErrConfigurationMismatch), test.ShouldBeTrue)

	_, err = ComputeContributions(context.Background(), []Member{
		{Correspondence: coverage(4, 4, 0, 4), White: flatWhite(3, 4, 9)},
	}, Config{})
	test.That(t, errors.Is(err, utils.ErrConfigurationMismatch), test.ShouldBeTrue)

	_, err = ComputeContributions(context.Background(), []Member{
		{Correspondence: coverage(4, 4, 0, 4)},
	}, Config{})
	test.That(t, errors.Is(err, utils.ErrConfigurationMismatch), test.ShouldBeTrue)

	_, err = ComputeContributions(context.Background(), []Member{{White: flatWhite(4, 4, 9)}}, Config{})
	test.That(t, errors.Is(err, utils.ErrConfigurationMismatch), test.ShouldBeTrue)
}

func TestContributionMapImageRoundTrip(t *testing.T) {
	c := NewContributionMap(2, 1)
	c.Set(0, 0, 1)
	c.Set(1, 0, 0.5)
	g := c.ToGray16()
	test.That(t, g.Gray16At(0, 0).Y, test.ShouldEqual, uint16(0xffff))
	back := FromImage(g)
	test.That(t, back.At(0, 0), test.ShouldEqual, float32(1))
	test.That(t, float64(back.At(1, 0)), test.ShouldAlmostEqual, 0.5, 1e-5)

	// an 8-bit map still loads
	gray := image.NewGray(image.Rect(0, 0, 1, 1))
	gray.Pix[0] = 255
	test.That(t, FromImage(gray).At(0, 0), test.ShouldEqual, float32(1))
}

func TestContributionWeightsSumToOneAfterRoundTrip(t *testing.T) {
	members := []Member{
		{Correspondence: coverage(6, 1, 0, 6), White: flatWhite(6, 1, 200)},
		{Correspondence: coverage(6, 1, 0, 6), White: flatWhite(6, 1, 77)},
		{Correspondence: coverage(6, 1, 0, 6), White: flatWhite(6, 1, 31)},
	}
	maps, err := ComputeContributions(context.Background(), members, Config{})
	test.That(t, err, test.ShouldBeNil)
	back := make([]*ContributionMap, len(maps))
	for i, m := range maps {
		back[i] = FromImage(m.ToGray16())
	}
	for x := 0; x < 6; x++ {
		var sum float64
		for _, m := range back {
			sum += float64(m.At(x, 0))
		}
		test.That(t, sum, test.ShouldAlmostEqual, 1, 1e-4)
	}
}
