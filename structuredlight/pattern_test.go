package structuredlight

import (
	"testing"

	"go.viam.com/test"
)

func TestGrayCodePatternCounts(t *testing.T) {
	for _, tc := range []struct {
		w, h          int
		cols, rows    int
		images        int
		complementary bool
	}{
		{4, 4, 2, 2, 6, false},
		{5, 3, 3, 2, 7, false},
		{1, 1, 1, 1, 4, false},
		{1024, 768, 10, 10, 22, false},
		{4, 4, 2, 2, 10, true},
	} {
		var opts []PatternOption
		if tc.complementary {
			opts = append(opts, WithComplementaryPatterns())
		}
		p, err := NewGrayCodePattern(tc.w, tc.h, opts...)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, p.NumColumnBits(), test.ShouldEqual, tc.cols)
		test.That(t, p.NumRowBits(), test.ShouldEqual, tc.rows)
		test.That(t, p.NumImages(), test.ShouldEqual, tc.images)
		test.That(t, len(p.Generate()), test.ShouldEqual, tc.images)
	}

	_, err := NewGrayCodePattern(0, 4)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestGrayCodePatternPlanes(t *testing.T) {
	p, err := NewGrayCodePattern(4, 2)
	test.That(t, err, test.ShouldBeNil)
	imgs := p.Generate()
	test.That(t, len(imgs), test.ShouldEqual, 5)

	// gray codes of 0..3 are 00 01 11 10
	test.That(t, imgs[0].Pix[:4], test.ShouldResemble, []uint8{0, 0, 255, 255})
	test.That(t, imgs[1].Pix[:4], test.ShouldResemble, []uint8{0, 255, 255, 0})
	// one row bit
	test.That(t, imgs[2].Pix, test.ShouldResemble, []uint8{0, 0, 0, 0, 255, 255, 255, 255})

	for _, v := range imgs[p.BlackIndex()].Pix {
		test.That(t, v, test.ShouldEqual, uint8(0))
	}
	for _, v := range imgs[p.WhiteIndex()].Pix {
		test.That(t, v, test.ShouldEqual, uint8(255))
	}

	// generation is deterministic
	again := p.Generate()
	for i := range imgs {
		test.That(t, again[i].Pix, test.ShouldResemble, imgs[i].Pix)
	}
}

func TestComplementaryPlanes(t *testing.T) {
	p, err := NewGrayCodePattern(4, 4, WithComplementaryPatterns())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, p.Complementary(), test.ShouldBeTrue)
	imgs := p.Generate()
	for i := 0; i < p.BlackIndex(); i += 2 {
		for j := range imgs[i].Pix {
			test.That(t, imgs[i].Pix[j]+imgs[i+1].Pix[j], test.ShouldEqual, uint8(255))
		}
	}
}

func TestGrayToBinary(t *testing.T) {
	for v := 0; v < 1<<12; v++ {
		test.That(t, grayToBinary(grayCode(v)), test.ShouldEqual, v)
	}
}
