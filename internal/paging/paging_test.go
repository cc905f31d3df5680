package paging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func TestNewRejectsNonPositiveSize(t *testing.T) {
	_, err := New[int](0)
	assert.Error(t, err)
	_, err = New[int](-3)
	assert.Error(t, err)
}

func TestTwentyFiveItemsInPagesOfTen(t *testing.T) {
	p, err := New[int](10)
	require.NoError(t, err)
	all := seq(25)

	assert.Equal(t, seq(10), p.Slice(all))
	assert.Equal(t, 3, p.TotalPages())

	p.NextPage()
	p.NextPage()
	assert.Equal(t, 3, p.Page())
	page3 := p.Slice(all)
	assert.Len(t, page3, 5)
	assert.Equal(t, []int{21, 22, 23, 24, 25}, page3)

	p.NextPage()
	assert.Equal(t, 3, p.Page())
}

func TestPrevPageClampsAtOne(t *testing.T) {
	p, _ := New[int](10)
	p.Slice(seq(25))
	p.PrevPage()
	assert.Equal(t, 1, p.Page())
}

func TestEmptyFeed(t *testing.T) {
	p, _ := New[int](10)

	assert.Empty(t, p.Slice(nil))
	assert.Equal(t, 1, p.TotalPages())

	p.NextPage()
	assert.Equal(t, 1, p.Page())
}

func TestSliceNeverExceedsPageSize(t *testing.T) {
	for n := 0; n < 40; n++ {
		p, _ := New[int](7)
		all := seq(n)
		for i := 0; i < 8; i++ {
			assert.LessOrEqual(t, len(p.Slice(all)), 7)
			p.NextPage()
		}
	}
}

func TestShrunkFeedShowsEmptyPageUntilReconciled(t *testing.T) {
	p, _ := New[int](10)
	p.Slice(seq(25))
	p.Goto(3)
	require.Equal(t, 3, p.Page())

	assert.Empty(t, p.Slice(seq(5)))
	assert.Equal(t, 3, p.Page())

	p.Reconcile(5)
	assert.Equal(t, 1, p.Page())
	assert.Equal(t, seq(5), p.Slice(seq(5)))
}

func TestGotoClamps(t *testing.T) {
	p, _ := New[int](10)
	p.Slice(seq(25))

	p.Goto(99)
	assert.Equal(t, 3, p.Page())
	p.Goto(-1)
	assert.Equal(t, 1, p.Page())
	assert.Equal(t, 0, p.Offset())
}

func TestSelectionToggle(t *testing.T) {
	s := NewSelection[string]()

	assert.True(t, s.Toggle("a"))
	assert.True(t, s.IsSelected("a"))

	assert.False(t, s.Toggle("a"))
	assert.False(t, s.IsSelected("a"))
	assert.Equal(t, 0, s.Len())
}

func TestSelectionDoubleToggleIsNoop(t *testing.T) {
	s := NewSelection[int]()
	s.Toggle(1)
	s.Toggle(3)
	before := s.Selected()

	s.Toggle(2)
	s.Toggle(2)

	assert.ElementsMatch(t, before, s.Selected())
}

func TestSelectionReset(t *testing.T) {
	s := NewSelection[int]()
	s.Toggle(1)
	s.Toggle(2)
	s.Reset()

	assert.Equal(t, 0, s.Len())
	assert.False(t, s.IsSelected(1))
}
