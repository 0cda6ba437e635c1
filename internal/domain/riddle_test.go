package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    Category
		wantErr bool
	}{
		{in: "word", want: CategoryWord},
		{in: " Word ", want: CategoryWord},
		{in: "arithmetic", want: CategoryArithmetic},
		{in: "math", want: CategoryArithmetic},
		{in: "logic", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCategory(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrUnknownCategory)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.True(t, got.Valid())
		})
	}
}

func TestCategoryForRound(t *testing.T) {
	tests := []struct {
		name   string
		rounds int
		want   []Category
	}{
		{name: "even", rounds: 4, want: []Category{CategoryWord, CategoryWord, CategoryArithmetic, CategoryArithmetic}},
		{name: "odd", rounds: 3, want: []Category{CategoryWord, CategoryArithmetic, CategoryArithmetic}},
		{name: "single", rounds: 1, want: []Category{CategoryArithmetic}},
		{name: "two", rounds: 2, want: []Category{CategoryWord, CategoryArithmetic}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := make([]Category, tt.rounds)
			for i := range got {
				got[i] = CategoryForRound(i, tt.rounds)
			}
			assert.Equal(t, tt.want, got)

			words := 0
			for _, c := range got {
				if c == CategoryWord {
					words++
				}
			}
			assert.Equal(t, words, RoundsOf(CategoryWord, tt.rounds))
			assert.Equal(t, tt.rounds-words, RoundsOf(CategoryArithmetic, tt.rounds))
		})
	}
}
