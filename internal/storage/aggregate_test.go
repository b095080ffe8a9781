package storage

import "testing"

// TestFoldRatingCreateAndUpdate covers the create case (count grows) and the
// update case (count unchanged, old rating swapped for new).
func TestFoldRatingCreateAndUpdate(t *testing.T) {
	count, sum, avg := FoldRating(0, 0, 0, nil, 5)
	if count != 1 || sum != 5 || avg != 5.0 {
		t.Errorf("first fold = (%d, %d, %v), want (1, 5, 5.0)", count, sum, avg)
	}

	count, sum, avg = FoldRating(count, sum, avg, nil, 3)
	if count != 2 || sum != 8 || avg != 4.0 {
		t.Errorf("second fold = (%d, %d, %v), want (2, 8, 4.0)", count, sum, avg)
	}

	prev := 5
	count, sum, avg = FoldRating(count, sum, avg, &prev, 1)
	if count != 2 || sum != 4 || avg != 2.0 {
		t.Errorf("update fold = (%d, %d, %v), want (2, 4, 2.0)", count, sum, avg)
	}
}

// TestFoldRatingLegacyBackfill verifies a missing sum is reconstructed from
// avg*count before the fold.
func TestFoldRatingLegacyBackfill(t *testing.T) {
	count, sum, avg := FoldRating(2, 0, 4.0, nil, 4)
	if count != 3 || sum != 12 || avg != 4.0 {
		t.Errorf("legacy fold = (%d, %d, %v), want (3, 12, 4.0)", count, sum, avg)
	}
}

// TestFoldRatingAverageRounding verifies the average rounds to one decimal.
func TestFoldRatingAverageRounding(t *testing.T) {
	// Ratings 5, 4, 4 -> 13/3 = 4.333... -> 4.3
	count, sum, avg := FoldRating(0, 0, 0, nil, 5)
	count, sum, avg = FoldRating(count, sum, avg, nil, 4)
	count, sum, avg = FoldRating(count, sum, avg, nil, 4)
	if avg != 4.3 {
		t.Errorf("avg = %v, want 4.3", avg)
	}
}

// TestUnfoldRating verifies removing reviews walks the aggregate back to
// zero without going negative.
func TestUnfoldRating(t *testing.T) {
	count, sum, avg := UnfoldRating(2, 8, 4.0, 5)
	if count != 1 || sum != 3 || avg != 3.0 {
		t.Errorf("unfold = (%d, %d, %v), want (1, 3, 3.0)", count, sum, avg)
	}

	count, sum, avg = UnfoldRating(count, sum, avg, 3)
	if count != 0 || sum != 0 || avg != 0 {
		t.Errorf("final unfold = (%d, %d, %v), want zeros", count, sum, avg)
	}
}
