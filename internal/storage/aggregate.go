// internal/storage/aggregate.go
package storage

import "math"

// FoldRating applies one review write to a target's rating aggregate and
// returns the new (count, sum, avg). prevRating is nil for a first review by
// this user (count grows); non-nil for an update (count unchanged, the old
// rating is subtracted and the new one added). A legacy record with a zero
// sum but a non-zero average has its sum backfilled from avg*count before the
// fold. Shared by both store backends so the invariant — the aggregate always
// equals the fold of all reviews for the target — holds identically in each.
func FoldRating(count, sum int, avg float64, prevRating *int, newRating int) (int, int, float64) {
	if sum == 0 && count > 0 && avg > 0 {
		sum = int(math.Round(avg * float64(count)))
	}

	if prevRating != nil {
		sum = sum - *prevRating + newRating
	} else {
		sum += newRating
		count++
	}

	return count, sum, roundAvg(sum, count)
}

// UnfoldRating removes one review from the aggregate (account erasure path).
func UnfoldRating(count, sum int, avg float64, rating int) (int, int, float64) {
	if sum == 0 && count > 0 && avg > 0 {
		sum = int(math.Round(avg * float64(count)))
	}

	sum -= rating
	count--
	if count <= 0 {
		return 0, 0, 0
	}
	return count, sum, roundAvg(sum, count)
}

// roundAvg computes sum/count rounded to 1 decimal, guarding divide-by-zero.
func roundAvg(sum, count int) float64 {
	if count == 0 {
		return 0
	}
	return math.Round(float64(sum)/float64(count)*10) / 10
}
