package domain

import (
	"sort"

	"github.com/bwmarrin/snowflake"
)

// AuthorUnits is one author's eligible engagement weight.
type AuthorUnits struct {
	AuthorID snowflake.ID
	Units    int64
}

// Share is one author's exact minor-unit slice of the pool.
type Share struct {
	AuthorID snowflake.ID
	Units    int64
	Amount   int64
}

// Distribute apportions pool across authors proportionally to units using
// the largest-remainder method on minor-unit integers. The returned shares
// always sum to pool exactly; no unit is lost or invented to rounding.
//
// Floor shares are computed as q*units + (r*units)/total with q = pool/total
// and r = pool%total, which avoids the pool*units product overflowing for
// realistic magnitudes. Leftover units go one-by-one to the largest
// fractional remainders, ties broken by ascending author id.
func Distribute(pool int64, authors []AuthorUnits) []Share {
	if pool <= 0 || len(authors) == 0 {
		return nil
	}

	var total int64
	for _, a := range authors {
		total += a.Units
	}
	if total <= 0 {
		return nil
	}

	q := pool / total
	r := pool % total

	type slot struct {
		share     Share
		remainder int64
	}

	slots := make([]slot, 0, len(authors))
	var allocated int64
	for _, a := range authors {
		scaled := r * a.Units
		amount := q*a.Units + scaled/total
		allocated += amount
		slots = append(slots, slot{
			share:     Share{AuthorID: a.AuthorID, Units: a.Units, Amount: amount},
			remainder: scaled % total,
		})
	}

	leftover := pool - allocated
	if leftover > 0 {
		order := make([]int, len(slots))
		for i := range order {
			order[i] = i
		}
		sort.SliceStable(order, func(i, j int) bool {
			a, b := slots[order[i]], slots[order[j]]
			if a.remainder != b.remainder {
				return a.remainder > b.remainder
			}
			return a.share.AuthorID < b.share.AuthorID
		})
		for i := int64(0); i < leftover; i++ {
			slots[order[i%int64(len(order))]].share.Amount++
		}
	}

	shares := make([]Share, 0, len(slots))
	for _, s := range slots {
		shares = append(shares, s.share)
	}
	sort.Slice(shares, func(i, j int) bool { return shares[i].AuthorID < shares[j].AuthorID })
	return shares
}
