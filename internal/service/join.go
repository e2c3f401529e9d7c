package service

// InnerJoin is the declared join every detector uses: an inner join on the
// case id with cross-product semantics for duplicate keys. Every left row is
// paired with every right row that shares its key, so a case with m rows on
// the left and n on the right contributes m*n pairs; keys present on only
// one side contribute nothing.
//
// Pairs are emitted in left row order and, for each left row, in right row
// order. Detectors that take "the first N" results rely on this order.
func InnerJoin[L, R any](left []L, right []R, leftKey func(L) string, rightKey func(R) string, emit func(L, R)) {
	if len(left) == 0 || len(right) == 0 {
		return
	}

	index := make(map[string][]int, len(right))
	for i, r := range right {
		k := rightKey(r)
		index[k] = append(index[k], i)
	}

	for _, l := range left {
		for _, i := range index[leftKey(l)] {
			emit(l, right[i])
		}
	}
}

// JoinCount returns the number of pairs InnerJoin would emit
func JoinCount[L, R any](left []L, right []R, leftKey func(L) string, rightKey func(R) string) int {
	counts := make(map[string]int, len(right))
	for _, r := range right {
		counts[rightKey(r)]++
	}
	total := 0
	for _, l := range left {
		total += counts[leftKey(l)]
	}
	return total
}
