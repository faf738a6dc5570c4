package calculator

import (
	"container/heap"
	"sort"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/money"
)

type position struct {
	user   models.UserID
	amount money.Money // always positive
}

// split separates net balances into debtors and creditors, keeping the magnitude
// of each balance. Users inside the zero band are ignored.
func (n NetBalances) split() (debtors, creditors []position) {
	for u, b := range n {
		switch {
		case b.IsNegative():
			debtors = append(debtors, position{user: u, amount: b.Abs()})
		case b.IsPositive():
			creditors = append(creditors, position{user: u, amount: b})
		}
	}
	return debtors, creditors
}

func byAmountDesc(ps []position) {
	sort.Slice(ps, func(i, j int) bool {
		if c := ps[i].amount.Cmp(ps[j].amount); c != 0 {
			return c > 0
		}
		return ps[i].user < ps[j].user
	})
}

// SimplifyGreedy matches debtors with creditors using two pointers.
//
// Debtors are sorted most-negative first and creditors largest first, ties broken
// by user ID so the same balances always produce the same transfers. Each step
// settles min(debt, credit) and advances whichever side reached the zero band.
// The result never has more than (users - 1) transfers but is not guaranteed to
// be the minimum count.
func SimplifyGreedy(net NetBalances) []Transfer {
	debtors, creditors := net.split()
	byAmountDesc(debtors)
	byAmountDesc(creditors)

	var transfers []Transfer
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		d, c := &debtors[i], &creditors[j]

		amount := d.amount.Min(c.amount)
		if amount.IsPositive() {
			transfers = append(transfers, Transfer{From: d.user, To: c.user, Amount: amount})
		}

		d.amount = d.amount.Sub(amount)
		c.amount = c.amount.Sub(amount)

		if !d.amount.IsPositive() {
			i++
		}
		if !c.amount.IsPositive() {
			j++
		}
	}
	return transfers
}

// positionHeap is a max-heap on amount, ties broken by user ID.
type positionHeap []position

func (h positionHeap) Len() int { return len(h) }
func (h positionHeap) Less(i, j int) bool {
	if c := h[i].amount.Cmp(h[j].amount); c != 0 {
		return c > 0
	}
	return h[i].user < h[j].user
}
func (h positionHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *positionHeap) Push(x any)   { *h = append(*h, x.(position)) }
func (h *positionHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// SimplifyLargestFirst always settles the largest remaining debtor against the
// largest remaining creditor. Whatever is left of the larger side goes back on its
// heap. Same bounds as SimplifyGreedy; it tends to clear big balances in fewer
// hops when many small debts are present.
func SimplifyLargestFirst(net NetBalances) []Transfer {
	debtors, creditors := net.split()
	dh, ch := positionHeap(debtors), positionHeap(creditors)
	heap.Init(&dh)
	heap.Init(&ch)

	var transfers []Transfer
	for dh.Len() > 0 && ch.Len() > 0 {
		d := heap.Pop(&dh).(position)
		c := heap.Pop(&ch).(position)

		amount := d.amount.Min(c.amount)
		if amount.IsPositive() {
			transfers = append(transfers, Transfer{From: d.user, To: c.user, Amount: amount})
		}

		if rest := d.amount.Sub(amount); rest.IsPositive() {
			heap.Push(&dh, position{user: d.user, amount: rest})
		}
		if rest := c.amount.Sub(amount); rest.IsPositive() {
			heap.Push(&ch, position{user: c.user, amount: rest})
		}
	}
	return transfers
}
