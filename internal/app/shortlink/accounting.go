package shortlink

import "context"

// Accounting 只读地查询访问次数。
//
// 和 Resolver 使用同一条“短码 -> ID”查找链，但不做过期判断、不计数，
// 所以查看统计本身永远不会改变计数。应当直接挂在权威存储上，不要经过缓存。
type Accounting struct {
	store Store
}

func NewAccounting(store Store) *Accounting {
	return &Accounting{store: store}
}

// Visits 返回当前访问次数；已过期的短链仍然返回它冻结的计数。
func (a *Accounting) Visits(ctx context.Context, input string) (int64, error) {
	link, _, err := lookup(ctx, a.store, input)
	if err != nil {
		return 0, err
	}
	return link.Visits, nil
}
