package models

// MarketStats summarises the back-office queues and catalogue.
type MarketStats struct {
	Users              int               `json:"users"`
	NFTsByStatus       map[NFTStatus]int `json:"nfts_by_status"`
	PendingDeposits    int               `json:"pending_deposits"`
	PendingWithdrawals int               `json:"pending_withdrawals"`
}

// PendingReviews is the number of items waiting for an admin decision.
func (s MarketStats) PendingReviews() int {
	return s.NFTsByStatus[NFTStatusPending] + s.PendingDeposits + s.PendingWithdrawals
}
