// Package notifications delivers marketplace emails asynchronously.
package notifications

import "errors"

// Kind names a notification template.
type Kind string

const (
	KindNFTPurchased       Kind = "nft-purchased"
	KindNFTSold            Kind = "nft-sold"
	KindDepositApproved    Kind = "deposit-approved"
	KindDepositDeclined    Kind = "deposit-declined"
	KindWithdrawalApproved Kind = "withdrawal-approved"
	KindWithdrawalDeclined Kind = "withdrawal-declined"
	KindWelcome            Kind = "welcome"
	KindNewsletter         Kind = "newsletter"
	KindReviewDigest       Kind = "review-digest"
)

var (
	// ErrQueueFull is returned when the dispatcher backlog is saturated.
	ErrQueueFull = errors.New("notification queue full")
	// ErrStopped is returned after Stop has been called.
	ErrStopped = errors.New("notification dispatcher stopped")
)

type Recipient struct {
	Email string
	Name  string
}

// Message is one notification addressed to one recipient. Subject, when
// set, overrides the template subject.
type Message struct {
	Kind    Kind
	To      Recipient
	Subject string
	Data    map[string]string
}
