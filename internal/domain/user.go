/**
 * @description
 * User is a buyer with one cash account.
 */
package domain

import "time"

// User names and emails are globally unique.
type User struct {
	ID        int64     `json:"id"`
	UserName  string    `json:"username"`
	Email     string    `json:"email"`
	AccountID int64     `json:"account_id"`
	Account   *Account  `json:"account,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Recharge tops up the user's account.
func (u *User) Recharge(amount Money) error {
	if u.Account == nil {
		return ErrAccountNotFound
	}
	return u.Account.Recharge(amount)
}

// Deduct charges the user's account. See Account.Deduct.
func (u *User) Deduct(amount Money) (bool, error) {
	if u.Account == nil {
		return false, ErrAccountNotFound
	}
	return u.Account.Deduct(amount)
}
